package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanpark/access-server-go/internal/util"
)

const minFacilityTokenLength = 16

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Hash a facility token for FACILITY_TOKEN_HASH",
	Long:  "Print the bcrypt hash of a facility device token. Set the output as FACILITY_TOKEN_HASH on the server and give the token to the door device.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[0]) < minFacilityTokenLength {
			return fmt.Errorf("token must be at least %d characters", minFacilityTokenLength)
		}
		hash, err := util.HashPassword(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		cmd.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
