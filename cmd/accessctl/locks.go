package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wanpark/access-server-go/internal/lock"
)

var locksCmd = &cobra.Command{
	Use:   "locks <path>",
	Short: "Validate a lock registry file",
	Long:  "Parse a lock registry YAML file and list every lock it declares. Exits non-zero when the file is invalid.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := lock.LoadRegistry(args[0])
		if err != nil {
			return err
		}
		for _, l := range reg.Locks() {
			purposes := make([]string, len(l.Purposes))
			for i, p := range l.Purposes {
				purposes[i] = string(p)
			}
			cmd.Printf("%s\tfacility=%s\tdriver=%s\tpurposes=%s\tpin=%t\n",
				l.ID, l.FacilityID, l.Driver, strings.Join(purposes, ","), l.AcceptsPIN())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locksCmd)
}
