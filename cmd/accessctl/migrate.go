package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanpark/access-server-go/internal/database"
)

var migratePrintOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  "Create the credential and invite tables and their indexes. The schema is idempotent and safe to apply on every deploy.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migratePrintOnly {
			cmd.Print(database.Schema())
			return nil
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		cmd.Println("Schema applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrintOnly, "print", false, "print the schema instead of applying it")
	rootCmd.AddCommand(migrateCmd)
}
