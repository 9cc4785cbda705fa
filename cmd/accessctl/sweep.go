package main

import (
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanpark/access-server-go/internal/config"
	"github.com/wanpark/access-server-go/internal/jobs"
	"github.com/wanpark/access-server-go/internal/repository"
)

var sweepRetention time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete inert credentials and invites",
	Long:  "Run one cleanup pass. Rows that expired, were consumed, invalidated or revoked before the retention cutoff are deleted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		job := jobs.NewCleanupJob(
			repository.NewCredentialRepository(db),
			repository.NewInviteRepository(db),
			sweepRetention,
			config.CleanupJobInterval,
		)
		counts, err := job.RunOnce(cmd.Context())
		printCounts(cmd, counts)
		return err
	},
}

func printCounts(cmd *cobra.Command, counts map[string]int64) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("%s: %d deleted\n", name, counts[name])
	}
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepRetention, "retention", config.CleanupRetention, "keep inert rows newer than this")
	rootCmd.AddCommand(sweepCmd)
}
