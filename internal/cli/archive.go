package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cotwatch/internal/app"
)

var (
	archiveKeepDays int
	archiveDryRun   bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive the current snapshot into PostgreSQL and prune old copies",
	RunE: func(cmd *cobra.Command, args []string) error {
		if archiveKeepDays < 0 {
			return fmt.Errorf("--keep-days must not be negative")
		}

		opts := app.ArchiveOptions{
			Keep:   dayDuration(archiveKeepDays),
			DryRun: archiveDryRun,
		}

		return getApp().Archive(cmd.Context(), opts)
	},
}

func init() {
	archiveCmd.Flags().IntVar(&archiveKeepDays, "keep-days", 0, "Delete archived snapshots older than this many days (0 keeps all)")
	archiveCmd.Flags().BoolVar(&archiveDryRun, "dry-run", false, "Run without writing to storage")
}

func dayDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
