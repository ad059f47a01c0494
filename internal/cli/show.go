package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cotwatch/internal/app"
)

var (
	showGroup   string
	showArchive bool
	showLimit   int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest positioning summary and forward curves",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showArchive && showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Group:   showGroup,
			Archive: showArchive,
			Limit:   showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showGroup, "group", "", "Only show one instrument group")
	showCmd.Flags().BoolVar(&showArchive, "archive", false, "List archived snapshots and alerts from PostgreSQL")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of archive rows to display")
}
