package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lease-abstract/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := store.New(cfg.Store)
		if err != nil {
			return err
		}
		defer journal.Close()
		if err := journal.Migrate(cmd.Context()); err != nil {
			return err
		}

		runs, err := journal.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-10s %-11s %8d chars  %s\n",
				r.ID, r.Category, r.Status, r.DocLength, r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
