package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lease-abstract/internal/model"
)

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "List the extraction passes in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		passes, err := model.LoadPasses()
		if err != nil {
			return err
		}
		for i, p := range passes {
			deps := "-"
			if len(p.DependsOn) > 0 {
				deps = strings.Join(p.DependsOn, ",")
			}
			expensive := ""
			if p.Expensive {
				expensive = " (expensive)"
			}
			fmt.Printf("%d. %-14s timeout=%-4ds depends=%s%s\n", i+1, p.Name, p.TimeoutSecs, deps, expensive)
			if p.Description != "" {
				fmt.Printf("   %s\n", p.Description)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passesCmd)
}
