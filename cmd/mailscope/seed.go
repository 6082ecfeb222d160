package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/search/golden"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the golden corpus into the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := golden.Load()
			if err != nil {
				return err
			}
			projectID, err := c.Seed(cmd.Context(), a.store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d messages into project %s (id %d)\n", len(c.Messages), c.Project, projectID)
			return nil
		},
	}
}
