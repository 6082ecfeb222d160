package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/scope"
)

func newAPIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage bearer tokens for the HTTP transport",
	}
	cmd.AddCommand(newAPIKeyCreateCmd())
	return cmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	var (
		project     int64
		agent       string
		operator    bool
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a token bound to one agent, or an operator token",
		Long: `Issues a bearer token. A token bound to --project and --agent searches as
that agent. --operator issues a token that sees everything. The token is
printed once; only its hash is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if operator == (agent != "") {
				return errors.New("exactly one of --operator or --agent is required")
			}
			a, err := openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			var viewer *scope.Viewer
			if !operator {
				if project <= 0 {
					return errors.New("--agent requires --project")
				}
				v, err := a.scope.ResolveViewer(cmd.Context(), project, agent)
				if err != nil {
					return fmt.Errorf("agent %s: %w", agent, err)
				}
				viewer = &v
			}

			token, err := a.keys.CreateAPIKey(cmd.Context(), viewer, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&project, "project", 0, "project id of the agent")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name the token searches as")
	cmd.Flags().BoolVar(&operator, "operator", false, "issue an operator token")
	cmd.Flags().StringVar(&description, "description", "", "free-form note stored with the key")
	return cmd
}
