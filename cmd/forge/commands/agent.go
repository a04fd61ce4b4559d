package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Serve stage execution requests for remote dispatch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.agent.Serve(cmd.Context())
		},
	}
}
