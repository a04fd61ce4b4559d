package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an environment from a spec file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			specPath, _ := cmd.Flags().GetString("file")
			if specPath == "" {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}

			run, err := c.app.Build(cmd.Context(), specPath)
			if run.ID != "" {
				// The snapshot is valid even for failed runs, so the report
				// shows which stage broke before the error is surfaced.
				printRun(cmd.OutOrStdout(), run)
			}
			return err
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to the environment spec file")
	return cmd
}
