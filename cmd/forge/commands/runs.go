package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.trai.ch/forge/internal/ui/output"
)

func (c *CLI) newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := c.app.Runs()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(w, "no runs recorded")
				return nil
			}

			out := output.New(w)
			for _, run := range runs {
				printRunLine(w, out, run)
			}
			return nil
		},
	}
}
