// Package commands implements the CLI commands for forge.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"go.trai.ch/forge/internal/build"
	"go.trai.ch/forge/internal/core/domain"
)

// Application represents the application logic the CLI drives.
type Application interface {
	Build(ctx context.Context, specPath string) (domain.BuildRun, error)
	Status(id string) (domain.BuildRun, error)
	Runs() ([]domain.BuildRun, error)
}

// AgentServer serves stage execution requests for remote dispatchers.
type AgentServer interface {
	Serve(ctx context.Context) error
}

// CLI represents the command line interface for forge.
type CLI struct {
	app     Application
	agent   AgentServer
	rootCmd *cobra.Command
}

// New creates a new CLI wired to the given application.
func New(a Application, agent AgentServer) *CLI {
	rootCmd := &cobra.Command{
		Use:           "forge",
		Short:         "Build, containerize and publish software environments",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	c := &CLI{
		app:     a,
		agent:   agent,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newRunsCmd())
	rootCmd.AddCommand(c.newAgentCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the command line arguments. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output writers. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
