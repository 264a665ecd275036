// Package commands implements the CLI commands for the kiln build tool.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/adapters/detector"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
	setJSON func(bool)
	env     detector.Environment
}

// Application represents the application logic interface.
type Application interface {
	Resolve(ctx context.Context, cwd string, opts app.ResolveOptions) error
	Build(ctx context.Context, cwd string, opts app.BuildOptions) error
	Serve(ctx context.Context, cwd string, opts app.ServeOptions) error
	Clean(ctx context.Context, cwd string, opts app.CleanOptions) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Incremental, content-addressed builds for typed source",
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

	rootCmd.PersistentFlags().StringP("dir", "C", ".", "Run as if kiln was started in this directory")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format: auto, pretty or json")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
		env:     detector.CurrentEnvironment(),
	}
	rootCmd.PersistentPreRun = c.configureLogs

	rootCmd.AddCommand(c.newResolveCmd())
	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// OnLogFormat registers the hook that switches the logger to JSON.
func (c *CLI) OnLogFormat(setJSON func(bool)) {
	c.setJSON = setJSON
}

// SetEnvironment replaces the detected environment. Used for testing.
func (c *CLI) SetEnvironment(env detector.Environment) {
	c.env = env
}

func (c *CLI) configureLogs(cmd *cobra.Command, _ []string) {
	if c.setJSON == nil {
		return
	}
	flag, _ := cmd.Flags().GetString("log-format")
	format := detector.ResolveFormat(detector.DetectFormat(c.env), flag)
	c.setJSON(format == detector.FormatJSON)
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return "."
	}
	return dir
}
