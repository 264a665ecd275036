package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [units...]",
		Short: "Compile build units into outDir",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noCache, _ := cmd.Flags().GetBool("no-cache")
			jobs, _ := cmd.Flags().GetInt("jobs")
			return c.app.Build(cmd.Context(), projectDir(cmd), app.BuildOptions{
				NoCache:     noCache,
				Parallelism: jobs,
				Targets:     args,
			})
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Bypass the build cache and force compilation")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum concurrent compiles (default: number of CPUs)")
	return cmd
}
