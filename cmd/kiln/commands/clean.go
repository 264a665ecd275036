package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build output and caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cache, _ := cmd.Flags().GetBool("cache")
			all, _ := cmd.Flags().GetBool("all")
			return c.app.Clean(cmd.Context(), projectDir(cmd), app.CleanOptions{
				Cache: cache,
				All:   all,
			})
		},
	}

	cmd.Flags().Bool("cache", false, "Also clean the build cache and registry cache")
	cmd.Flags().Bool("all", false, "Remove all kiln state, including fetched packages")

	return cmd
}
