package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve dependencies into kiln.lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			update, _ := cmd.Flags().GetBool("update")
			return c.app.Resolve(cmd.Context(), projectDir(cmd), app.ResolveOptions{Update: update})
		},
	}
	cmd.Flags().BoolP("update", "u", false, "Re-resolve even when kiln.lock is current")
	return cmd
}
