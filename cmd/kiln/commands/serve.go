package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve compiled artifacts and rebuild on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			jobs, _ := cmd.Flags().GetInt("jobs")
			return c.app.Serve(cmd.Context(), projectDir(cmd), app.ServeOptions{
				Addr:        addr,
				Parallelism: jobs,
			})
		},
	}
	cmd.Flags().StringP("addr", "a", "", "Listen address (default: serve.addr from kiln.yaml)")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum concurrent compiles (default: number of CPUs)")
	return cmd
}
