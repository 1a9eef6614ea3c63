package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func serveCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер печати",
		RunE: func(c *cobra.Command, _ []string) error {
			a, err := g.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}

	cmd.Flags().String("listen", "", "адрес HTTP сервера (listen_addr)")
	_ = g.v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}
