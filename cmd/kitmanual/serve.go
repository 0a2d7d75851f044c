package main

import (
	"github.com/spf13/cobra"

	"github.com/IshaanNene/kitmanual/internal/api"
)

var serveAddr string

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only manual lookup API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if serveAddr != "" {
				a.cfg.API.Addr = serveAddr
			}
			return api.NewServer(a.cfg.API.Addr, a.store, a.metrics, a.logger).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	return cmd
}
