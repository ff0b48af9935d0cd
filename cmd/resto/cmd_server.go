package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/uvci/resto/app/providers"
	"github.com/uvci/resto/config"
	"github.com/uvci/resto/internal/server"
	"github.com/uvci/resto/pkg/app"
	"github.com/uvci/resto/pkg/logger"
)

// resto serve
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the HTTP API with its background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		closeSink, err := providers.AttachLogSink()
		if err != nil {
			logger.Warn("serve: log sink disabled", "error", err)
		}
		defer closeSink()

		return boot(ctx, func(a *providers.App) error {
			kernel, err := a.Kernel()
			if err != nil {
				return err
			}
			if err := a.Background(ctx); err != nil {
				return err
			}
			err = kernel.Serve(ctx, server.Config{
				Addr:     ":" + config.AppPort(),
				GRPC:     a.GRPC(),
				GRPCAddr: ":" + config.GRPCPort(),
			})
			stop()
			a.Wait()
			return err
		})
	},
}

// resto route:list
var routeListCmd = &cobra.Command{
	Use:   "route:list",
	Short: "List all registered named routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boot(cmd.Context(), func(a *providers.App) error {
			kernel, err := a.Kernel()
			if err != nil {
				return err
			}
			infos, err := kernel.RouteList()
			if err != nil {
				return err
			}
			return app.PrintRoutes(os.Stdout, infos)
		})
	},
}
