package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kdimtricp/phasewatch/internal/app"
	"github.com/kdimtricp/phasewatch/pkg/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload and live overlay web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := app.NewServer(runCtx, cfg, log)
			if err != nil {
				return err
			}
			defer srv.Close()

			if err := srv.Run(runCtx); err != nil {
				return err
			}
			log.Info("server stopped", zap.String("port", cfg.Port))
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}
