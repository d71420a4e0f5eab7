package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kdimtricp/phasewatch/internal/app"
	"github.com/kdimtricp/phasewatch/internal/config"
	"github.com/kdimtricp/phasewatch/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		log.Error("server error", zap.Error(err))
		srv.Close()
		os.Exit(1)
	}
	log.Info("server stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
