package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/invoicekeeper/internal/buildinfo"
	"github.com/dmitrijs2005/invoicekeeper/internal/config"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/server"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info(ctx, "config loaded", "version", buildinfo.Version(), "config", cfg)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
		os.Exit(1)
	}

}
