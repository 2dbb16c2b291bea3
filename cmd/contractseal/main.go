package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"contractseal/internal/config"
	"contractseal/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer app.close()

	if err := app.server.Run(ctx); err != nil {
		logger.Error("server exited", "error", err)
	}
}
