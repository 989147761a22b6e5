package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"playersync/internal/node"
	"playersync/pkg/config"
	"playersync/pkg/logger"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("PLAYERSYNC_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("playersync node initializing",
		zap.String("env", cfg.Environment),
		zap.String("store", cfg.Store.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect backends and build the engines
	r, err := node.Open(ctx, *cfg, l)
	if err != nil {
		l.Error("failed to open node", err)
		os.Exit(1)
	}

	// 4. Run until signalled
	l.Info("playersync node starting")
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("playersync node failed", err)
		os.Exit(1)
	}
	l.Info("playersync node stopped")
}
