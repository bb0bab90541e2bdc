package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/utils"
)

func main() {
	cfg, configPath, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	logger := utils.InitLogger(utils.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("Configuration loaded", "path", configPath, "provider", cfg.LLM.Provider, "database", cfg.Database.Driver)

	app, err := NewApp(cfg)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to close app", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(cfg, app)
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Shutting down")
}
