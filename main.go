package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory/internal/app"
	"inventory/internal/config"
	"inventory/internal/logger"

	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	// --- Initialize App ---
	ctx := context.Background()
	application, err := app.NewApp(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize app", zap.Error(err))
	}

	// --- Start RabbitMQ Consumer ---
	if err := application.ConsumeLowStockAlerts(); err != nil {
		zl.Error("failed to start low-stock consumer", zap.Error(err))
	}

	// --- Start HTTP Server ---
	zl.Info("starting server",
		zap.String("addr", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("database", cfg.DatabaseDriver),
		zap.String("images", cfg.ImageStore),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := application.Fiber.Listen(cfg.Port); err != nil {
			zl.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	<-quit
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		zl.Error("error during shutdown", zap.Error(err))
	}
	zl.Info("server gracefully stopped")
}
