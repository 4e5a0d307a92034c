package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/Postroom/postroom/config"
	"github.com/Postroom/postroom/internal/app"
	"github.com/Postroom/postroom/pkg/logger"
)

// osExit is a variable to allow mocking os.Exit in tests
var osExit = os.Exit

// For testing purposes - allows us to mock the signal channel
var signalNotify = signal.Notify

// runWorker contains the core daemon logic, extracted for testability
func runWorker(cfg *config.Config, appLogger logger.Logger) error {
	appInstance := app.NewApp(cfg, app.WithLogger(appLogger))

	if err := appInstance.Initialize(); err != nil {
		appLogger.WithField("error", err.Error()).Error("Failed to initialize application")
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := appInstance.Start(ctx); err != nil {
		appLogger.WithField("error", err.Error()).Error("Failed to start application")
		return err
	}
	appLogger.Info("Worker started successfully")

	// Set up graceful shutdown - single channel for all signals
	shutdown := make(chan os.Signal, 1)
	signalNotify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	appLogger.WithField("signal", sig.String()).Info("Shutdown signal received - starting graceful shutdown")
	appLogger.Info("Send signal again (Ctrl+C) to force immediate shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace)
	defer shutdownCancel()

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- appInstance.Shutdown(shutdownCtx)
	}()

	forceShutdown := make(chan os.Signal, 1)
	signalNotify(forceShutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-shutdownDone:
		if err != nil {
			appLogger.WithField("error", err.Error()).Error("Error during graceful shutdown")
			return err
		}
		appLogger.Info("Worker shut down gracefully")
		return nil
	case forceSig := <-forceShutdown:
		appLogger.WithField("signal", forceSig.String()).Warn("Force shutdown signal received - terminating immediately")
		shutdownCancel()

		select {
		case err := <-shutdownDone:
			return err
		case <-time.After(2 * time.Second):
			appLogger.Warn("Forced shutdown timeout - exiting immediately")
			return nil
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)

	if err := runWorker(cfg, appLogger); err != nil {
		osExit(1)
	}
}
