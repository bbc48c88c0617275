package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/arcbridge/gatekeeper/internal/app"
	"github.com/arcbridge/gatekeeper/internal/config"
	"github.com/arcbridge/gatekeeper/internal/env"
	"github.com/arcbridge/gatekeeper/internal/logger"
	"github.com/arcbridge/gatekeeper/internal/version"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	cfg, err := config.Load(nil)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to load configuration", "error", err)
	}
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil {
			logger.FatalWithLogger(logInstance, "Invalid port argument", "arg", os.Args[1], "error", err)
		}
		cfg.Server.Port = port
	}

	application, err := app.New(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	styledLogger.Info("gatekeeper has shutdown", "uptime", time.Since(startTime).String())
}

// buildLoggerConfig creates logger config from environment variables with defaults.
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("GATEKEEPER_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("GATEKEEPER_FILE_OUTPUT", true),
		LogDir:     env.GetEnvOrDefault("GATEKEEPER_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("GATEKEEPER_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("GATEKEEPER_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("GATEKEEPER_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("GATEKEEPER_THEME", "default"),
	}
}
