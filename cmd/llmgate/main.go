package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/llmgate/llmgate"
	"github.com/llmgate/llmgate/api"
	"github.com/llmgate/llmgate/config"
	"github.com/llmgate/llmgate/tracking"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Println("llmgate", llmgate.Version)
		return
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	var tracker *tracking.Store
	if cfg.Tracking.Enabled {
		tracker, err = tracking.Open(cfg.Tracking.Path, logger)
		if err != nil {
			logger.Fatal("open tracking store", zap.Error(err))
		}
		defer tracker.Close()
	}

	registry := llmgate.DefaultRegistry()
	server := api.NewServer(cfg, registry, tracker, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("gateway listening",
			zap.String("addr", cfg.Server.Addr),
			zap.Strings("providers", registry.List()),
			zap.String("version", llmgate.Version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
