package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/redline/internal/config"
	"github.com/agenthands/redline/internal/core"
	"github.com/agenthands/redline/internal/driver"
	"github.com/agenthands/redline/internal/metrics"
	"github.com/agenthands/redline/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("config file not found, using defaults", zap.String("path", cfgPath))
		cfg = config.Default()
		cfg.ApplyEnv()
		cfgPath = ""
	} else if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := config.NewStore(cfg, cfgPath, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfgPath != "" {
		go func() {
			if err := store.Watch(ctx); err != nil {
				logger.Warn("config hot reload disabled", zap.Error(err))
			}
		}()
	}

	m := metrics.New()
	opts := []core.Option{core.WithMetrics(m), core.WithLogger(logger)}
	if uri := cfg.Memgraph.URI; uri != "" {
		d, err := driver.NewMemgraphDriver(ctx, uri, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			logger.Fatal("failed to connect to memgraph", zap.Error(err))
		}
		opts = append(opts, core.WithGraph(d))
	} else {
		logger.Info("no memgraph uri configured, results are kept in memory only")
	}

	engine := core.NewEngine(store, opts...)
	if err := engine.BuildIndices(ctx); err != nil {
		logger.Warn("failed to build indices", zap.Error(err))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server.NewServer(engine, m, logger).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Error("failed to close engine", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("REDLINE_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
