package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/username/tradeclean/src/config"
	"github.com/username/tradeclean/src/handlers"
	"github.com/username/tradeclean/src/logger"
	"github.com/username/tradeclean/src/metrics"
	"github.com/username/tradeclean/src/parsers"
	"github.com/username/tradeclean/src/processors"
	"github.com/username/tradeclean/src/services"
	"github.com/username/tradeclean/src/storage"
	"github.com/username/tradeclean/web"
)

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Trade cleaner server starting...")

	logger.L.Info("Initializing upload store...", "path", config.Cfg.UploadDir)
	store, err := storage.NewStore(config.Cfg.UploadDir)
	if err != nil {
		logger.L.Error("Failed to initialize upload store", "error", err)
		os.Exit(1)
	}

	templates, err := web.ParseTemplates()
	if err != nil {
		logger.L.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing result cache...", "ttl", config.Cfg.ResultCacheTTL)
	resultCache := cache.New(config.Cfg.ResultCacheTTL, config.Cfg.CacheCleanupInterval)

	appMetrics := metrics.New()

	logger.L.Info("Initializing services and handlers...")
	uploadService := services.NewUploadService(
		store,
		parsers.NewNormalizer(),
		processors.NewPLProcessor(),
		resultCache,
		appMetrics,
	)
	uploadHandler := handlers.NewUploadHandler(uploadService, templates, config.Cfg.MaxUploadSizeBytes)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handlers.NewRouter(uploadHandler, appMetrics.Handler(), config.Cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.L.Info("Shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.L.Error("Graceful shutdown failed", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	}
	logger.L.Info("Server stopped gracefully.")
}
