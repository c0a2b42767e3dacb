package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/wikiadf/internal/api"
	"github.com/dgallion1/wikiadf/internal/config"
	"github.com/dgallion1/wikiadf/internal/convert"
	"github.com/dgallion1/wikiadf/internal/metrics"
)

func main() {
	envFile := flag.String("env", ".env", "path to an env file loaded before configuration")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warn("could not load env file", "path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := convert.NewCache(cfg.CacheSize, cfg.CacheTTL)
	cache.Start(ctx, time.Minute)

	conv := convert.New(convert.Options{MaxDepth: cfg.MaxDepth, MaxInputBytes: cfg.MaxInputBytes}, cache)
	m := metrics.New(cache.Stats)

	srv := api.NewServer(conv, cache, m, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		cache.Stop()
	}()

	log.Info("starting wikiadf", "port", cfg.Port, "max_depth", cfg.MaxDepth, "max_input_bytes", cfg.MaxInputBytes)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
