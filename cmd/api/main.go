package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/handlers"
	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/config"
	"github.com/dvloznov/pocketbook/internal/engine"
	"github.com/dvloznov/pocketbook/internal/exports"
	"github.com/dvloznov/pocketbook/internal/jobs/inmemory"
	"github.com/dvloznov/pocketbook/internal/logger"
	"github.com/dvloznov/pocketbook/internal/recurring"
	"github.com/dvloznov/pocketbook/internal/store"
)

const recurringInterval = time.Hour

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (default: ~/.pocketbook/config.yaml or ./config.yaml)")
		uid        = flag.String("uid", "", "sign in as this uid at startup")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, logCloser, err := logger.NewFromConfig(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx := logger.WithContext(context.Background(), log)

	eng, err := engine.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open engine")
	}

	if *uid != "" {
		if err := eng.Auth().SignIn(auth.Identity{UID: *uid}); err != nil {
			log.Fatal().Err(err).Msg("Failed to sign in")
		}
	} else {
		eng.Auth().ResolveAnonymous()
	}

	runner, closeSinks, err := exports.Open(ctx, cfg, eng.Store())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open export sinks")
	}
	defer closeSinks()

	if err := os.MkdirAll(cfg.API.ExportDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.API.ExportDir).Msg("Failed to create export directory")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore, inmemory.WithLogger(log))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, runner.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	go postRecurring(workerCtx, eng.Store(), log)

	mux := handlers.NewRouter(handlers.Deps{
		Store:          eng.Store(),
		Auth:           eng.Auth(),
		Sync:           eng.Sync(),
		Publisher:      jobQueue,
		JobStore:       jobStore,
		ExportDir:      cfg.API.ExportDir,
		OriginPatterns: cfg.API.AllowedOrigins,
		Log:            log,
	})

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)

	// No WriteTimeout: it would cut off the event stream.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.API.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	if err := eng.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error closing engine")
	}

	log.Info().Msg("Server exited")
}

// postRecurring posts due fixed expenses at startup and then hourly.
func postRecurring(ctx context.Context, st *store.Store, log zerolog.Logger) {
	ticker := time.NewTicker(recurringInterval)
	defer ticker.Stop()
	for {
		n, err := recurring.Post(st, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("Some fixed expenses could not be posted")
		}
		if n > 0 {
			log.Info().Int("posted", n).Msg("Posted fixed expenses")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
