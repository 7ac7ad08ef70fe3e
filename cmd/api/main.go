package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-graph/internal/api"
	"github.com/dvloznov/finance-graph/internal/app"
	"github.com/dvloznov/finance-graph/internal/config"
	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/dvloznov/finance-graph/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("FINANCE_GRAPH_CONFIG"), "path to YAML config")
		addr       = flag.String("addr", "", "HTTP listen address (overrides api.addr)")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid config")
	}

	log := logger.NewWithConfig(cfg.Log)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	// Initialize run queue
	jobQueue := a.NewQueue()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	runHandler := a.Runner.Handle(app.OpenSource)
	jobHandler := func(ctx context.Context, job *jobs.RunJob) error {
		jobLog := log.With().Str("job_id", job.JobID).Str("source_uri", job.SourceURI).Logger()
		jobLog.Info().Msg("Processing run")

		if err := runHandler(logger.WithContext(ctx, jobLog), job); err != nil {
			jobLog.Error().Err(err).Msg("Run failed")
			return err
		}

		jobLog.Info().
			Str("run_status", job.RunStatus).
			Int("processed", job.Processed).
			Int("failed", job.Failed).
			Int("cancelled", job.Cancelled).
			Msg("Run finished")
		return nil
	}

	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start run worker")
	}

	server := &http.Server{
		Addr: cfg.API.Addr,
		Handler: api.NewHandler(api.Deps{
			Jobs:        a.Jobs,
			Publisher:   jobQueue,
			Graph:       a.Graph,
			Log:         log,
			CORSOrigins: cfg.API.CORSOrigins,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.API.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping run queue")
	}
	cancelWorker()
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close run queue")
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error releasing resources")
	}

	log.Info().Msg("Server exited")
}
