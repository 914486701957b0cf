package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"carousel/internal/adapter/repo"
	"carousel/internal/http/handlers"
	httpapi "carousel/internal/http/httpapi"
	"carousel/internal/infra"
	"carousel/internal/infra/credentials"
	"carousel/internal/processor"
	"carousel/internal/providers/genai"
	"carousel/internal/storage"
)

// drainTimeout is how long running jobs may continue after a shutdown signal.
const drainTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobRepo := repo.NewJobRepository(runner)

	fileStore, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	geminiAPIKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if geminiAPIKey == "" {
		keyFromStore, err := credentials.NewStore(runner).GeminiAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load gemini api key from store")
		} else {
			geminiAPIKey = keyFromStore
		}
	}
	geminiClient := genai.NewClient(genai.Options{
		APIKey:     geminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		Logger:     &logger,
	})
	if geminiAPIKey == "" {
		logger.Warn().Str("model", geminiClient.Model()).Msg("worker: gemini api key missing, using synthetic images")
	}

	// Jobs outlive the signal context so a shutdown can drain them.
	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	jobsRunner := processor.NewRunner(runCtx, processor.New(jobRepo, geminiClient, fileStore, logger), cfg.WorkerConcurrency, logger)

	router := httpapi.NewWorkerRouter(&handlers.Functions{Runner: jobsRunner, Logger: logger}, cfg.ProcessorToken, logger)
	server := infra.NewHTTPServer(cfg, cfg.WorkerPort, router, cfg.HTTPWriteTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Msgf("worker: listening on :%s", cfg.WorkerPort)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: server stopped with error")
	}

	drained := make(chan struct{})
	go func() {
		jobsRunner.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		logger.Warn().Msg("worker: drain timeout, aborting running jobs")
		cancelRuns()
		<-drained
	}
	logger.Info().Msg("worker: stopped")
}
