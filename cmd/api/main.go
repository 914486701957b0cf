package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"carousel/internal/adapter/repo"
	"carousel/internal/changefeed"
	"carousel/internal/drive"
	"carousel/internal/events"
	"carousel/internal/http/handlers"
	httpapi "carousel/internal/http/httpapi"
	"carousel/internal/infra"
	"carousel/internal/infra/credentials"
	"carousel/internal/jobs"
	"carousel/internal/mirror"
	"carousel/internal/poller"
	"carousel/internal/processor"
	"carousel/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	if err := infra.Migrate(ctx, dbpool, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	runner := infra.NewSQLRunner(dbpool, logger)
	jobRepo := repo.NewJobRepository(runner)
	templateRepo := repo.NewTemplateRepository(runner)
	credStore := credentials.NewStore(runner)

	mirrorStore, err := mirror.NewSQLiteStore(cfg.MirrorPath, cfg.MirrorCollection)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.MirrorPath).Msg("failed to open job mirror")
	}
	defer mirrorStore.Close()

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	g, gctx := errgroup.WithContext(ctx)

	// Events: local fan-out, bridged through Redis when configured.
	notifier := events.NewNotifier(0, logger)
	var publisher events.Publisher = notifier
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, events stay local")
	}
	if redisClient != nil {
		defer redisClient.Close()
		bridge := events.NewRedisBridge(redisClient, cfg.EventsChannel, notifier, logger)
		publisher = bridge
		g.Go(func() error {
			if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis bridge stopped")
			}
			return nil
		})
	}

	pollerOpts := []poller.Option{}
	if cfg.ChangeFeed {
		listener := changefeed.NewListener(dbpool, changefeed.DefaultChannel, logger)
		pollerOpts = append(pollerOpts, poller.WithChangeFeed(listener))
		g.Go(func() error {
			if err := listener.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("change feed stopped")
			}
			return nil
		})
	}
	watcher := poller.New(jobRepo, mirrorStore, publisher, poller.Config{
		Interval:         cfg.PollInterval,
		MaxDuration:      cfg.PollMaxDuration,
		FallbackInterval: cfg.PollFallback,
	}, logger, pollerOpts...)
	defer watcher.Close()

	trigger := processor.NewHTTPTrigger(cfg.ProcessorURL, cfg.ProcessorToken, &http.Client{Timeout: cfg.ProcessorTimeout})
	service := jobs.NewService(jobRepo, templateRepo, mirrorStore, publisher, trigger, watcher, logger,
		jobs.WithTriggerTimeout(cfg.ProcessorTimeout))

	if resumed, err := service.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to resume job watches")
	} else if resumed > 0 {
		logger.Info().Int("jobs", resumed).Msg("resumed job watches")
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.ReconcileCron, func() {
		rctx, cancel := context.WithTimeout(gctx, time.Minute)
		defer cancel()
		if _, err := service.Reconcile(rctx); err != nil {
			logger.Warn().Err(err).Msg("mirror reconcile failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ReconcileCron).Msg("invalid reconcile schedule")
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	app := handlers.NewApp(service, templateRepo, notifier, logger)
	app.DB = dbpool
	app.Drive = drive.NewSessions(drive.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleSecret), credStore, logger)
	images := drive.NewStoreImages(files, &http.Client{Timeout: time.Minute})
	app.Images = images
	app.Exporter = drive.NewExporter(images, logger)

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Static:          files.Handler(),
		Logger:          logger,
	})

	// Event streams stay open, so no write timeout; they end with gctx.
	server := infra.NewHTTPServer(cfg, cfg.Port, router, 0).WithBaseContext(gctx)

	g.Go(func() error {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}
