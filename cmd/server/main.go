package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/demoreel/demoreel-server/internal/config"
	"github.com/demoreel/demoreel-server/internal/database"
	"github.com/demoreel/demoreel-server/internal/handler"
	"github.com/demoreel/demoreel-server/internal/jobs"
	"github.com/demoreel/demoreel-server/internal/media"
	"github.com/demoreel/demoreel-server/internal/middleware"
	"github.com/demoreel/demoreel-server/internal/notify"
	"github.com/demoreel/demoreel-server/internal/queue"
	"github.com/demoreel/demoreel-server/internal/redis"
	"github.com/demoreel/demoreel-server/internal/repository"
	"github.com/demoreel/demoreel-server/internal/service"
	"github.com/demoreel/demoreel-server/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	store, err := storage.NewS3Store(context.Background(), cfg.MediaBucket)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init object store")
	}

	processor := media.NewRunner(cfg.FFmpegPath, cfg.FFprobePath)
	sessionRepo := repository.NewSessionRepository(db.DB)
	dispatcher := queue.NewRedisDispatcher(redisClient)

	sessionService := service.NewSessionService(sessionRepo, cfg.SessionTTL())
	uploadService := service.NewUploadService(sessionRepo, store, dispatcher, cfg.UploadURLTTL())
	validatorService := service.NewValidatorService(sessionRepo, store, processor, dispatcher, service.PolicyFromConfig(cfg))
	converterService := service.NewConverterService(sessionRepo, store, processor, dispatcher)
	jobService := service.NewJobService(sessionRepo, dispatcher)
	slideService := service.NewSlideService(sessionRepo, store, processor, dispatcher, cfg.SlideSeconds)
	stitcherService := service.NewStitcherService(sessionRepo, store, processor, dispatcher, cfg.DownloadURLTTL())
	cleanupService := service.NewCleanupService(sessionRepo, store, cfg.RetentionWindow(), cfg.FailedRetentionWindow())
	optimizerService := service.NewOptimizerService(sessionRepo, store, processor, dispatcher, cleanupService, cfg.DownloadURLTTL())
	statusService := service.NewStatusService(sessionRepo)

	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
	} else {
		notifier = notify.NewLogNotifier()
	}

	pool := queue.NewPool(redisClient, cfg.WorkerCount)
	pool.Register(queue.KindValidateClip, validatorService.HandleValidate)
	pool.Register(queue.KindConvertClip, converterService.HandleConvert)
	pool.Register(queue.KindCreateSlides, slideService.HandleCreateSlides)
	pool.Register(queue.KindStitchVideos, stitcherService.HandleStitch)
	pool.Register(queue.KindOptimizeVideo, optimizerService.HandleOptimize)
	pool.Register(queue.KindNotify, func(ctx context.Context, task queue.Task) error {
		return notifier.Notify(ctx, notify.Event{
			SessionID:   task.SessionID,
			ProjectName: task.ProjectName,
			Event:       task.Event,
			Detail:      task.Detail,
			Timestamp:   task.Timestamp,
		})
	})
	pool.Start()
	defer pool.Stop()

	sessionHandler := handler.NewSessionHandler(sessionService, uploadService, jobService, statusService)
	eventsHandler := handler.NewEventsHandler(uploadService)
	adminHandler := handler.NewAdminHandler(db, cleanupService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.RequestBodyLimit)

	r.Get("/health", adminHandler.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/sessions", sessionHandler.Routes())
		r.Post("/events/storage", eventsHandler.HandleStorageEvent)
		r.Post("/cleanup", adminHandler.RunCleanup)
	})

	cleanupJob := jobs.NewCleanupJob(cleanupService, cfg.CleanupInterval())
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
