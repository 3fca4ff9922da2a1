package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"viralclip-backend/internal/blob"
	"viralclip-backend/internal/config"
	"viralclip-backend/internal/eventbus"
	"viralclip-backend/internal/handlers"
	"viralclip-backend/internal/logging"
	"viralclip-backend/internal/metrics"
	"viralclip-backend/internal/middleware"
	"viralclip-backend/internal/pipeline"
	"viralclip-backend/internal/pipeline/asr"
	"viralclip-backend/internal/pipeline/credit"
	"viralclip-backend/internal/pipeline/ffmpeg"
	"viralclip-backend/internal/scheduler"
	"viralclip-backend/internal/store"
	"viralclip-backend/internal/supabase"
	"viralclip-backend/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logging.New(cfg.Environment)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	migrator := store.NewMigrator(db.SQL(), log)
	if err := migrator.Run(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	log.Info().Str("max_upload_size", humanize.Bytes(uint64(cfg.MaxUploadBytes))).Msg("upload limits configured")

	blobStore := newBlobStore(cfg, log)

	jobRepo := store.NewJobRepo(db)
	uploadRepo := store.NewUploadRepo(db)
	blobRepo := store.NewBlobRepo(db)
	transcriptRepo := store.NewTranscriptRepo(db)
	artifactRepo := store.NewArtifactRepo(db)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	bus := eventbus.New(cfg.EventRingSize, newExternalPublisher(cfg, log))

	assembler := upload.NewAssembler(uploadRepo, blobRepo, blobStore, cfg.MaxUploadBytes, cfg.DefaultChunkSize, cfg.UploadTTL())

	plans := scheduler.NewStaticPlanResolver(nil)

	ffmpegAdapter := ffmpeg.New("", "")
	asrClient := asr.NewClient(os.Getenv("ASR_BASE_URL"), os.Getenv("ASR_API_KEY"))
	workDir := os.Getenv("PIPELINE_WORK_DIR")
	if workDir == "" {
		workDir = os.TempDir()
	}
	runner := pipeline.New(ffmpegAdapter, asrClient, blobStore, transcriptRepo, artifactRepo, credit.NoopHook{}, workDir, cfg.DefaultClipCount, log)

	sched := scheduler.New(jobRepo, blobRepo, bus, plans, runner, log, scheduler.Options{
		WorkerConcurrency: cfg.WorkerConcurrency,
		PerPrincipalLimit: cfg.PerPrincipalConcurrency,
		MaxAttempts:       cfg.MaxAttempts,
		RetryBase:         time.Duration(cfg.RetryBaseSeconds) * time.Second,
		RetryFactor:       cfg.RetryFactor,
		RetryJitter:       cfg.RetryJitter,
		JobDeadline:       cfg.JobDeadline(),
		LeaseTTL:          cfg.LeaseTTL(),
	})

	if err := sched.RecoverCrashed(); err != nil {
		log.Error().Err(err).Msg("crash recovery failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)
	go runUploadExpirySweep(ctx, assembler, log)

	router := newRouter(cfg, log, reg, assembler, sched, artifactRepo, blobStore)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, log zerolog.Logger, reg *prometheus.Registry, assembler *upload.Assembler, sched *scheduler.Scheduler, artifacts *store.ArtifactRepo, blobStore blob.Store) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging(log))

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	uploadHandler := handlers.NewUploadHandler(assembler)
	jobsHandler := handlers.NewJobsHandler(sched)
	eventsHandler := handlers.NewEventsHandler(sched)
	artifactsHandler := handlers.NewArtifactsHandler(sched, artifacts, blobStore)

	api := router.Group("/")
	api.Use(middleware.Auth(cfg))
	api.Use(middleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))

	api.POST("/upload/init", uploadHandler.Init)
	api.POST("/upload/chunk/:id", uploadHandler.Chunk)
	api.POST("/upload/complete/:id", uploadHandler.Complete)
	api.POST("/upload/abort/:id", uploadHandler.Abort)

	api.POST("/jobs", jobsHandler.Submit)
	api.GET("/jobs", jobsHandler.List)
	api.GET("/jobs/:id", jobsHandler.Get)
	api.GET("/jobs/:id/events", eventsHandler.Stream)
	api.POST("/jobs/:id/cancel", jobsHandler.Cancel)
	api.GET("/jobs/:id/artifacts", artifactsHandler.ListByJob)
	api.GET("/artifacts/:artifact_id", artifactsHandler.Get)

	return router
}

func runUploadExpirySweep(ctx context.Context, assembler *upload.Assembler, log zerolog.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := assembler.ExpireStale(ctx)
			if err != nil {
				log.Error().Err(err).Msg("upload expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("count", n).Msg("expired stale uploads")
			}
		}
	}
}

func newBlobStore(cfg *config.Config, log zerolog.Logger) blob.Store {
	if cfg.SupabaseURL != "" && cfg.SupabasePublishableKey != "" {
		s, err := blob.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize supabase blob store")
		}
		return s
	}

	log.Warn().Msg("SUPABASE_URL not set, using local filesystem blob store")
	s, err := blob.NewFSStore(os.TempDir() + "/viralclip-blobs")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize filesystem blob store")
	}
	return s
}

func newExternalPublisher(cfg *config.Config, log zerolog.Logger) eventbus.ExternalPublisher {
	if cfg.SupabaseURL == "" || cfg.SupabasePublishableKey == "" {
		return nil
	}
	client, err := supabase.NewClient(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize supabase realtime publisher, continuing without it")
		return nil
	}
	return eventbus.NewRealtimePublisher(client.Supabase)
}
