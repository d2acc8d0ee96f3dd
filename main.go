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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/camden-git/labelsysbackend/config"
	"github.com/camden-git/labelsysbackend/database"
	"github.com/camden-git/labelsysbackend/handlers"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/media"
	"github.com/camden-git/labelsysbackend/metrics"
	"github.com/camden-git/labelsysbackend/realtime"
	"github.com/camden-git/labelsysbackend/repository"
	"github.com/camden-git/labelsysbackend/services"
	"github.com/camden-git/labelsysbackend/workers"
)

const requestTimeout = 60 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if _, err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	l := logger.L()

	for _, p := range []string{cfg.OriginalsPath, cfg.ThumbnailsPath} {
		if err := os.MkdirAll(p, 0755); err != nil {
			l.Fatal("failed to create storage directory", zap.String("path", p), zap.Error(err))
		}
	}

	db, err := database.InitGormDB(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		l.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.AutoMigrateModels(db); err != nil {
		l.Fatal("failed to migrate database", zap.Error(err))
	}

	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
		media.AssetTypeOriginal:  cfg.OriginalsSubDir,
		media.AssetTypeThumbnail: cfg.ThumbnailsSubDir,
	})
	if err != nil {
		l.Fatal("failed to initialize media store", zap.Error(err))
	}
	mediaProcessor := media.NewProcessor(mediaStore)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := realtime.NewHub()
	go hub.Run()

	l.Info("starting thumbnail workers",
		zap.Int("workers", cfg.NumThumbnailWorkers),
		zap.Int("queue_size", cfg.ThumbnailQueueSize),
		zap.Int("max_size", cfg.ThumbnailMaxSize))
	thumbGen := workers.NewThumbnailGenerator(mediaProcessor, repository.NewImageRepository(db), hub, m,
		cfg.ThumbnailMaxSize, cfg.ThumbnailQueueSize, cfg.NumThumbnailWorkers)

	accounts := services.NewAccounts(repository.NewGormUserRepository(db), cfg.JWTSecret, cfg.JWTExpiration)
	projects := services.NewProjectDirectory(db, mediaStore)
	catalog := services.NewImageCatalog(db, mediaStore, thumbGen, hub)

	ctx := context.Background()
	if err := accounts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		l.Fatal("failed to seed admin user", zap.Error(err))
	}
	if n, err := catalog.RequeueMissingThumbnails(ctx, cfg.ThumbnailQueueSize); err != nil {
		l.Warn("failed to requeue missing thumbnails", zap.Error(err))
	} else if n > 0 {
		l.Info("requeued missing thumbnails", zap.Int("count", n))
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Accounts:    accounts,
		Projects:    projects,
		Classes:     services.NewClassRegistry(db),
		Assignments: services.NewAssignmentDistributor(db, hub, m),
		Images:      catalog,
		Annotations: services.NewAnnotationStore(db, hub, m),
		Splitter:    services.NewDatasetSplitter(db, nil, hub),
		Exporter:    services.NewDatasetExporter(db, mediaStore, cfg.ExportBatchSize, m),

		DefaultTrainRatio:  cfg.DefaultTrainRatio,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout:     requestTimeout,

		Realtime: http.HandlerFunc(hub.ServeWS),
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		l.Info("server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("server shutdown failed", zap.Error(err))
	}
	thumbGen.Stop()
	hub.Stop()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	l.Info("shutdown complete")
}
