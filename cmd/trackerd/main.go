package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"vehicle-tracker-backend/config"
	"vehicle-tracker-backend/internal/api"
	"vehicle-tracker-backend/internal/db"
	"vehicle-tracker-backend/internal/detector"
	"vehicle-tracker-backend/internal/enrich"
	"vehicle-tracker-backend/internal/feed"
	"vehicle-tracker-backend/internal/ingest"
	"vehicle-tracker-backend/internal/metrics"
	"vehicle-tracker-backend/internal/notify"
	"vehicle-tracker-backend/internal/publisher"
	"vehicle-tracker-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "trackerd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Feed.URL == "" {
		logger.Fatalf("feed.url must be configured")
	}

	loc, err := time.LoadLocation(cfg.Ingest.Timezone)
	if err != nil {
		logger.Fatalf("invalid ingest.timezone %q: %v", cfg.Ingest.Timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	appStore := store.NewRedisStore(client)
	if err := appStore.Ping(ctx); err != nil {
		logger.Fatalf("failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
	}
	logger.Println("data store initialized")

	// Optional GTFS static enrichment
	var catalog *enrich.Catalog
	if cfg.Enrichment.Enabled && cfg.Enrichment.DSN != "" {
		gormDB, err := db.Init(&cfg.Enrichment)
		if err != nil {
			logger.Fatalf("failed to initialize enrichment database: %v", err)
		}
		catalog = enrich.NewCatalog(gormDB, loc)
		if err := catalog.Load(ctx); err != nil {
			logger.Printf("Warning: failed to load GTFS static data: %v. Continuing without enrichment.", err)
			catalog = nil
		} else {
			logger.Println("GTFS static catalog loaded")
		}
	}

	// Ingestion pipeline
	collector := metrics.NewCollector(cfg.Ingest.Interval)
	fetcher := feed.NewFetcher(cfg.Feed.URL, cfg.Feed.Headers, time.Duration(cfg.Feed.TimeoutSeconds)*time.Second)
	normalizer := feed.NewNormalizer(loc, time.Duration(cfg.Feed.MaxPositionAgeSeconds)*time.Second)
	det := detector.New(loc)
	pub := publisher.New(appStore, catalog, cfg.Ingest.TrackTailLength)
	pool := notify.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize, appStore)

	ingestSvc := ingest.NewService(cfg, appStore, fetcher, normalizer, det, pub, pool, collector)
	go ingestSvc.Run(ctx)

	// HTTP API
	router := api.NewRouter(&cfg.Server, api.NewHandler(appStore, ingestSvc, fetcher), collector.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	// Stop the ingestion loop and let any in-flight cycle drain before the
	// redis client goes away underneath it.
	cancel()
	ingestSvc.WaitIdle()

	if err := client.Close(); err != nil {
		logger.Printf("closing redis client: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
