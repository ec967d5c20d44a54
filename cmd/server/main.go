package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/smukkama/traffic-server/internal/api"
	"github.com/smukkama/traffic-server/internal/cache"
	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/feed"
	"github.com/smukkama/traffic-server/internal/ingest"
	"github.com/smukkama/traffic-server/internal/observability"
	"github.com/smukkama/traffic-server/internal/query"
	"github.com/smukkama/traffic-server/internal/queue"
	"github.com/smukkama/traffic-server/internal/timer"
	"github.com/smukkama/traffic-server/pkg/config"
)

const ingestionJobID = "ingestion"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Traffic Server...")
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetBatchSize(cfg.Ingestion.BatchSize)
	fmt.Println("Connected to database")

	// Run migrations
	if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, registry)

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(
		ingest.Config{
			MeasurementsURL: cfg.Ingestion.MeasurementsURL,
			LocationsURL:    cfg.Ingestion.LocationsURL,
		},
		feed.NewHTTPFetcher(cfg.Ingestion.FetchTimeout),
		db,
		log.New(os.Stdout, "[ingest] ", log.LstdFlags),
		metrics,
	)

	if cfg.Ingestion.VehicleClassSink {
		pipeline.SetClassReadingSink(db)
		fmt.Println("Vehicle class readings will be stored")
	}

	if cfg.Kafka.Enabled {
		if err := queue.CreateTopic(
			cfg.Kafka.Brokers,
			cfg.Kafka.TopicMeasurements,
			cfg.Kafka.NumPartitions,
			1, // replication factor
		); err != nil {
			fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
		}

		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMeasurements)
		defer producer.Close()
		pipeline.SetPublisher(producer)
		fmt.Printf("Kafka producer initialized (topic=%s)\n", cfg.Kafka.TopicMeasurements)
	}

	// Query service and optional cache
	queryService := query.NewService(db, log.New(os.Stdout, "[query] ", log.LstdFlags), metrics)

	var queryCache *cache.QueryCache
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		queryCache = cache.NewQueryCache(redisClient, cfg.Cache.TTL)
		if err := queryCache.Ping(context.Background()); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		queryService.SetCache(queryCache)
		fmt.Printf("Query cache enabled (ttl=%s)\n", cfg.Cache.TTL)
	}

	// Schedule recurring ingestion
	timerManager := timer.NewTimerManager(2)
	timerManager.Start()
	defer timerManager.Stop()

	first := time.Now().Add(cfg.Ingestion.Interval)
	if cfg.Ingestion.RunOnStartup {
		first = time.Now()
	}

	err = timerManager.ScheduleEvery(ingestionJobID, first, cfg.Ingestion.Interval, func(ctx context.Context) {
		if _, err := pipeline.Run(ctx); err != nil {
			// Already logged by the pipeline; the next tick retries
			return
		}
		if queryCache != nil {
			if _, err := queryCache.Invalidate(ctx); err != nil {
				logger.Printf("Failed to invalidate query cache: %v", err)
			}
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule ingestion: %v", err)
	}
	fmt.Printf("Ingestion scheduled every %s (first run at %s)\n",
		cfg.Ingestion.Interval, first.Format("15:04:05"))

	// Read API
	apiServer := api.NewServer(&cfg.HTTP, queryService, db, registry, logger)
	if err := apiServer.Start(); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
	defer apiServer.Stop()

	fmt.Println("\n✓ Traffic Server is running")
	fmt.Printf("✓ HTTP API listening on %s\n", cfg.HTTP.Addr())
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
