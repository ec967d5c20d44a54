package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/traffic-server/internal/apperr"
	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/feed"
	"github.com/smukkama/traffic-server/internal/ingest"
	"github.com/smukkama/traffic-server/internal/queue"
	"github.com/smukkama/traffic-server/pkg/config"
)

// Runs a single ingestion and exits non-zero on failure.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed (%s): %v\n", apperr.CodeOf(err), err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	fmt.Println("Starting one-shot ingestion...")

	db, err := database.Connect(cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return apperr.Internal("ingest", apperr.CodeDatabase, err)
	}
	defer db.Close()
	db.SetBatchSize(cfg.Ingestion.BatchSize)

	if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		return apperr.Internal("migrations", apperr.CodeIO, err)
	}

	pipeline := ingest.NewPipeline(
		ingest.Config{
			MeasurementsURL: cfg.Ingestion.MeasurementsURL,
			LocationsURL:    cfg.Ingestion.LocationsURL,
		},
		feed.NewHTTPFetcher(cfg.Ingestion.FetchTimeout),
		db,
		log.New(os.Stdout, "[ingest] ", log.LstdFlags),
		nil,
	)
	if cfg.Ingestion.VehicleClassSink {
		pipeline.SetClassReadingSink(db)
	}
	if cfg.Kafka.Enabled {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMeasurements)
		defer producer.Close()
		pipeline.SetPublisher(producer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Ingestion %s done: %d measurements written, %d points skipped\n",
		res.RunID, res.MeasurementsInserted, res.SkippedPoints)
	return nil
}
