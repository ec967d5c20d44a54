package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/traffic-server/internal/aggregation"
	"github.com/smukkama/traffic-server/internal/apperr"
	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/feed"
	"github.com/smukkama/traffic-server/internal/observability"
)

const identifier = "ingest"

// Store persists locations and aggregated measurements
type Store interface {
	InsertLocations(ctx context.Context, locations []database.Location) (*database.BatchResult, error)
	InsertMeasurements(ctx context.Context, measurements []database.AggregatedMeasurement) (*database.BatchResult, error)
}

// ClassReadingSink persists per-vehicle-class readings
type ClassReadingSink interface {
	InsertVehicleClassMeasurements(ctx context.Context, readings []database.VehicleClassMeasurement) (*database.BatchResult, error)
}

// Publisher announces the measurements written by a run
type Publisher interface {
	PublishMeasurements(ctx context.Context, runID uuid.UUID, measurements []database.AggregatedMeasurement) error
}

// Config holds the feed locations for a pipeline
type Config struct {
	MeasurementsURL string
	LocationsURL    string
}

// Result summarizes one ingestion run
type Result struct {
	RunID                uuid.UUID
	StartedAt            time.Time
	Duration             time.Duration
	PublicationTime      time.Time
	Points               int
	Locations            int
	Measurements         int
	SkippedPoints        int
	LocationsInserted    int64
	MeasurementsInserted int64
	ClassReadingsWritten int64
	Published            int
}

// Pipeline runs fetch, parse, aggregate and write for both feeds
type Pipeline struct {
	cfg       Config
	fetcher   feed.Fetcher
	store     Store
	classSink ClassReadingSink
	publisher Publisher
	logger    *log.Logger
	metrics   *observability.Metrics
}

// NewPipeline creates a pipeline. logger and metrics may be nil.
func NewPipeline(cfg Config, fetcher feed.Fetcher, store Store, logger *log.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pipeline{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// SetClassReadingSink enables writing per-class readings
func (p *Pipeline) SetClassReadingSink(sink ClassReadingSink) {
	p.classSink = sink
}

// SetPublisher enables publishing each run's measurements
func (p *Pipeline) SetPublisher(pub Publisher) {
	p.publisher = pub
}

// Run performs one ingestion run. Locations are written before
// measurements. The first failing stage ends the run; chunks already
// committed stay committed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.New(), StartedAt: time.Now()}

	err := p.run(ctx, res)
	res.Duration = time.Since(res.StartedAt)
	p.metrics.RecordIngestRun(err, res.Duration)

	if err != nil {
		p.logger.Printf("Run %s failed after %v: %v", res.RunID, res.Duration, err)
		return res, err
	}

	p.logger.Printf("Run %s completed in %v: %d points, %d locations (%d new), %d measurements (%d new), %d skipped",
		res.RunID, res.Duration.Round(time.Millisecond), res.Points,
		res.Locations, res.LocationsInserted,
		res.Measurements, res.MeasurementsInserted, res.SkippedPoints)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	measurementDoc, locationDoc, err := p.fetchBoth(ctx)
	if err != nil {
		return apperr.Internal(identifier, apperr.CodeFetch, err)
	}

	snapshot, err := feed.ParseMeasurements(measurementDoc)
	if err != nil {
		return apperr.Internal(identifier, apperr.CodeDecode, err)
	}
	locations, err := feed.ParseLocations(locationDoc)
	if err != nil {
		return apperr.Internal(identifier, apperr.CodeDecode, err)
	}
	res.PublicationTime = snapshot.PublicationTime
	res.Points = len(snapshot.Points)

	dir := NewDirectory(locations.Points)
	measurements, skipped := aggregation.AggregateAll(snapshot.Points, dir)
	res.Locations = dir.Len()
	res.Measurements = len(measurements)
	res.SkippedPoints = skipped
	p.metrics.AddSkippedPoints(skipped)

	locResult, err := p.store.InsertLocations(ctx, dir.Locations())
	if err != nil {
		return apperr.Internal(identifier, apperr.CodeDatabase, fmt.Errorf("write locations: %w", err))
	}
	res.LocationsInserted = locResult.RowsInserted
	p.metrics.RecordBatch("locations", locResult.Chunks, locResult.RowsSubmitted, locResult.RowsInserted)

	mResult, err := p.store.InsertMeasurements(ctx, measurements)
	if err != nil {
		return apperr.Internal(identifier, apperr.CodeDatabase, fmt.Errorf("write measurements: %w", err))
	}
	res.MeasurementsInserted = mResult.RowsInserted
	p.metrics.RecordBatch("traffic_measurements", mResult.Chunks, mResult.RowsSubmitted, mResult.RowsInserted)

	if p.classSink != nil {
		readings := aggregation.ClassReadings(snapshot.Points, dir)
		cResult, err := p.classSink.InsertVehicleClassMeasurements(ctx, readings)
		if err != nil {
			return apperr.Internal(identifier, apperr.CodeDatabase, fmt.Errorf("write vehicle class readings: %w", err))
		}
		res.ClassReadingsWritten = cResult.RowsInserted
		p.metrics.RecordBatch("traffic_vehicle_measurements", cResult.Chunks, cResult.RowsSubmitted, cResult.RowsInserted)
	}

	if p.publisher != nil && len(measurements) > 0 {
		if err := p.publisher.PublishMeasurements(ctx, res.RunID, measurements); err != nil {
			return apperr.Internal(identifier, apperr.CodePublish, err)
		}
		res.Published = len(measurements)
		p.metrics.AddPublished(len(measurements))
	}

	return nil
}

// fetchBoth retrieves the two documents concurrently. The first failure
// cancels the other request.
func (p *Pipeline) fetchBoth(ctx context.Context) (measurements, locations []byte, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		data, err := p.fetcher.Fetch(gctx, p.cfg.MeasurementsURL)
		p.metrics.RecordFetch("measurement", time.Since(start))
		measurements = data
		return err
	})
	g.Go(func() error {
		start := time.Now()
		data, err := p.fetcher.Fetch(gctx, p.cfg.LocationsURL)
		p.metrics.RecordFetch("location", time.Since(start))
		locations = data
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return measurements, locations, nil
}
