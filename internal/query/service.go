package query

import (
	"context"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/smukkama/traffic-server/internal/apperr"
	"github.com/smukkama/traffic-server/internal/cache"
	"github.com/smukkama/traffic-server/internal/database"
	"github.com/smukkama/traffic-server/internal/observability"
)

const (
	DefaultRadius = 1000.0
	DefaultLimit  = 20
)

const identifier = "query"

// Reader is the read side of the measurement store
type Reader interface {
	FindNear(ctx context.Context, q database.NearQuery) ([]database.MeasurementView, error)
	FindByLocation(ctx context.Context, locationID, limit int) ([]database.MeasurementView, error)
}

// Cache holds query results keyed by normalized parameters
type Cache interface {
	Get(ctx context.Context, key string) ([]database.MeasurementView, bool, error)
	Set(ctx context.Context, key string, views []database.MeasurementView) error
}

// NearParams are the raw parameters of a proximity query. Nil fields take
// their defaults.
type NearParams struct {
	Lat    *float64
	Lon    *float64
	Radius *float64
	Limit  *int
}

// Service answers measurement queries
type Service struct {
	reader  Reader
	cache   Cache
	logger  *log.Logger
	metrics *observability.Metrics
}

// NewService creates a query service. logger and metrics may be nil.
func NewService(reader Reader, logger *log.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{reader: reader, logger: logger, metrics: metrics}
}

// SetCache puts a cache in front of the reader
func (s *Service) SetCache(c Cache) {
	s.cache = c
}

// FindNear returns the most recent measurements around a point. With no
// complete point it returns the most recent measurements overall.
func (s *Service) FindNear(ctx context.Context, p NearParams) ([]database.MeasurementView, error) {
	q := database.NearQuery{
		Lat:    p.Lat,
		Lon:    p.Lon,
		Radius: DefaultRadius,
		Limit:  normalizeLimit(p.Limit),
	}
	if p.Radius != nil {
		q.Radius = *p.Radius
	}

	key := cache.NearKey(q.Lat, q.Lon, q.Radius, q.Limit)
	return s.cached(ctx, "find_near", key, func() ([]database.MeasurementView, error) {
		return s.reader.FindNear(ctx, q)
	})
}

// FindByLocation returns the most recent measurements of one location.
// A non-numeric id is treated as 0.
func (s *Service) FindByLocation(ctx context.Context, rawID string, limit *int) ([]database.MeasurementView, error) {
	id := ParseLocationID(rawID)
	n := normalizeLimit(limit)

	key := cache.LocationKey(id, n)
	return s.cached(ctx, "find_by_location", key, func() ([]database.MeasurementView, error) {
		return s.reader.FindByLocation(ctx, id, n)
	})
}

func (s *Service) cached(ctx context.Context, operation, key string, load func() ([]database.MeasurementView, error)) ([]database.MeasurementView, error) {
	if s.cache != nil {
		views, hit, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.RecordCache("error")
			s.logger.Printf("Cache lookup %s failed: %v", key, err)
		case hit:
			s.metrics.RecordCache("hit")
			return views, nil
		default:
			s.metrics.RecordCache("miss")
		}
	}

	start := time.Now()
	views, err := load()
	s.metrics.RecordQuery(operation, time.Since(start), err)
	if err != nil {
		return nil, apperr.Internal(identifier, apperr.CodeDatabase, err)
	}
	if views == nil {
		views = []database.MeasurementView{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, views); err != nil {
			s.metrics.RecordCache("error")
			s.logger.Printf("Cache store %s failed: %v", key, err)
		}
	}

	return views, nil
}

// ParseLocationID converts a path segment to a location id. Anything that
// is not an integer maps to 0, which matches no location.
func ParseLocationID(raw string) int {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return id
}

func normalizeLimit(limit *int) int {
	if limit == nil || *limit <= 0 {
		return DefaultLimit
	}
	return *limit
}
