package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/traffic-server/internal/database"
)

const keyPrefix = "traffic_query:"

// QueryCache stores measurement query results in Redis
type QueryCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewQueryCache creates a new query cache. Entries expire after ttl.
func NewQueryCache(redisClient *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{redis: redisClient, ttl: ttl}
}

// Get retrieves a cached result. The boolean is false on a miss.
func (c *QueryCache) Get(ctx context.Context, key string) ([]database.MeasurementView, bool, error) {
	data, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get query result from Redis: %w", err)
	}

	var views []database.MeasurementView
	if err := json.Unmarshal([]byte(data), &views); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal query result: %w", err)
	}
	if views == nil {
		views = []database.MeasurementView{}
	}

	return views, true, nil
}

// Set saves a query result under key
func (c *QueryCache) Set(ctx context.Context, key string, views []database.MeasurementView) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to marshal query result: %w", err)
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set query result in Redis: %w", err)
	}

	return nil
}

// Invalidate drops every cached query result. Returns the number of keys
// removed.
func (c *QueryCache) Invalidate(ctx context.Context) (int, error) {
	var removed int
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan query keys: %w", err)
	}
	return removed, nil
}

// Ping checks the Redis connection
func (c *QueryCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// NearKey builds the key for a FindNear query. Without a complete point the
// radius does not affect the result and is left out.
func NearKey(lat, lon *float64, radius float64, limit int) string {
	if lat == nil || lon == nil {
		return fmt.Sprintf("%snear:any:%d", keyPrefix, limit)
	}
	return fmt.Sprintf("%snear:%s:%s:%s:%d", keyPrefix,
		formatFloat(*lat), formatFloat(*lon), formatFloat(radius), limit)
}

// LocationKey builds the key for a FindByLocation query
func LocationKey(locationID, limit int) string {
	return fmt.Sprintf("%slocation:%d:%d", keyPrefix, locationID, limit)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
