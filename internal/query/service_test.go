package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/traffic-server/internal/apperr"
	"github.com/smukkama/traffic-server/internal/database"
)

type fakeReader struct {
	nearCalls     []database.NearQuery
	locationCalls [][2]int
	views         []database.MeasurementView
	err           error
}

func (r *fakeReader) FindNear(ctx context.Context, q database.NearQuery) ([]database.MeasurementView, error) {
	r.nearCalls = append(r.nearCalls, q)
	if r.err != nil {
		return nil, r.err
	}
	n := min(q.Limit, len(r.views))
	return r.views[:n], nil
}

func (r *fakeReader) FindByLocation(ctx context.Context, locationID, limit int) ([]database.MeasurementView, error) {
	r.locationCalls = append(r.locationCalls, [2]int{locationID, limit})
	if r.err != nil {
		return nil, r.err
	}
	var out []database.MeasurementView
	for _, v := range r.views {
		if v.LocationID == locationID && len(out) < limit {
			out = append(out, v)
		}
	}
	return out, nil
}

type mapCache struct {
	entries map[string][]database.MeasurementView
	getErr  error
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]database.MeasurementView)}
}

func (c *mapCache) Get(ctx context.Context, key string) ([]database.MeasurementView, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, views []database.MeasurementView) error {
	c.sets++
	c.entries[key] = views
	return nil
}

func fptr(f float64) *float64 { return &f }
func iptr(i int) *int         { return &i }

func TestService_FindNear_Defaults(t *testing.T) {
	reader := &fakeReader{}
	s := NewService(reader, nil, nil)

	_, err := s.FindNear(context.Background(), NearParams{Lat: fptr(51.05), Lon: fptr(3.73)})
	require.NoError(t, err)

	require.Len(t, reader.nearCalls, 1)
	q := reader.nearCalls[0]
	assert.Equal(t, DefaultRadius, q.Radius)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.True(t, q.HasPoint())
}

func TestService_FindNear_NonPositiveLimitUsesDefault(t *testing.T) {
	reader := &fakeReader{}
	s := NewService(reader, nil, nil)

	_, err := s.FindNear(context.Background(), NearParams{Limit: iptr(0)})
	require.NoError(t, err)
	_, err = s.FindNear(context.Background(), NearParams{Limit: iptr(-5)})
	require.NoError(t, err)
	_, err = s.FindNear(context.Background(), NearParams{Limit: iptr(3), Radius: fptr(0.5)})
	require.NoError(t, err)

	require.Len(t, reader.nearCalls, 3)
	assert.Equal(t, DefaultLimit, reader.nearCalls[0].Limit)
	assert.Equal(t, DefaultLimit, reader.nearCalls[1].Limit)
	assert.Equal(t, 3, reader.nearCalls[2].Limit)
	assert.Equal(t, 0.5, reader.nearCalls[2].Radius)
}

func TestService_FindNear_WithoutPointIsUnfiltered(t *testing.T) {
	reader := &fakeReader{views: []database.MeasurementView{
		{LocationID: 3}, {LocationID: 2}, {LocationID: 1},
	}}
	s := NewService(reader, nil, nil)

	views, err := s.FindNear(context.Background(), NearParams{Lat: fptr(51), Limit: iptr(2)})
	require.NoError(t, err)

	assert.False(t, reader.nearCalls[0].HasPoint())
	require.Len(t, views, 2)
	assert.Equal(t, 3, views[0].LocationID)
}

func TestService_FindByLocation_NonNumericIsZero(t *testing.T) {
	reader := &fakeReader{views: []database.MeasurementView{{LocationID: 29}}}
	s := NewService(reader, nil, nil)

	abc, err := s.FindByLocation(context.Background(), "abc", nil)
	require.NoError(t, err)
	zero, err := s.FindByLocation(context.Background(), "0", nil)
	require.NoError(t, err)

	assert.Equal(t, zero, abc)
	assert.NotNil(t, abc)
	assert.Empty(t, abc)
	assert.Equal(t, [][2]int{{0, DefaultLimit}, {0, DefaultLimit}}, reader.locationCalls)
}

func TestService_FindByLocation(t *testing.T) {
	reader := &fakeReader{views: []database.MeasurementView{
		{LocationID: 29, TotalVehiclesPassed: 3},
		{LocationID: 30},
		{LocationID: 29, TotalVehiclesPassed: 2},
	}}
	s := NewService(reader, nil, nil)

	views, err := s.FindByLocation(context.Background(), "29", iptr(1))
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 3, views[0].TotalVehiclesPassed)
}

func TestService_StoreErrorIsDatabaseError(t *testing.T) {
	reader := &fakeReader{err: errors.New("connection refused")}
	s := NewService(reader, nil, nil)

	_, err := s.FindNear(context.Background(), NearParams{})
	require.Error(t, err)

	appErr := apperr.From(err)
	assert.Equal(t, apperr.CodeDatabase, appErr.Code)
	assert.Equal(t, 500, appErr.Status())
}

func TestService_CacheHitSkipsReader(t *testing.T) {
	reader := &fakeReader{views: []database.MeasurementView{{LocationID: 29}}}
	c := newMapCache()
	s := NewService(reader, nil, nil)
	s.SetCache(c)

	first, err := s.FindByLocation(context.Background(), "29", nil)
	require.NoError(t, err)
	second, err := s.FindByLocation(context.Background(), "29", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, reader.locationCalls, 1)
	assert.Equal(t, 1, c.sets)
}

func TestService_CacheErrorFallsThrough(t *testing.T) {
	reader := &fakeReader{views: []database.MeasurementView{{LocationID: 1}}}
	c := newMapCache()
	c.getErr = errors.New("redis down")
	s := NewService(reader, nil, nil)
	s.SetCache(c)

	views, err := s.FindNear(context.Background(), NearParams{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
	assert.Len(t, reader.nearCalls, 1)
}

func TestParseLocationID(t *testing.T) {
	cases := map[string]int{
		"29":   29,
		" 30 ": 30,
		"abc":  0,
		"":     0,
		"1.5":  0,
		"-4":   -4,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseLocationID(raw), "raw=%q", raw)
	}
}
