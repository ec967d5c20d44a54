package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// fakeExecer records statements and fails the call with index failAt.
type fakeExecer struct {
	calls  []execCall
	failAt int
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if len(f.calls)-1 == f.failAt {
		return nil, errors.New("connection reset")
	}
	cols := strings.Count(query[:strings.Index(query, ")")], ",") + 1
	return fakeResult(len(args) / cols), nil
}

func newFakeExecer() *fakeExecer {
	return &fakeExecer{failAt: -1}
}

var testTable = Table{
	Name:            "things",
	Columns:         []string{"id", "a", "b"},
	ConflictColumns: []string{"id"},
}

func makeRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i, fmt.Sprintf("a%d", i), i * 10}
	}
	return rows
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

func TestBatchInserter_ChunkCount(t *testing.T) {
	cases := []struct {
		rows   int
		chunks int
	}{
		{0, 0},
		{1, 1},
		{999, 1},
		{1000, 1},
		{1001, 2},
		{2500, 3},
		{3000, 3},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d rows", tc.rows), func(t *testing.T) {
			exec := newFakeExecer()
			inserter := NewBatchInserter(exec, 1000)

			res, err := inserter.Insert(context.Background(), testTable, makeRows(tc.rows))
			require.NoError(t, err)

			assert.Len(t, exec.calls, tc.chunks)
			assert.Equal(t, tc.chunks, res.Chunks)
			assert.Equal(t, tc.rows, res.RowsSubmitted)
			assert.EqualValues(t, tc.rows, res.RowsInserted)

			for _, call := range exec.calls {
				assert.LessOrEqual(t, len(call.args), 1000*len(testTable.Columns))
			}
		})
	}
}

func TestBatchInserter_PlaceholdersRestartPerChunk(t *testing.T) {
	exec := newFakeExecer()
	inserter := NewBatchInserter(exec, 1000)

	rows := makeRows(1001)
	_, err := inserter.Insert(context.Background(), testTable, rows)
	require.NoError(t, err)
	require.Len(t, exec.calls, 2)

	first := placeholderRe.FindAllStringSubmatch(exec.calls[0].query, -1)
	require.Len(t, first, 3000)
	for i, m := range first {
		assert.Equal(t, fmt.Sprint(i+1), m[1])
	}

	second := exec.calls[1]
	assert.Equal(t,
		"INSERT INTO things (id, a, b) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
		second.query)
	// The last row lands in the second chunk with its own values
	assert.Equal(t, []any{1000, "a1000", 10000}, second.args)
}

func TestBatchInserter_ArgsFollowRowOrder(t *testing.T) {
	exec := newFakeExecer()
	inserter := NewBatchInserter(exec, 2)

	_, err := inserter.Insert(context.Background(), testTable, makeRows(3))
	require.NoError(t, err)
	require.Len(t, exec.calls, 2)

	assert.Equal(t,
		"INSERT INTO things (id, a, b) VALUES ($1, $2, $3), ($4, $5, $6) ON CONFLICT (id) DO NOTHING",
		exec.calls[0].query)
	assert.Equal(t, []any{0, "a0", 0, 1, "a1", 10}, exec.calls[0].args)
	assert.Equal(t, []any{2, "a2", 20}, exec.calls[1].args)
}

func TestBatchInserter_RowArityMismatch(t *testing.T) {
	exec := newFakeExecer()
	inserter := NewBatchInserter(exec, 2)

	rows := makeRows(5)
	rows[3] = []any{3, "a3"}

	res, err := inserter.Insert(context.Background(), testTable, rows)
	assert.Nil(t, res)

	var arityErr *RowArityError
	require.True(t, errors.As(err, &arityErr))
	assert.Equal(t, 3, arityErr.Row)
	assert.Equal(t, 2, arityErr.Got)
	assert.Equal(t, 3, arityErr.Want)
	// Validation happens before anything is written
	assert.Empty(t, exec.calls)
}

func TestBatchInserter_FailedChunkStopsRun(t *testing.T) {
	exec := newFakeExecer()
	exec.failAt = 1
	inserter := NewBatchInserter(exec, 1000)

	res, err := inserter.Insert(context.Background(), testTable, makeRows(2500))
	assert.Nil(t, res)

	var batchErr *BatchWriteError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, "things", batchErr.Table)
	assert.Equal(t, 1, batchErr.Chunk)
	assert.Equal(t, 3, batchErr.Chunks)
	assert.Equal(t, 1000, batchErr.RowsCommitted)
	assert.EqualError(t, errors.Unwrap(batchErr), "connection reset")

	// Chunk 3 is never attempted
	assert.Len(t, exec.calls, 2)
}

func TestBatchInserter_NoConflictColumns(t *testing.T) {
	exec := newFakeExecer()
	inserter := NewBatchInserter(exec, 10)

	table := Table{Name: "events", Columns: []string{"x"}}
	_, err := inserter.Insert(context.Background(), table, [][]any{{1}})
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO events (x) VALUES ($1) ON CONFLICT DO NOTHING", exec.calls[0].query)
}

func TestNewBatchInserter_DefaultSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, NewBatchInserter(newFakeExecer(), 0).BatchSize())
	assert.Equal(t, 50, NewBatchInserter(newFakeExecer(), 50).BatchSize())
}

func TestBatchInserter_EntityTablesMatchRowBuilders(t *testing.T) {
	exec := newFakeExecer()
	db := &DB{inserter: NewBatchInserter(exec, 1000)}
	ctx := context.Background()

	_, err := db.InsertLocations(ctx, []Location{{LocationID: 1, Latitude: 51.0, Longitude: 3.7}})
	require.NoError(t, err)
	_, err = db.InsertMeasurements(ctx, []AggregatedMeasurement{{LocationID: 1}})
	require.NoError(t, err)
	_, err = db.InsertVehicleClassMeasurements(ctx, []VehicleClassMeasurement{{LocationID: 1, VehicleClass: "CARS"}})
	require.NoError(t, err)

	require.Len(t, exec.calls, 3)
	assert.Contains(t, exec.calls[0].query, "ON CONFLICT (location_id) DO NOTHING")
	assert.Contains(t, exec.calls[1].query, "ON CONFLICT (location_id, observation_time) DO NOTHING")
	assert.Contains(t, exec.calls[2].query, "ON CONFLICT (location_id, observation_time, vehicle_class) DO NOTHING")
}
