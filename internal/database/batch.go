package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// DefaultBatchSize keeps a chunk well under Postgres' 65535 bind parameter limit.
const DefaultBatchSize = 1000

// Execer is the subset of *sql.DB / *sql.Tx the batch inserter needs
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Table declares an insert target and its uniqueness key
type Table struct {
	Name            string
	Columns         []string
	ConflictColumns []string
}

// BatchResult summarizes a successful Insert call
type BatchResult struct {
	Chunks        int
	RowsSubmitted int
	RowsInserted  int64
}

// RowArityError is returned when a row does not match the table's columns
type RowArityError struct {
	Table string
	Row   int
	Got   int
	Want  int
}

func (e *RowArityError) Error() string {
	return fmt.Sprintf("table %s: row %d has %d values, want %d", e.Table, e.Row, e.Got, e.Want)
}

// BatchWriteError is returned when a chunk fails. Chunks before Chunk are
// committed; chunks after it were never attempted.
type BatchWriteError struct {
	Table         string
	Chunk         int
	Chunks        int
	RowsCommitted int
	Err           error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("table %s: chunk %d/%d failed after %d rows committed: %v",
		e.Table, e.Chunk+1, e.Chunks, e.RowsCommitted, e.Err)
}

func (e *BatchWriteError) Unwrap() error {
	return e.Err
}

// BatchInserter writes rows as chunked multi-row inserts that skip
// conflicting keys
type BatchInserter struct {
	db        Execer
	batchSize int
}

// NewBatchInserter creates a batch inserter. A non-positive batchSize
// falls back to DefaultBatchSize.
func NewBatchInserter(db Execer, batchSize int) *BatchInserter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchInserter{db: db, batchSize: batchSize}
}

// BatchSize returns the maximum number of rows per statement
func (b *BatchInserter) BatchSize() int {
	return b.batchSize
}

// Insert writes rows into table in chunks of at most BatchSize rows. Each
// chunk is one INSERT ... ON CONFLICT DO NOTHING statement and commits on
// its own; there is no transaction spanning chunks.
func (b *BatchInserter) Insert(ctx context.Context, table Table, rows [][]any) (*BatchResult, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table %s: no columns declared", table.Name)
	}

	want := len(table.Columns)
	for i, row := range rows {
		if len(row) != want {
			return nil, &RowArityError{Table: table.Name, Row: i, Got: len(row), Want: want}
		}
	}

	result := &BatchResult{RowsSubmitted: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}

	chunks := (len(rows) + b.batchSize - 1) / b.batchSize
	committed := 0

	for chunk := 0; chunk < chunks; chunk++ {
		start := chunk * b.batchSize
		end := min(start+b.batchSize, len(rows))
		part := rows[start:end]

		query := table.insertQuery(len(part))
		args := make([]any, 0, len(part)*want)
		for _, row := range part {
			args = append(args, row...)
		}

		res, err := b.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, &BatchWriteError{
				Table:         table.Name,
				Chunk:         chunk,
				Chunks:        chunks,
				RowsCommitted: committed,
				Err:           err,
			}
		}

		if n, err := res.RowsAffected(); err == nil {
			result.RowsInserted += n
		}
		committed += len(part)
		result.Chunks++
	}

	return result, nil
}

// insertQuery builds the statement for n rows with placeholders numbered
// from $1.
func (t Table) insertQuery(n int) string {
	cols := len(t.Columns)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(t.Name)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(t.Columns, ", "))
	sb.WriteString(") VALUES ")

	param := 1
	for r := 0; r < n; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(param))
			param++
		}
		sb.WriteByte(')')
	}

	sb.WriteString(" ON CONFLICT")
	if len(t.ConflictColumns) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(t.ConflictColumns, ", "))
		sb.WriteByte(')')
	}
	sb.WriteString(" DO NOTHING")

	return sb.String()
}
