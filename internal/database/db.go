package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505"
)

// DB wraps the database connection pool
type DB struct {
	*sql.DB
	inserter *BatchInserter
}

// Connect establishes a connection pool bounded by maxOpen connections
func Connect(connectionString string, maxOpen, maxIdle int) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}

	return New(db), nil
}

// New wraps an open *sql.DB
func New(db *sql.DB) *DB {
	return &DB{DB: db, inserter: NewBatchInserter(db, DefaultBatchSize)}
}

// SetBatchSize changes the number of rows written per insert statement
func (db *DB) SetBatchSize(n int) {
	db.inserter = NewBatchInserter(db.DB, n)
}

// BatchSize returns the number of rows written per insert statement
func (db *DB) BatchSize() int {
	return db.inserter.BatchSize()
}

// RunMigrations executes SQL migration files in name order, skipping files
// already recorded in schema_migrations
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, filename := range sqlFiles {
		var applied bool
		if err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename,
		).Scan(&applied); err != nil {
			return fmt.Errorf("failed to check migration %s: %w", filename, err)
		}
		if applied {
			continue
		}

		fmt.Printf("Running migration: %s\n", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		if _, err := db.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
	}

	fmt.Println("All migrations completed successfully")
	return nil
}

// Health pings the database
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a unique constraint violation
// other than the one an insert's conflict target absorbs
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgErrUniqueViolation
	}
	return false
}
