package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/duckdb/migrate"
	"github.com/tinytelemetry/logscope/internal/logging"
)

// Store wraps one DuckDB database holding the logs table.
// An empty dbPath opens an in-memory database, used as the staging area for
// Parquet batches; a file path is the single-file append target.
type Store struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// NewStore opens or creates a DuckDB database and applies migrations.
func NewStore(ctx context.Context, dbPath string, logger *zap.Logger) (*Store, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrate.NewRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
		logger: logging.OrNop(logger),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// DBPath returns the configured DuckDB path. Empty means in-memory.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Checkpoint folds the write-ahead log into the database file so the file is
// self-contained. It is a no-op for in-memory stores.
func (s *Store) Checkpoint(ctx context.Context) error {
	if s.dbPath == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// EnsureLatencyColumn adds the optional latency column to the logs table.
func (s *Store) EnsureLatencyColumn(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE logs ADD COLUMN IF NOT EXISTS latency DOUBLE`); err != nil {
		return fmt.Errorf("add latency column: %w", err)
	}
	return nil
}

// RecordCount returns the number of rows in the logs table.
func (s *Store) RecordCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
