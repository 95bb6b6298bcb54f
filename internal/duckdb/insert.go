package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tinytelemetry/logscope/internal/model"
)

// BaseColumns is the persisted dataset schema, in storage order.
var BaseColumns = []string{
	"remote_addr", "time", "method", "path", "status", "bytes", "referer", "user_agent",
}

// LatencyColumn is the optional request-time column.
const LatencyColumn = "latency"

func insertSQL(withLatency bool) string {
	cols := strings.Join(BaseColumns, ", ")
	// time is bound as Unix microseconds so no session time zone is involved.
	vals := "?, make_timestamp(CAST(? AS BIGINT)), ?, ?, ?, ?, ?, ?"
	if withLatency {
		cols += ", " + LatencyColumn
		vals += ", ?"
	}
	return fmt.Sprintf("INSERT INTO logs (%s) VALUES (%s)", cols, vals)
}

// insertRecordsTx appends records to the logs table inside tx.
func insertRecordsTx(ctx context.Context, tx *sql.Tx, records []*model.LogRecord, withLatency bool) error {
	stmt, err := tx.PrepareContext(ctx, insertSQL(withLatency))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, 0, len(BaseColumns)+1)
	for _, r := range records {
		args = append(args[:0],
			r.RemoteAddr,
			timeMicros(r),
			nullString(r.Method),
			r.Path,
			r.Status,
			nullInt64(r.Bytes),
			r.Referer,
			r.UserAgent,
		)
		if withLatency {
			args = append(args, nullFloat64(r.Latency))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}
	return nil
}

// InsertLogBatch appends records to the logs table in a single transaction and
// records the batch under runID. Either the whole batch lands or none of it.
func (s *Store) InsertLogBatch(ctx context.Context, runID string, index int, records []*model.LogRecord, withLatency bool) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertRecordsTx(ctx, tx, records, withLatency); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (run_id, batch_index, records) VALUES (?, ?, ?)`,
		runID, index, len(records)); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	return tx.Commit()
}

func timeMicros(r *model.LogRecord) any {
	if r.Time == nil {
		return nil
	}
	return r.Time.UnixMicro()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullFloat64(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
