package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/metrics"
	"github.com/tinytelemetry/logscope/internal/model"
)

// Mode selects how batches are laid out on disk.
type Mode string

const (
	// ModeSplit writes one Parquet file per batch: <prefix>-<index>.parquet.
	ModeSplit Mode = "split"
	// ModeSingle appends every batch to one DuckDB database file.
	ModeSingle Mode = "single"
)

// ErrDatasetExists is returned when the target already holds a dataset and
// overwriting was not requested.
var ErrDatasetExists = errors.New("duckdb: dataset already exists")

// ErrWriterClosed is returned by WriteBatch after Close.
var ErrWriterClosed = errors.New("duckdb: writer closed")

// OutputWriteError reports a batch that could not be persisted. Batches
// flushed before it are unaffected.
type OutputWriteError struct {
	Unit  string
	Batch int
	Err   error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write batch %d to %s: %v", e.Batch, e.Unit, e.Err)
}

func (e *OutputWriteError) Unwrap() error { return e.Err }

// WriterConfig holds the target layout for one ingestion run.
type WriterConfig struct {
	Mode           Mode
	Target         string // split: path prefix; single: database file path
	Overwrite      bool
	CaptureLatency bool
	Logger         *zap.Logger
}

// Writer persists sealed batches as self-contained storage units.
// It implements model.BatchWriter. One Writer owns its target exclusively.
type Writer struct {
	mu      sync.Mutex
	cfg     WriterConfig
	store   *Store
	logger  *zap.Logger
	runID   string
	units   []string
	next    int
	records int64
	failed  bool
	closed  bool
}

var _ model.BatchWriter = (*Writer)(nil)

// NewWriter prepares the target and opens the staging or destination store.
func NewWriter(ctx context.Context, cfg WriterConfig) (*Writer, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSplit
	}
	if cfg.Mode != ModeSplit && cfg.Mode != ModeSingle {
		return nil, fmt.Errorf("duckdb: unknown write mode %q", cfg.Mode)
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, errors.New("duckdb: write target is empty")
	}
	logger := logging.OrNop(cfg.Logger)

	if err := prepareTarget(cfg); err != nil {
		return nil, err
	}

	dbPath := ""
	if cfg.Mode == ModeSingle {
		dbPath = cfg.Target
	}
	store, err := NewStore(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open store: %w", err)
	}
	if cfg.CaptureLatency {
		if err := store.EnsureLatencyColumn(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	w := &Writer{
		cfg:    cfg,
		store:  store,
		logger: logger,
		runID:  uuid.NewString(),
	}
	logger.Info("dataset writer ready",
		zap.String("mode", string(cfg.Mode)),
		zap.String("target", cfg.Target),
		zap.String("run_id", w.runID))
	return w, nil
}

// RunID identifies this ingestion run.
func (w *Writer) RunID() string { return w.runID }

// Mode returns the write mode.
func (w *Writer) Mode() Mode { return w.cfg.Mode }

// Target returns the dataset target path.
func (w *Writer) Target() string { return w.cfg.Target }

// Units returns the paths of the durably written storage units so far.
func (w *Writer) Units() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := Manifest{Units: w.units}
	return m.UnitPaths(w.cfg.Target)
}

// WriteBatch persists records as the next storage unit.
func (w *Writer) WriteBatch(ctx context.Context, records []*model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	idx := w.next
	unit := w.cfg.Target
	start := time.Now()

	var err error
	switch w.cfg.Mode {
	case ModeSplit:
		unit = splitUnitPath(w.cfg.Target, idx)
		err = w.writeParquet(ctx, unit, records)
	case ModeSingle:
		err = w.store.InsertLogBatch(ctx, w.runID, idx, records, w.cfg.CaptureLatency)
	}
	elapsed := time.Since(start)
	metrics.ObserveFlush(string(w.cfg.Mode), elapsed, err)

	if err != nil {
		w.failed = true
		w.logger.Error("batch write failed",
			zap.Int("batch", idx), zap.String("unit", unit), zap.Error(err))
		return &OutputWriteError{Unit: unit, Batch: idx, Err: err}
	}

	w.next++
	w.records += int64(len(records))
	if w.cfg.Mode == ModeSplit || len(w.units) == 0 {
		w.units = append(w.units, filepath.Base(unit))
	}
	w.logger.Debug("batch flushed",
		zap.Int("batch", idx),
		zap.Int("records", len(records)),
		zap.String("unit", unit),
		zap.Duration("elapsed", elapsed))
	return nil
}

// writeParquet stages records in the in-memory logs table, copies them to a
// temporary Parquet file and renames it into place. The staging rows are never
// committed, so the table is empty again for the next batch.
func (w *Writer) writeParquet(ctx context.Context, path string, records []*model.LogRecord) error {
	tx, err := w.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // staging rows are discarded on purpose

	if err := insertRecordsTx(ctx, tx, records, w.cfg.CaptureLatency); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("COPY logs TO %s (FORMAT PARQUET)", quoteLiteral(tmp))); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("copy to parquet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// Close finalizes the run: it writes the manifest for every unit flushed so
// far and releases the store. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	ckptErr := w.store.Checkpoint(context.Background())
	storeErr := w.store.Close()

	cols := append([]string(nil), BaseColumns...)
	if w.cfg.CaptureLatency {
		cols = append(cols, LatencyColumn)
	}
	units := w.units
	if units == nil {
		units = []string{}
	}
	manifestErr := WriteManifest(w.cfg.Target, Manifest{
		RunID:     w.runID,
		Mode:      w.cfg.Mode,
		Units:     units,
		Records:   w.records,
		Columns:   cols,
		Complete:  !w.failed,
		CreatedAt: time.Now().UTC(),
	})
	return errors.Join(ckptErr, storeErr, manifestErr)
}

// Stats returns the number of batches and records persisted so far.
func (w *Writer) Stats() (batches int, records int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next, w.records
}

var splitUnitPattern = regexp.MustCompile(`^-\d+\.parquet$`)

func splitUnitPath(prefix string, idx int) string {
	return fmt.Sprintf("%s-%d.parquet", prefix, idx)
}

// existingSplitUnits lists <prefix>-<n>.parquet files already on disk.
func existingSplitUnits(prefix string) ([]string, error) {
	matches, err := filepath.Glob(globEscape(prefix) + "-*.parquet")
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	base := filepath.Base(prefix)
	for _, m := range matches {
		name := filepath.Base(m)
		if strings.HasPrefix(name, base+"-") && splitUnitPattern.MatchString(name[len(base):]) {
			out = append(out, m)
		}
	}
	return out, nil
}

// prepareTarget refuses to append to an existing dataset, or clears it when
// overwriting was requested.
func prepareTarget(cfg WriterConfig) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Target), 0755); err != nil {
		return fmt.Errorf("duckdb: create target dir: %w", err)
	}

	var existing []string
	switch cfg.Mode {
	case ModeSplit:
		units, err := existingSplitUnits(cfg.Target)
		if err != nil {
			return fmt.Errorf("duckdb: list existing units: %w", err)
		}
		existing = units
	case ModeSingle:
		if _, err := os.Stat(cfg.Target); err == nil {
			existing = append(existing, cfg.Target, cfg.Target+".wal")
		}
	}
	if manifestExists(cfg.Target) {
		existing = append(existing, ManifestPath(cfg.Target))
	}
	if len(existing) == 0 {
		return nil
	}
	if !cfg.Overwrite {
		return fmt.Errorf("%w: %s", ErrDatasetExists, cfg.Target)
	}
	for _, p := range existing {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("duckdb: remove %s: %w", p, err)
		}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}
