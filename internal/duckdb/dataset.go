package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/model"
)

// ErrColumnAbsent is returned by queries that need a column the dataset lacks.
var ErrColumnAbsent = errors.New("duckdb: column absent from dataset")

// DefaultQueryTimeout bounds a single query when the caller's context has no deadline.
const DefaultQueryTimeout = 30 * time.Second

// Dataset is a read-only view over the storage units of one ingestion run.
// Queries never mutate it, so any number of goroutines may query concurrently.
type Dataset struct {
	// QueryTimeout caps each query. Zero disables the cap.
	QueryTimeout time.Duration

	db       *sql.DB
	logger   *zap.Logger
	target   string
	mode     Mode
	units    []string
	columns  map[string]bool
	manifest *Manifest
}

var _ model.LogQuerier = (*Dataset)(nil)

// OpenDataset opens the dataset written to target. With a manifest present the
// unit list comes from it; otherwise the layout is inferred: *.duckdb or *.db
// is a single-file dataset, *.parquet is a file or glob, and anything else is
// a split prefix matched as <target>-<n>.parquet.
func OpenDataset(ctx context.Context, target string, logger *zap.Logger) (*Dataset, error) {
	logger = logging.OrNop(logger)
	ds := &Dataset{target: target, logger: logger, QueryTimeout: DefaultQueryTimeout}

	if err := ds.resolve(); err != nil {
		return nil, err
	}
	for _, u := range ds.units {
		if _, err := os.Stat(u); err != nil {
			return nil, fmt.Errorf("duckdb: dataset unit %s: %w", u, err)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}
	ds.db = db
	if err := ds.createView(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := ds.sealFileAccess(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := ds.loadColumns(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("dataset opened",
		zap.String("target", target),
		zap.String("mode", string(ds.mode)),
		zap.Int("units", len(ds.units)))
	return ds, nil
}

// Close releases the dataset's query engine.
func (d *Dataset) Close() error {
	return d.db.Close()
}

// Units returns the storage units backing the dataset.
func (d *Dataset) Units() []string {
	return append([]string(nil), d.units...)
}

// Mode returns the storage layout of the dataset.
func (d *Dataset) Mode() Mode { return d.mode }

// Manifest returns the run manifest, or nil when the dataset had none.
func (d *Dataset) Manifest() *Manifest { return d.manifest }

// HasColumn reports whether the dataset schema includes name.
func (d *Dataset) HasColumn(name string) bool { return d.columns[name] }

func (d *Dataset) resolve() error {
	m, err := ReadManifest(d.target)
	switch {
	case err == nil:
		d.manifest = &m
		d.mode = m.Mode
		d.units = m.UnitPaths(d.target)
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	switch strings.ToLower(filepath.Ext(d.target)) {
	case ".duckdb", ".db":
		d.mode = ModeSingle
		d.units = []string{d.target}
		return nil
	case ".parquet":
		d.mode = ModeSplit
		matches, err := filepath.Glob(d.target)
		if err != nil {
			return fmt.Errorf("duckdb: bad dataset pattern %q: %w", d.target, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("duckdb: dataset %s: %w", d.target, os.ErrNotExist)
		}
		sort.Strings(matches)
		d.units = matches
		return nil
	}

	d.mode = ModeSplit
	units, err := existingSplitUnits(d.target)
	if err != nil {
		return fmt.Errorf("duckdb: list dataset units: %w", err)
	}
	if len(units) == 0 {
		return fmt.Errorf("duckdb: dataset %s: %w", d.target, os.ErrNotExist)
	}
	sortByUnitIndex(units)
	d.units = units
	return nil
}

// quotedUnits returns the absolute unit paths as SQL string literals.
func (d *Dataset) quotedUnits() ([]string, error) {
	quoted := make([]string, len(d.units))
	for i, u := range d.units {
		abs, err := filepath.Abs(u)
		if err != nil {
			return nil, fmt.Errorf("duckdb: dataset unit %s: %w", u, err)
		}
		quoted[i] = quoteLiteral(abs)
	}
	return quoted, nil
}

func (d *Dataset) createView(ctx context.Context) error {
	quoted, err := d.quotedUnits()
	if err != nil {
		return err
	}
	var stmts []string
	switch {
	case len(d.units) == 0:
		stmts = append(stmts, "CREATE VIEW logs AS "+emptyLogsSelect(d.manifestHasLatency()))
	case d.mode == ModeSingle:
		stmts = append(stmts,
			fmt.Sprintf("ATTACH %s AS ds (READ_ONLY)", quoted[0]),
			"CREATE VIEW logs AS SELECT * FROM ds.logs")
	default:
		stmts = append(stmts, fmt.Sprintf(
			"CREATE VIEW logs AS SELECT * FROM read_parquet([%s], union_by_name = true)",
			strings.Join(quoted, ", ")))
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb: open dataset view: %w", err)
		}
	}
	return nil
}

// sealFileAccess disables file and network access for the engine, leaving
// only the dataset units readable. It must run after createView, and the
// engine cannot re-enable access afterwards.
func (d *Dataset) sealFileAccess(ctx context.Context) error {
	quoted, err := d.quotedUnits()
	if err != nil {
		return err
	}
	var stmts []string
	if len(quoted) > 0 {
		stmts = append(stmts, fmt.Sprintf("SET allowed_paths = [%s]", strings.Join(quoted, ", ")))
	}
	stmts = append(stmts, "SET enable_external_access = false")
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("duckdb: restrict file access: %w", err)
		}
	}
	return nil
}

func (d *Dataset) loadColumns(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, "SELECT * FROM logs LIMIT 0")
	if err != nil {
		return fmt.Errorf("duckdb: read dataset schema: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	d.columns = make(map[string]bool, len(cols))
	for _, c := range cols {
		d.columns[c] = true
	}
	return nil
}

func (d *Dataset) manifestHasLatency() bool {
	if d.manifest == nil {
		return false
	}
	for _, c := range d.manifest.Columns {
		if c == LatencyColumn {
			return true
		}
	}
	return false
}

// emptyLogsSelect yields a typed, empty relation with the dataset schema.
func emptyLogsSelect(withLatency bool) string {
	cols := []string{
		"CAST(NULL AS VARCHAR) AS remote_addr",
		"CAST(NULL AS TIMESTAMP) AS time",
		"CAST(NULL AS VARCHAR) AS method",
		"CAST(NULL AS VARCHAR) AS path",
		"CAST(NULL AS INTEGER) AS status",
		"CAST(NULL AS BIGINT) AS bytes",
		"CAST(NULL AS VARCHAR) AS referer",
		"CAST(NULL AS VARCHAR) AS user_agent",
	}
	if withLatency {
		cols = append(cols, "CAST(NULL AS DOUBLE) AS latency")
	}
	return "SELECT " + strings.Join(cols, ", ") + " WHERE false"
}

func sortByUnitIndex(units []string) {
	index := func(p string) int {
		name := strings.TrimSuffix(filepath.Base(p), ".parquet")
		i := strings.LastIndexByte(name, '-')
		n, err := strconv.Atoi(name[i+1:])
		if err != nil {
			return -1
		}
		return n
	}
	sort.SliceStable(units, func(i, j int) bool { return index(units[i]) < index(units[j]) })
}
