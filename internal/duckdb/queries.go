package duckdb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logscope/internal/metrics"
	"github.com/tinytelemetry/logscope/internal/model"
	"github.com/tinytelemetry/logscope/internal/uaclass"
)

// ErrInvalidBucket is returned for a non-positive time bucket width.
var ErrInvalidBucket = errors.New("duckdb: bucket width must be at least one microsecond")

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// dangerousKeywordPattern matches write or side-effecting SQL keywords at word
// boundaries, so "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|USE)\b`,
)

// fileFunctionPattern matches table and scalar functions that read files,
// run nested SQL strings, or expose the process environment.
var fileFunctionPattern = regexp.MustCompile(
	`(?i)\b(read_text|read_blob|read_csv(_auto)?|read_json(_auto|_objects|_objects_auto)?|read_ndjson(_auto|_objects)?|read_parquet|parquet_scan|parquet_metadata|parquet_schema|parquet_file_metadata|parquet_kv_metadata|read_xlsx|delta_scan|iceberg_scan|glob|sniff_csv|query|query_table|getenv)\s*\(`,
)

// quotedTablePattern matches a string literal used as a table, which DuckDB
// resolves to a file scan.
var quotedTablePattern = regexp.MustCompile(`(?i)\b(FROM|JOIN)\s*\(?\s*'`)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// queryCtx derives a context bounded by the dataset's query timeout.
func (d *Dataset) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.QueryTimeout)
}

func observe(name string, start time.Time, err error) {
	if errors.Is(err, ErrColumnAbsent) {
		err = nil
	}
	metrics.ObserveQuery(name, time.Since(start), err)
}

func classifierOrDefault(c model.BotClassifier) model.BotClassifier {
	if c == nil {
		return uaclass.Default
	}
	return c
}

// TotalRecords returns the number of records in the dataset.
func (d *Dataset) TotalRecords(ctx context.Context) (n int64, err error) {
	defer func(start time.Time) { observe("total_records", start, err) }(time.Now())

	ctx, cancel := d.queryCtx(ctx)
	defer cancel()
	q, args := From("logs").Select("COUNT(*)").SQL()
	err = d.db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// HitsByPath returns the topN most requested paths, hits descending with ties
// broken by path ascending.
func (d *Dataset) HitsByPath(ctx context.Context, topN int) (out []model.PathCount, err error) {
	defer func(start time.Time) { observe("hits_by_path", start, err) }(time.Now())
	return d.pathCounts(ctx, From("logs"), topN)
}

// Top404s is HitsByPath restricted to status 404.
func (d *Dataset) Top404s(ctx context.Context, topN int) (out []model.PathCount, err error) {
	defer func(start time.Time) { observe("top_404s", start, err) }(time.Now())
	return d.pathCounts(ctx, From("logs").Where("status = ?", 404), topN)
}

func (d *Dataset) pathCounts(ctx context.Context, base *Plan, topN int) ([]model.PathCount, error) {
	out := []model.PathCount{}
	if topN <= 0 {
		return out, nil
	}
	ctx, cancel := d.queryCtx(ctx)
	defer cancel()

	q, args := base.Clone().
		Select("path", "COUNT(*) AS hits").
		GroupBy("path").
		OrderBy("hits DESC", "path ASC").
		Limit(topN).
		SQL()
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pc model.PathCount
		if err := rows.Scan(&pc.Path, &pc.Hits); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// StatusDistribution counts records per status code, ascending by status.
func (d *Dataset) StatusDistribution(ctx context.Context) (out []model.StatusCount, err error) {
	defer func(start time.Time) { observe("status_distribution", start, err) }(time.Now())

	ctx, cancel := d.queryCtx(ctx)
	defer cancel()
	q, args := From("logs").
		Select("status", "COUNT(*) AS count").
		GroupBy("status").
		OrderBy("status ASC").
		SQL()
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = []model.StatusCount{}
	for rows.Next() {
		var sc model.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// HitsOverTime counts records per time bucket. Bucket starts are aligned to
// the Unix epoch and returned in UTC; records without a time are excluded.
func (d *Dataset) HitsOverTime(ctx context.Context, bucket time.Duration) (out []model.TimeBucket, err error) {
	defer func(start time.Time) { observe("hits_over_time", start, err) }(time.Now())

	width := bucket.Microseconds()
	if width <= 0 {
		return nil, ErrInvalidBucket
	}
	ctx, cancel := d.queryCtx(ctx)
	defer cancel()

	// Floored modulo keeps pre-1970 records in the bucket that starts at or
	// before them; integer division would round them toward zero.
	floor := fmt.Sprintf("epoch_us(time) - ((epoch_us(time) %% %d) + %d) %% %d AS bucket_us", width, width, width)
	q, args := From("logs").
		Select(floor, "COUNT(*) AS hits").
		Where("time IS NOT NULL").
		GroupBy("bucket_us").
		OrderBy("bucket_us ASC").
		SQL()
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = []model.TimeBucket{}
	for rows.Next() {
		var us, hits int64
		if err := rows.Scan(&us, &hits); err != nil {
			return nil, err
		}
		out = append(out, model.TimeBucket{Bucket: time.UnixMicro(us).UTC(), Hits: hits})
	}
	return out, rows.Err()
}

// latencyRanked numbers each path's latencies in ascending order. The
// nearest-rank p95 is the row whose rank equals ceil(0.95 * n).
const latencyRanked = `(
	SELECT path, latency,
		row_number() OVER (PARTITION BY path ORDER BY latency) AS rn,
		count(*) OVER (PARTITION BY path) AS n
	FROM logs
	WHERE latency IS NOT NULL
) AS ranked`

// P95LatencyByPath returns the nearest-rank 95th percentile latency per path,
// highest first with ties broken by path. It returns ErrColumnAbsent when the
// dataset was written without latency.
func (d *Dataset) P95LatencyByPath(ctx context.Context, topN int) (out []model.PathLatency, err error) {
	defer func(start time.Time) { observe("p95_latency_by_path", start, err) }(time.Now())

	if !d.HasColumn(LatencyColumn) {
		return nil, ErrColumnAbsent
	}
	out = []model.PathLatency{}
	if topN <= 0 {
		return out, nil
	}
	ctx, cancel := d.queryCtx(ctx)
	defer cancel()

	q, args := From(latencyRanked).
		Select("path", "latency AS p95", "n").
		Where("rn = (95 * n + 99) // 100").
		OrderBy("p95 DESC", "path ASC").
		Limit(topN).
		SQL()
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pl model.PathLatency
		if err := rows.Scan(&pl.Path, &pl.P95, &pl.Samples); err != nil {
			return nil, err
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

// userAgentHits is the per-user-agent record count, optionally split by path.
type userAgentHits struct {
	ua   string
	path string
	hits int64
}

func (d *Dataset) userAgentHits(ctx context.Context, withPath bool) ([]userAgentHits, error) {
	ctx, cancel := d.queryCtx(ctx)
	defer cancel()

	plan := From("logs")
	if withPath {
		plan.Select("user_agent", "path", "COUNT(*) AS hits").GroupBy("user_agent", "path")
	} else {
		plan.Select("user_agent", "COUNT(*) AS hits").GroupBy("user_agent")
	}
	q, args := plan.SQL()
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []userAgentHits
	for rows.Next() {
		var h userAgentHits
		if withPath {
			err = rows.Scan(&h.ua, &h.path, &h.hits)
		} else {
			err = rows.Scan(&h.ua, &h.hits)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// memoBot caches IsBot per distinct user agent for the life of one query.
func memoBot(c model.BotClassifier) func(string) bool {
	seen := make(map[string]bool)
	return func(ua string) bool {
		v, ok := seen[ua]
		if !ok {
			v = c.IsBot(ua)
			seen[ua] = v
		}
		return v
	}
}

// DistinctCrawledPaths returns every path requested at least once by a user
// agent the classifier marks as a bot.
func (d *Dataset) DistinctCrawledPaths(ctx context.Context, classifier model.BotClassifier) (out map[string]struct{}, err error) {
	defer func(start time.Time) { observe("distinct_crawled_paths", start, err) }(time.Now())

	rows, err := d.userAgentHits(ctx, true)
	if err != nil {
		return nil, err
	}
	isBot := memoBot(classifierOrDefault(classifier))
	out = make(map[string]struct{})
	for _, r := range rows {
		if isBot(r.ua) {
			out[r.path] = struct{}{}
		}
	}
	return out, nil
}

// BotHumanSplit counts bot and human records.
func (d *Dataset) BotHumanSplit(ctx context.Context, classifier model.BotClassifier) (split model.BotSplit, err error) {
	defer func(start time.Time) { observe("bot_human_split", start, err) }(time.Now())

	rows, err := d.userAgentHits(ctx, false)
	if err != nil {
		return split, err
	}
	c := classifierOrDefault(classifier)
	for _, r := range rows {
		if c.IsBot(r.ua) {
			split.Bot += r.hits
		} else {
			split.Human += r.hits
		}
	}
	return split, nil
}

// TopFamilies returns the topN user-agent families by hits, ties broken by
// family name.
func (d *Dataset) TopFamilies(ctx context.Context, classifier model.BotClassifier, topN int) (out []model.FamilyCount, err error) {
	defer func(start time.Time) { observe("top_families", start, err) }(time.Now())

	out = []model.FamilyCount{}
	if topN <= 0 {
		return out, nil
	}
	rows, err := d.userAgentHits(ctx, false)
	if err != nil {
		return nil, err
	}
	c := classifierOrDefault(classifier)
	byFamily := make(map[string]*model.FamilyCount)
	for _, r := range rows {
		fam := c.Family(r.ua)
		if fam == "" {
			fam = uaclass.OtherFamily
		}
		fc, ok := byFamily[fam]
		if !ok {
			fc = &model.FamilyCount{Family: fam}
			byFamily[fam] = fc
		}
		fc.Hits += r.hits
		if c.IsBot(r.ua) {
			fc.Bot = true
		}
	}
	for _, fc := range byFamily {
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hits != out[j].Hits {
			return out[i].Hits > out[j].Hits
		}
		return out[i].Family < out[j].Family
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// ReportOptions parameterizes Report.
type ReportOptions struct {
	TopN       int
	Bucket     time.Duration
	Classifier model.BotClassifier
}

// Report runs every query concurrently and assembles the results. Queries the
// dataset cannot answer for lack of a column are left out.
func (d *Dataset) Report(ctx context.Context, opts ReportOptions) (*model.Report, error) {
	if opts.TopN <= 0 {
		opts.TopN = model.DefaultTopN
	}
	if opts.Bucket <= 0 {
		opts.Bucket = model.DefaultBucket
	}
	classifier := classifierOrDefault(opts.Classifier)

	var r model.Report
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { r.Records, err = d.TotalRecords(ctx); return })
	g.Go(func() (err error) { r.TopPaths, err = d.HitsByPath(ctx, opts.TopN); return })
	g.Go(func() (err error) { r.Statuses, err = d.StatusDistribution(ctx); return })
	g.Go(func() (err error) { r.Timeline, err = d.HitsOverTime(ctx, opts.Bucket); return })
	g.Go(func() (err error) { r.Top404s, err = d.Top404s(ctx, opts.TopN); return })
	g.Go(func() (err error) { r.Bots, err = d.BotHumanSplit(ctx, classifier); return })
	g.Go(func() (err error) { r.TopFamilies, err = d.TopFamilies(ctx, classifier, opts.TopN); return })
	g.Go(func() error {
		lat, err := d.P95LatencyByPath(ctx, opts.TopN)
		if errors.Is(err, ErrColumnAbsent) {
			d.logger.Debug("latency column absent, skipping p95")
			return nil
		}
		r.Latency = lat
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ExecuteQuery runs an ad-hoc read-only query against the logs view and
// returns at most MaxQueryRows rows. Only SELECT/WITH statements are allowed,
// and file-reading functions are refused before the engine-level file lockdown
// would reject them.
func (d *Dataset) ExecuteQuery(ctx context.Context, query string) (results []map[string]any, err error) {
	defer func(start time.Time) { observe("adhoc", start, err) }(time.Now())

	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, ";") {
		return nil, fmt.Errorf("query must not contain semicolons")
	}
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return nil, fmt.Errorf("only SELECT/WITH queries are allowed")
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return nil, fmt.Errorf("query contains disallowed keyword: %s", strings.ToUpper(match))
	}
	if match := fileFunctionPattern.FindStringSubmatch(stripped); match != nil {
		return nil, fmt.Errorf("query calls disallowed function: %s", strings.ToLower(match[1]))
	}
	if quotedTablePattern.MatchString(stripped) {
		return nil, fmt.Errorf("query reads a file path as a table")
	}

	ctx, cancel := d.queryCtx(ctx)
	defer cancel()
	rows, err := d.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	results = []map[string]any{}
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			d.logger.Warn("adhoc query scan failed", zap.Error(err))
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
