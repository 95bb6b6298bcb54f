package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/logsource"
)

const googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

func accessLine(path string, status int, ua string) string {
	return fmt.Sprintf(`10.0.0.1 - - [10/Oct/2023:13:55:36 +0000] "GET %s HTTP/1.1" %d 512 "-" "%s" 0.250`, path, status, ua)
}

func sampleLog() string {
	lines := []string{
		accessLine("/", 200, "Mozilla/5.0 Firefox/121.0"),
		accessLine("/", 200, googlebotUA),
		"garbage that does not parse",
		accessLine("/blog", 200, googlebotUA),
		accessLine("/gone", 404, "curl/8.0"),
		accessLine("/blog", 301, "Mozilla/5.0 Firefox/121.0"),
	}
	return strings.Join(lines, "\n") + "\n"
}

// testConfig loads defaults with HOME pointed at an empty directory so no
// user config leaks in.
func testConfig(t *testing.T) appConfig {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := loadConfig("")
	require.NoError(t, err)
	cfg.LogLevel = "error"
	cfg.BatchSize = 2
	return cfg
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, "split", cfg.Mode)
	assert.Equal(t, defaultTopN, cfg.TopN)
	assert.Equal(t, defaultBucket, cfg.Bucket)
	assert.Equal(t, defaultAPIAddr, cfg.APIAddr)
	assert.Positive(t, cfg.Workers)
	assert.Empty(t, cfg.ConfigPath)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte("batch-size: 10\nmode: single\nbucket: 15m\n"), 0o644))
	t.Setenv("LOGSCOPE_TOP_N", "5")

	cfg, err := loadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "single", cfg.Mode)
	assert.Equal(t, "15m0s", cfg.Bucket.String())
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, p, cfg.ConfigPath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"mode":       "mode: columnar\n",
		"batch size": "batch-size: 0\n",
		"top-n":      "top-n: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			p := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, err := loadConfig(p)
			assert.Error(t, err)
		})
	}
}

func TestIngestThenReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.CaptureLatency = true
	ctx := context.Background()
	in := writeLog(t, sampleLog())
	out := filepath.Join(t.TempDir(), "ds")

	var stdout bytes.Buffer
	require.NoError(t, run(ctx, cfg, []string{"ingest", in, out}, nil, &stdout))
	assert.Contains(t, stdout.String(), "Ingest complete")

	m, err := duckdb.ReadManifest(out)
	require.NoError(t, err)
	assert.EqualValues(t, 5, m.Records)
	assert.Len(t, m.Units, 3)
	assert.True(t, m.Complete)

	stdout.Reset()
	require.NoError(t, run(ctx, cfg, []string{"report", "-format", "json", out}, nil, &stdout))
	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got), stdout.String())
	assert.EqualValues(t, 5, got["records"])
	assert.Len(t, got["latency"], 3)
	bots := got["bots"].(map[string]any)
	assert.EqualValues(t, 3, bots["bot"])
	assert.EqualValues(t, 2, bots["human"])

	stdout.Reset()
	require.NoError(t, run(ctx, cfg, []string{"report", out}, nil, &stdout))
	assert.Contains(t, stdout.String(), "Top paths")
	assert.Contains(t, stdout.String(), "/gone")
	assert.Contains(t, stdout.String(), "p95 latency")
}

func TestReportSitemapDiff(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "ds")
	require.NoError(t, run(ctx, cfg, []string{"ingest", writeLog(t, sampleLog()), out}, nil, &bytes.Buffer{}))

	sm := filepath.Join(t.TempDir(), "sitemap.xml")
	require.NoError(t, os.WriteFile(sm, []byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/</loc></url>
  <url><loc>https://example.com/about</loc></url>
</urlset>`), 0o644))

	var stdout bytes.Buffer
	require.NoError(t, run(ctx, cfg, []string{"report", "-format", "json", "-sitemap", sm, out}, nil, &stdout))
	var got struct {
		Sitemap struct {
			Orphans []string `json:"orphans"`
			Missed  []string `json:"missed"`
		} `json:"sitemap"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, []string{"/blog", "/gone"}, got.Sitemap.Orphans)
	assert.Equal(t, []string{"/about"}, got.Sitemap.Missed)
}

func TestQueryCommand(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "ds")
	require.NoError(t, run(ctx, cfg, []string{"ingest", writeLog(t, sampleLog()), out}, nil, &bytes.Buffer{}))

	var stdout bytes.Buffer
	require.NoError(t, run(ctx, cfg, []string{"query", "-format", "json", out, "SELECT COUNT(*) AS n FROM logs WHERE status = 200"}, nil, &stdout))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["n"])

	stdout.Reset()
	require.NoError(t, run(ctx, cfg, []string{"query", out, "SELECT path FROM logs WHERE status = 404"}, nil, &stdout))
	assert.Contains(t, stdout.String(), "/gone")
	assert.Contains(t, stdout.String(), "1 rows")

	err := run(ctx, cfg, []string{"query", out, "DELETE FROM logs"}, nil, &stdout)
	assert.Error(t, err)
}

func TestIngestFromStdinSingleMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "single"
	out := filepath.Join(t.TempDir(), "ds.duckdb")

	var stdout bytes.Buffer
	err := run(context.Background(), cfg, []string{"ingest", logsource.StdinPath, out}, strings.NewReader(sampleLog()), &stdout)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "stdin")

	m, err := duckdb.ReadManifest(out)
	require.NoError(t, err)
	assert.Equal(t, duckdb.ModeSingle, m.Mode)
	assert.EqualValues(t, 5, m.Records)
}

func TestIngestRefusesExistingDataset(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	in := writeLog(t, sampleLog())
	out := filepath.Join(t.TempDir(), "ds")
	require.NoError(t, run(ctx, cfg, []string{"ingest", in, out}, nil, &bytes.Buffer{}))

	err := run(ctx, cfg, []string{"ingest", in, out}, nil, &bytes.Buffer{})
	require.ErrorIs(t, err, duckdb.ErrDatasetExists)
	assert.Equal(t, 1, exitCode(err))

	require.NoError(t, run(ctx, cfg, []string{"ingest", "-overwrite", in, out}, nil, &bytes.Buffer{}))
}

func TestExitCodes(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	err := run(ctx, cfg, nil, nil, &bytes.Buffer{})
	assert.Equal(t, 2, exitCode(err))

	err = run(ctx, cfg, []string{"frobnicate"}, nil, &bytes.Buffer{})
	assert.Equal(t, 2, exitCode(err))

	err = run(ctx, cfg, []string{"ingest", "only-one-arg"}, nil, &bytes.Buffer{})
	assert.Equal(t, 2, exitCode(err))

	missing := filepath.Join(t.TempDir(), "missing.log")
	err = run(ctx, cfg, []string{"ingest", missing, filepath.Join(t.TempDir(), "ds")}, nil, &bytes.Buffer{})
	var inErr *logsource.InputIOError
	require.True(t, errors.As(err, &inErr), "got %v", err)
	assert.Equal(t, 3, exitCode(err))

	assert.Equal(t, 4, exitCode(fmt.Errorf("wrapped: %w", &duckdb.OutputWriteError{Err: errors.New("disk full")})))
	assert.Equal(t, 0, exitCode(nil))
}
