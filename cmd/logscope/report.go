package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/model"
	"github.com/tinytelemetry/logscope/internal/sitemap"
	"github.com/tinytelemetry/logscope/internal/uaclass"
)

// reportOutput is the machine-readable form of the report command.
type reportOutput struct {
	model.Report `yaml:",inline"`
	Sitemap      *sitemap.Report `json:"sitemap,omitempty" yaml:"sitemap,omitempty"`
}

func openDataset(ctx context.Context, cfg appConfig, logger *zap.Logger, target string) (*duckdb.Dataset, error) {
	ds, err := duckdb.OpenDataset(ctx, target, logger)
	if err != nil {
		return nil, err
	}
	if cfg.QueryTimeout > 0 {
		ds.QueryTimeout = cfg.QueryTimeout
	}
	return ds, nil
}

func validFormat(f string) error {
	switch f {
	case "text", "json", "yaml":
		return nil
	}
	return usageErr("unknown format %q (want text, json or yaml)", f)
}

// encode writes v as indented JSON or as YAML.
func encode(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func runReport(ctx context.Context, cfg appConfig, logger *zap.Logger, args []string, stdout io.Writer) error {
	var sitemapPath, format string
	var fullURLs bool

	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.IntVar(&cfg.TopN, "top", cfg.TopN, "rows per ranked table")
	fs.DurationVar(&cfg.Bucket, "bucket", cfg.Bucket, "time bucket width for hits over time")
	fs.StringVar(&sitemapPath, "sitemap", "", "sitemap XML file to compare against crawled paths")
	fs.BoolVar(&fullURLs, "urls", false, "compare full sitemap URLs instead of their paths")
	fs.StringVar(&format, "format", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("report needs <dataset>")
	}
	if err := validFormat(format); err != nil {
		return err
	}

	ds, err := openDataset(ctx, cfg, logger, fs.Arg(0))
	if err != nil {
		return err
	}
	defer ds.Close()

	r, err := ds.Report(ctx, duckdb.ReportOptions{
		TopN:       cfg.TopN,
		Bucket:     cfg.Bucket,
		Classifier: uaclass.Default,
	})
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	var diff *sitemap.Report
	if sitemapPath != "" {
		d, err := sitemapDiff(ctx, ds, sitemapPath, !fullURLs)
		if err != nil {
			return err
		}
		diff = &d
	}

	if format == "text" {
		printReport(stdout, r, diff)
		return nil
	}
	return encode(stdout, format, reportOutput{Report: *r, Sitemap: diff})
}

func sitemapDiff(ctx context.Context, ds *duckdb.Dataset, path string, asPaths bool) (sitemap.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return sitemap.Report{}, fmt.Errorf("open sitemap: %w", err)
	}
	defer f.Close()

	declared, err := sitemap.LoadSet(f, asPaths)
	if err != nil {
		return sitemap.Report{}, fmt.Errorf("parse sitemap %s: %w", path, err)
	}
	crawled, err := ds.DistinctCrawledPaths(ctx, uaclass.Default)
	if err != nil {
		return sitemap.Report{}, fmt.Errorf("list crawled paths: %w", err)
	}
	return sitemap.Compare(declared, crawled), nil
}

func runQuery(ctx context.Context, cfg appConfig, logger *zap.Logger, args []string, stdout io.Writer) error {
	var format string

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&format, "format", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageErr("query needs <dataset> and <sql>")
	}
	if err := validFormat(format); err != nil {
		return err
	}

	ds, err := openDataset(ctx, cfg, logger, fs.Arg(0))
	if err != nil {
		return err
	}
	defer ds.Close()

	rows, err := ds.ExecuteQuery(ctx, fs.Arg(1))
	if err != nil {
		return err
	}

	if format == "text" {
		printQueryResult(stdout, rows)
		return nil
	}
	return encode(stdout, format, rows)
}
