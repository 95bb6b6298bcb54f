package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/export"
	"github.com/tinytelemetry/logscope/internal/ingest"
	"github.com/tinytelemetry/logscope/internal/logsource"
)

// ingestResult summarizes one finished ingest run for the confirmation.
type ingestResult struct {
	Input    string
	Target   string
	Mode     duckdb.Mode
	RunID    string
	Records  int64
	Batches  int
	Units    []string
	Exported []string
	Elapsed  time.Duration
}

func runIngest(ctx context.Context, cfg appConfig, logger *zap.Logger, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "storage layout: split (parquet per batch) or single (one duckdb file)")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "records per batch")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parse workers")
	fs.BoolVar(&cfg.Overwrite, "overwrite", cfg.Overwrite, "replace an existing dataset at the output path")
	fs.BoolVar(&cfg.CaptureLatency, "latency", cfg.CaptureLatency, "store the trailing request-time field as a latency column")
	fs.BoolVar(&cfg.ExportEnabled, "export", cfg.ExportEnabled, "upload the finished dataset to the configured bucket")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageErr("ingest needs <input> and <output>")
	}

	res, err := ingestFile(ctx, cfg, logger, fs.Arg(0), fs.Arg(1), stdin)
	if err != nil {
		return err
	}
	printIngestSummary(stdout, cfg, res)
	return nil
}

// ingestFile parses input into a new dataset at target and, when enabled,
// exports it. Batches written before a failure stay readable: the writer is
// closed, and its manifest written, on every path.
func ingestFile(ctx context.Context, cfg appConfig, logger *zap.Logger, input, target string, stdin io.Reader) (res ingestResult, err error) {
	start := time.Now()
	res = ingestResult{Input: logsource.Name(input), Target: target, Mode: duckdb.Mode(cfg.Mode)}

	exporter, err := export.NewExporter(ctx, export.Config{
		Enabled:        cfg.ExportEnabled,
		BucketURL:      cfg.ExportBucketURL,
		S3Endpoint:     cfg.ExportEndpoint,
		S3Region:       cfg.ExportRegion,
		S3AccessKey:    cfg.ExportAccessKey,
		S3SecretKey:    cfg.ExportSecretKey,
		S3SessionToken: cfg.ExportSessionToken,
		S3UseSSL:       cfg.ExportUseSSL,
		S3PathStyle:    cfg.ExportPathStyle,
	}, logger)
	if err != nil {
		return res, err
	}

	var in io.ReadCloser
	if input == logsource.StdinPath {
		in = io.NopCloser(stdin)
	} else if in, err = logsource.Open(input); err != nil {
		return res, err
	}
	defer in.Close()

	writer, err := duckdb.NewWriter(ctx, duckdb.WriterConfig{
		Mode:           res.Mode,
		Target:         target,
		Overwrite:      cfg.Overwrite,
		CaptureLatency: cfg.CaptureLatency,
		Logger:         logger,
	})
	if err != nil {
		return res, err
	}

	acc := duckdb.NewAccumulator(writer, duckdb.AccumulatorConfig{BatchSize: cfg.BatchSize, Logger: logger})
	stats, runErr := ingest.New(acc, ingest.Config{
		Workers:    cfg.Workers,
		ChunkLines: cfg.ChunkLines,
		SourceName: res.Input,
		Logger:     logger,
	}).Run(ctx, in)
	closeErr := writer.Close()

	res.RunID = writer.RunID()
	res.Records = stats.Records
	res.Batches = stats.Batches
	res.Units = writer.Units()
	res.Elapsed = time.Since(start)

	if err := errors.Join(runErr, closeErr); err != nil {
		logger.Error("ingest failed",
			zap.String("input", res.Input),
			zap.Int("batches_kept", len(res.Units)),
			zap.Error(err))
		return res, err
	}

	res.Exported, err = exporter.Export(ctx, writer)
	if err != nil {
		return res, fmt.Errorf("export dataset: %w", err)
	}
	return res, nil
}
