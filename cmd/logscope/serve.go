package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/httpserver"
	"github.com/tinytelemetry/logscope/internal/uaclass"
)

// runServe serves the read-only API until ctx is cancelled.
func runServe(ctx context.Context, cfg appConfig, logger *zap.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.APIAddr, "addr", cfg.APIAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("serve needs <dataset>")
	}

	ds, err := openDataset(ctx, cfg, logger, fs.Arg(0))
	if err != nil {
		return err
	}
	defer ds.Close()

	apiServer := httpserver.NewServer(cfg.APIAddr, ds, httpserver.Config{
		Classifier: uaclass.Default,
		TopN:       cfg.TopN,
		Bucket:     cfg.Bucket,
		Logger:     logger,
	})
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	printServeBanner(stdout, cfg, apiServer.Addr(), fs.Arg(0), len(ds.Units()))

	<-ctx.Done()
	fmt.Fprintln(stdout, "\nShutting down gracefully...")
	if err := apiServer.Stop(); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	return nil
}
