package export

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/logging"
)

// Exporter ships every storage unit of a finished run plus its manifest to
// object storage under <prefix>/<run-id>/.
type Exporter struct {
	uploader Uploader
	logger   *zap.Logger
}

// NewExporter builds an exporter from cfg. It returns nil when export is
// disabled.
func NewExporter(ctx context.Context, cfg Config, logger *zap.Logger) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.BucketURL) == "" {
		return nil, fmt.Errorf("export: bucket-url is required when export is enabled")
	}
	u, err := NewS3Uploader(ctx, S3Config{
		BucketURL:    cfg.BucketURL,
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		SessionToken: cfg.S3SessionToken,
		UseSSL:       cfg.S3UseSSL,
		UsePathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("export: init s3 uploader: %w", err)
	}
	return NewExporterWithUploader(u, logger), nil
}

// NewExporterWithUploader wraps an existing uploader.
func NewExporterWithUploader(u Uploader, logger *zap.Logger) *Exporter {
	return &Exporter{uploader: u, logger: logging.OrNop(logger)}
}

// Export uploads the dataset's units, then its manifest, so a reader that
// finds the manifest can rely on every unit it lists. It returns the object
// keys written, relative to the bucket prefix.
func (e *Exporter) Export(ctx context.Context, ds Dataset) ([]string, error) {
	if e == nil {
		return nil, nil
	}
	runID := ds.RunID()
	if runID == "" {
		return nil, errors.New("export: dataset has no run id")
	}

	files := append(ds.Units(), duckdb.ManifestPath(ds.Target()))
	keys := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		key := path.Join(runID, filepath.Base(f))
		if err := e.uploader.UploadFile(ctx, f, key); err != nil {
			return keys, fmt.Errorf("export: upload %s: %w", f, err)
		}
		e.logger.Debug("exported file", zap.String("file", f), zap.String("key", key))
		keys = append(keys, key)
	}
	e.logger.Info("dataset exported",
		zap.String("run_id", runID),
		zap.Int("files", len(keys)))
	return keys, nil
}
