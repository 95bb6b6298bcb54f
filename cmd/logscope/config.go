package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/model"
)

const (
	defaultBatchSize    = model.DefaultBatchSize
	defaultMode         = string(duckdb.ModeSplit)
	defaultTopN         = model.DefaultTopN
	defaultBucket       = model.DefaultBucket
	defaultChunkLines   = model.DefaultChunkLines
	defaultAPIAddr      = "127.0.0.1:3000"
	defaultQueryTimeout = duckdb.DefaultQueryTimeout
	defaultExportRegion = "us-east-1"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	BatchSize      int           `mapstructure:"batch-size"`
	Mode           string        `mapstructure:"mode"`
	Overwrite      bool          `mapstructure:"overwrite"`
	Workers        int           `mapstructure:"workers"`
	ChunkLines     int           `mapstructure:"chunk-lines"`
	CaptureLatency bool          `mapstructure:"capture-latency"`
	TopN           int           `mapstructure:"top-n"`
	Bucket         time.Duration `mapstructure:"bucket"`
	QueryTimeout   time.Duration `mapstructure:"query-timeout"`
	APIAddr        string        `mapstructure:"api-addr"`
	LogLevel       string        `mapstructure:"log-level"`
	LogFile        string        `mapstructure:"log-file"`
	Development    bool          `mapstructure:"development"`

	ExportEnabled      bool   `mapstructure:"export-enabled"`
	ExportBucketURL    string `mapstructure:"export-bucket-url"`
	ExportEndpoint     string `mapstructure:"export-endpoint"`
	ExportRegion       string `mapstructure:"export-region"`
	ExportAccessKey    string `mapstructure:"export-access-key"`
	ExportSecretKey    string `mapstructure:"export-secret-key"`
	ExportSessionToken string `mapstructure:"export-session-token"`
	ExportUseSSL       bool   `mapstructure:"export-use-ssl"`
	ExportPathStyle    bool   `mapstructure:"export-path-style"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("LOGSCOPE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("batch-size", defaultBatchSize)
	v.SetDefault("mode", defaultMode)
	v.SetDefault("overwrite", false)
	v.SetDefault("workers", runtime.GOMAXPROCS(0))
	v.SetDefault("chunk-lines", defaultChunkLines)
	v.SetDefault("capture-latency", false)
	v.SetDefault("top-n", defaultTopN)
	v.SetDefault("bucket", defaultBucket)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-addr", defaultAPIAddr)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("development", false)
	v.SetDefault("export-enabled", false)
	v.SetDefault("export-bucket-url", "")
	v.SetDefault("export-endpoint", "")
	v.SetDefault("export-region", defaultExportRegion)
	v.SetDefault("export-access-key", "")
	v.SetDefault("export-secret-key", "")
	v.SetDefault("export-session-token", "")
	v.SetDefault("export-use-ssl", true)
	v.SetDefault("export-path-style", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "logscope", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("invalid batch-size: %d", cfg.BatchSize)
	}
	if cfg.Mode != string(duckdb.ModeSplit) && cfg.Mode != string(duckdb.ModeSingle) {
		return cfg, fmt.Errorf("invalid mode %q (want split or single)", cfg.Mode)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.TopN < 0 {
		return cfg, fmt.Errorf("invalid top-n: %d", cfg.TopN)
	}
	if cfg.Bucket < time.Microsecond {
		return cfg, fmt.Errorf("invalid bucket: %s", cfg.Bucket)
	}

	// Expand ~ in log-file
	if strings.HasPrefix(cfg.LogFile, "~/") {
		cfg.LogFile = filepath.Join(home, cfg.LogFile[2:])
	}

	return cfg, nil
}
