package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/logsource"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

const usageText = `Usage: logscope [-config file] <command> [flags] <args>

Commands:
  ingest <input|-> <output>   parse an access log into a dataset
  report <dataset>            print traffic aggregations
  query  <dataset> <sql>      run a read-only SQL query against the logs view
  serve  <dataset>            serve the read-only HTTP API
`

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logscope/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		fmt.Fprintln(flag.CommandLine.Output(), "\nGlobal flags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("Logscope - Access Log Analytics\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, flag.Args(), os.Stdin, os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// run dispatches one subcommand. stdin is read when the ingest input is "-".
func run(ctx context.Context, cfg appConfig, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return usageErr("missing command\n\n%s", usageText)
	}

	logger, err := logging.New(logging.Config{
		Development: cfg.Development,
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger = logger.With(zap.String("command", args[0]))

	switch args[0] {
	case "ingest":
		return runIngest(ctx, cfg, logger, args[1:], stdin, stdout)
	case "report":
		return runReport(ctx, cfg, logger, args[1:], stdout)
	case "query":
		return runQuery(ctx, cfg, logger, args[1:], stdout)
	case "serve":
		return runServe(ctx, cfg, logger, args[1:], stdout)
	default:
		return usageErr("unknown command %q\n\n%s", args[0], usageText)
	}
}

// exitCode maps a command failure to the process exit status: 2 for usage
// mistakes, 3 for unreadable input, 4 for failed writes, 1 otherwise.
func exitCode(err error) int {
	var inErr *logsource.InputIOError
	var outErr *duckdb.OutputWriteError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case errors.As(err, &inErr):
		return 3
	case errors.As(err, &outErr):
		return 4
	default:
		return 1
	}
}
