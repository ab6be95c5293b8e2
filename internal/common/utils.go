// Package common holds the setup shared by every CLI command: configuration,
// logging, catalog access, input expansion and exit codes.
package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/export"
	"github.com/dtnitsch/metawarc/pkg/indexer"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// Exit codes. Usage errors exit with 2 through urfave/cli.
const (
	ExitFailure             = 1
	ExitUsage               = 2
	ExitMissingPrerequisite = 3
)

// Env is the per-invocation state built from flags and config.
type Env struct {
	Config  models.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Setup loads the config file, applies flag overrides and builds the logger.
func Setup(c *cli.Context) (*Env, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsage)
	}

	if c.IsSet("catalog") {
		cfg.CatalogPath = c.String("catalog")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("temp-dir") {
		cfg.TempDir = c.String("temp-dir")
	}
	if c.IsSet("framing") {
		cfg.Framing = c.String("framing")
	}
	if c.IsSet("extract-timeout") {
		cfg.ExtractTimeout = c.Duration("extract-timeout")
	}
	if c.IsSet("progress-every") {
		cfg.ProgressEvery = c.Int("progress-every")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("addr") {
		cfg.ServerAddr = c.String("addr")
	}
	if c.Bool("verbose") {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(err.Error(), ExitUsage)
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsage)
	}
	return &Env{Config: cfg, Logger: logger, Metrics: metrics.New()}, nil
}

// NewLogger builds a stderr logger with the given level and format.
func NewLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level: %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// Framing returns the configured framing policy.
func (e *Env) Framing() warc.FramingPolicy {
	p, _ := warc.ParseFramingPolicy(e.Config.Framing) // validated in Setup
	return p
}

// OpenCatalog opens or creates the catalog.
func (e *Env) OpenCatalog() (*catalog.Store, error) {
	store, err := catalog.Open(&e.Config, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

// OpenExistingCatalog opens a catalog that must already exist.
func (e *Env) OpenExistingCatalog() (*catalog.Store, error) {
	store, err := catalog.OpenExisting(&e.Config, e.Logger)
	if err != nil {
		return nil, CheckPrerequisite(err)
	}
	return store, nil
}

// WriteMetrics writes a metrics snapshot when --metrics-file is set.
func (e *Env) WriteMetrics(c *cli.Context) {
	path := c.String("metrics-file")
	if path == "" {
		return
	}
	if err := e.Metrics.WriteTextfile(path); err != nil {
		e.Logger.Warn("failed to write metrics file", "path", path, "error", err)
	}
}

// CheckPrerequisite turns missing catalog or index errors into exit code 3
// with a plain message. Other errors are returned unchanged.
func CheckPrerequisite(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, catalog.ErrCatalogNotFound):
		return cli.Exit(fmt.Sprintf("%v\nRun 'metawarc index <file.warc>' first to build the catalog.", err), ExitMissingPrerequisite)
	case errors.Is(err, indexer.ErrNotIndexed):
		return cli.Exit(fmt.Sprintf("%v\nRun 'metawarc index' on it first.", err), ExitMissingPrerequisite)
	}
	return err
}

// ExpandPaths resolves arguments to container files. Arguments containing
// glob metacharacters are matched with doublestar (so **/*.warc.gz works);
// others must name existing files. The result is sorted and deduplicated.
func ExpandPaths(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return nil
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("input not found: %s", arg)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("input is a directory: %s (use a glob such as %s/**/*.warc.gz)", arg, arg)
			}
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", arg)
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Render writes columns and rows to --output when set, choosing the format
// from its extension, or prints a table to stdout.
func Render(c *cli.Context, title string, columns []string, rows [][]any) error {
	if out := c.String("output"); out != "" {
		if err := export.WriteFile(out, title, columns, rows); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d rows to %s\n", len(rows), out)
		return nil
	}
	export.RenderTable(os.Stdout, title, columns, rows)
	return nil
}
