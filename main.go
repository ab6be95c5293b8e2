package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	dbcmd "github.com/dtnitsch/metawarc/internal/db"
	exportcmd "github.com/dtnitsch/metawarc/internal/export"
	"github.com/dtnitsch/metawarc/internal/index"
	querycmd "github.com/dtnitsch/metawarc/internal/query"
	"github.com/dtnitsch/metawarc/internal/serve"
	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/help"
	"github.com/dtnitsch/metawarc/pkg/parser"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(common.ExitFailure)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:         "metawarc",
		Usage:        "Catalog and query the contents of WARC web archives",
		Flags:        globalFlags(),
		OnUsageError: usageError,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Scan WARC files into the catalog",
				ArgsUsage: "<file|glob>...",
				Action:    index.IndexAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "tables",
						Usage: "Comma-separated tables to build (" + models.JoinTableTypes(models.AllTableTypes) + ")",
						Value: string(models.TableRecords),
					},
				},
			},
			{
				Name:      "extract",
				Usage:     "Build one table for files that are already indexed",
				ArgsUsage: "[file|glob]...",
				Action:    index.ExtractAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Table to build (" + models.JoinTableTypes(models.AllTableTypes[2:]) + ")"},
				},
			},
			{
				Name:      "stats",
				Usage:     "Summarize record counts and sizes",
				ArgsUsage: "[file|glob]...",
				Action:    querycmd.StatsAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Group by mime or ext", Value: "mime"},
					outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout"),
				},
			},
			{
				Name:      "list",
				Usage:     "List rows of a catalog table",
				ArgsUsage: "[file|glob]...",
				Action:    querycmd.ListAction,
				Flags: append(selectionFlags(),
					&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Table to list", Value: string(models.TableRecords)},
					&cli.BoolFlag{Name: "all-columns", Usage: "Show every records column"},
					outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout"),
				),
			},
			{
				Name:      "dump",
				Usage:     "Write selected payloads to a directory with a records.csv manifest",
				ArgsUsage: "[file|glob]...",
				Action:    querycmd.DumpAction,
				Flags: append(selectionFlags(),
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory", Value: "dump"},
					&cli.BoolFlag{Name: "everything", Usage: "Allow dumping every record"},
				),
			},
			{
				Name:      "fetch",
				Usage:     "Write the payload of one record",
				ArgsUsage: "<warc-id|url>",
				Action:    querycmd.FetchAction,
				Flags: []cli.Flag{
					outputFlag("Output file (default: <warc id>.<ext>)"),
				},
			},
			{
				Name:   "files",
				Usage:  "List indexed files",
				Action: dbcmd.FilesAction,
				Flags:  []cli.Flag{outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout")},
			},
			{
				Name:   "tables",
				Usage:  "List table artifacts",
				Action: dbcmd.TablesAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Aliases: []string{"t"}, Usage: "Only this table type"},
					outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout"),
				},
			},
			{
				Name:   "verify",
				Usage:  "Check registries against artifacts on disk",
				Action: dbcmd.VerifyAction,
				Flags:  []cli.Flag{outputFlag("Write problems to .csv, .xlsx or .jsonl")},
			},
			{
				Name:   "runs",
				Usage:  "List recent index and extract runs",
				Action: dbcmd.RunsAction,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of runs", Value: 20},
					outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout"),
				},
			},
			{
				Name:      "run",
				Usage:     "Show per-file results of a run (latest by default)",
				ArgsUsage: "[run-id]",
				Action:    dbcmd.RunAction,
				Flags:     []cli.Flag{outputFlag("Write to .csv, .xlsx or .jsonl instead of stdout")},
			},
			{
				Name:  "export",
				Usage: "Stream records from WARC files as JSON Lines",
				Subcommands: []*cli.Command{
					{
						Name:      "headers",
						Usage:     "HTTP headers of every response record",
						ArgsUsage: "<file|glob>...",
						Action:    exportcmd.HeadersAction,
						Flags:     []cli.Flag{outputFlag("Output file, - for stdout (default: headers.jsonl)")},
					},
					{
						Name:      "content",
						Usage:     "Readable text of HTML responses",
						ArgsUsage: "<file|glob>...",
						Action:    exportcmd.ContentAction,
						Flags: []cli.Flag{
							outputFlag("Output file, - for stdout (default: content.jsonl)"),
							&cli.StringFlag{Name: "content-types", Usage: "Comma-separated content types", Value: "text/html"},
							&cli.IntFlag{Name: "keywords", Usage: "Top keywords per page, -1 to disable", Value: parser.DefaultKeywordLimit},
						},
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the catalog over HTTP",
				Action: serve.ServeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address", Value: models.DefaultServerAddr, EnvVars: []string{"METAWARC_ADDR"}},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print example commands",
				Action: func(*cli.Context) error {
					fmt.Print(help.QuickstartYAML)
					return nil
				},
			},
		},
	}
	setUsageError(app.Commands)
	return app
}

// usageError maps flag parsing failures to the usage exit code.
func usageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(err.Error(), common.ExitUsage)
}

func setUsageError(cmds []*cli.Command) {
	for _, cmd := range cmds {
		cmd.OnUsageError = usageError
		setUsageError(cmd.Subcommands)
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "YAML config file", Value: models.DefaultConfigPath, EnvVars: []string{"METAWARC_CONFIG"}},
		&cli.StringFlag{Name: "catalog", Usage: "Catalog database path", EnvVars: []string{"METAWARC_CATALOG"}},
		&cli.StringFlag{Name: "data-dir", Usage: "Artifact directory (default: next to the catalog)", EnvVars: []string{"METAWARC_DATA_DIR"}},
		&cli.StringFlag{Name: "temp-dir", Usage: "Directory for extraction temp files", EnvVars: []string{"METAWARC_TEMP_DIR"}},
		&cli.StringFlag{Name: "framing", Usage: "On damaged records: skip or strict", EnvVars: []string{"METAWARC_FRAMING"}},
		&cli.DurationFlag{Name: "extract-timeout", Usage: "Per-document extraction timeout", EnvVars: []string{"METAWARC_EXTRACT_TIMEOUT"}},
		&cli.IntFlag{Name: "progress-every", Usage: "Log progress every N records", EnvVars: []string{"METAWARC_PROGRESS_EVERY"}},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", EnvVars: []string{"METAWARC_LOG_LEVEL"}},
		&cli.StringFlag{Name: "log-format", Usage: "text or json", EnvVars: []string{"METAWARC_LOG_FORMAT"}},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Shorthand for --log-level debug"},
		&cli.StringFlag{Name: "metrics-file", Usage: "Write a Prometheus textfile snapshot after index and extract", EnvVars: []string{"METAWARC_METRICS_FILE"}},
	}
}

func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "mimes", Usage: "Comma-separated content types"},
		&cli.StringFlag{Name: "exts", Usage: "Comma-separated extensions"},
		&cli.StringFlag{Name: "filter", Aliases: []string{"f"}, Usage: "Filter such as \"status_code=200 and ext=pdf\""},
		&cli.StringFlag{Name: "where", Usage: "Raw SQL predicate (trusted input)"},
		&cli.IntFlag{Name: "offset", Usage: "Skip the first N matching rows"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Return at most N rows"},
	}
}

func outputFlag(usage string) cli.Flag {
	return &cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: usage}
}
