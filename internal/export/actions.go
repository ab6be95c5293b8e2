package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	"github.com/dtnitsch/metawarc/pkg/parser"
	"github.com/dtnitsch/metawarc/pkg/query"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// HeadersAction exports HTTP headers of every response record as JSON Lines.
func HeadersAction(c *cli.Context) error {
	return run(c, "headers.jsonl", func(ctx context.Context, e *Exporter, path string, w io.Writer) (int, error) {
		return e.Headers(ctx, path, w)
	})
}

// ContentAction exports the readable text of HTML responses as JSON Lines.
func ContentAction(c *cli.Context) error {
	p := &parser.Parser{KeywordLimit: c.Int("keywords")}
	types := query.SplitList(c.String("content-types"))
	return run(c, "content.jsonl", func(ctx context.Context, e *Exporter, path string, w io.Writer) (int, error) {
		return e.Content(ctx, path, w, p, types)
	})
}

type exportFunc func(ctx context.Context, e *Exporter, path string, w io.Writer) (int, error)

func run(c *cli.Context, defaultOutput string, fn exportFunc) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one file or glob is required", common.ExitUsage)
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	paths, err := common.ExpandPaths(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	output := c.String("output")
	if output == "" {
		output = defaultOutput
	}
	var w io.Writer = os.Stdout
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	e := New(env.Logger, warc.WithFramingPolicy(env.Framing()))
	total := 0
	for _, path := range paths {
		n, err := fn(c.Context, e, path, w)
		total += n
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		env.Logger.Info("exported", "file", path, "lines", n)
	}
	if output != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %d lines to %s\n", total, output)
	}
	return nil
}
