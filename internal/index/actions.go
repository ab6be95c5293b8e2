// Package index implements the index and extract commands.
package index

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/extractors"
	"github.com/dtnitsch/metawarc/pkg/indexer"
)

// IndexAction scans container files into the catalog.
func IndexAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one file or glob is required", common.ExitUsage)
	}
	env, err := common.Setup(c)
	if err != nil {
		return err
	}

	tables, err := models.ParseTableTypes(c.String("tables"))
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	paths, err := common.ExpandPaths(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	store, err := env.OpenCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	ix := newIndexer(env, store)
	env.Logger.Info("indexing", "files", len(paths), "tables", models.JoinTableTypes(tables))
	sum, err := ix.Index(c.Context, paths, tables)
	env.WriteMetrics(c)
	if err != nil {
		return err
	}
	return report(sum)
}

// ExtractAction runs a secondary extraction pass for one table over files
// that are already indexed. Without arguments every registered file is used.
func ExtractAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	table, err := models.ParseTableType(c.String("table"))
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}

	var paths []string
	if c.NArg() > 0 {
		if paths, err = common.ExpandPaths(c.Args().Slice()); err != nil {
			return cli.Exit(err.Error(), common.ExitUsage)
		}
	}

	store, err := env.OpenExistingCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := newIndexer(env, store).Extract(c.Context, paths, table)
	env.WriteMetrics(c)
	if err != nil {
		return common.CheckPrerequisite(err)
	}
	if sum.Files == 0 && len(sum.Failed) > 0 && errors.Is(sum.Failed[0], indexer.ErrNotIndexed) {
		// Nothing was indexed yet; report it as a missing prerequisite.
		_ = report(sum)
		return common.CheckPrerequisite(sum.Failed[0])
	}
	return report(sum)
}

func newIndexer(env *common.Env, store *catalog.Store) *indexer.Indexer {
	router := extractors.NewRouter(env.Logger,
		extractors.WithTempDir(env.Config.TempDir),
		extractors.WithTimeout(env.Config.ExtractTimeout),
		extractors.WithMetrics(env.Metrics),
	)
	return indexer.New(store, router, env.Logger, env.Metrics, indexer.Options{
		Framing:       env.Framing(),
		ProgressEvery: env.Config.ProgressEvery,
	})
}

func report(sum *indexer.Summary) error {
	fmt.Fprintf(os.Stderr, "Run %d: %d files done, %d records, %d damaged units skipped, %d failed\n",
		sum.RunID, sum.Files, sum.Records, sum.Skipped, len(sum.Failed))
	for _, f := range sum.Failed {
		fmt.Fprintf(os.Stderr, "  failed: %v\n", f)
	}
	if len(sum.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", len(sum.Failed), sum.Files+len(sum.Failed)), common.ExitFailure)
	}
	return nil
}
