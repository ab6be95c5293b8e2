// Package query implements the stats, list, dump and fetch commands.
package query

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/query"
)

// open builds the query service over an existing catalog.
func open(c *cli.Context) (*common.Env, *catalog.Store, *query.Service, error) {
	env, err := common.Setup(c)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := env.OpenExistingCatalog()
	if err != nil {
		return nil, nil, nil, err
	}
	return env, store, query.New(store, env.Logger), nil
}

// selection reads the shared selection flags. Usage errors surface before
// the catalog is touched.
func selection(c *cli.Context) (query.Selection, error) {
	sel := query.Selection{
		Mimes:    query.SplitList(c.String("mimes")),
		Exts:     query.SplitList(c.String("exts")),
		Filter:   c.String("filter"),
		RawWhere: c.String("where"),
		Offset:   c.Int("offset"),
		Limit:    c.Int("limit"),
	}
	if err := sel.Validate(); err != nil {
		return sel, cli.Exit(err.Error(), common.ExitUsage)
	}
	return sel, nil
}

func files(c *cli.Context) ([]string, error) {
	if c.NArg() == 0 {
		return nil, nil
	}
	paths, err := common.ExpandPaths(c.Args().Slice())
	if err != nil {
		return nil, cli.Exit(err.Error(), common.ExitUsage)
	}
	return paths, nil
}

func queryError(err error) error {
	if errors.Is(err, query.ErrInvalidFilter) || errors.Is(err, query.ErrSelectionConflict) {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	if errors.Is(err, query.ErrNotFound) {
		return cli.Exit(err.Error(), common.ExitFailure)
	}
	return common.CheckPrerequisite(err)
}

// StatsAction prints record counts and sizes by mime type or extension.
func StatsAction(c *cli.Context) error {
	by, err := query.ParseStatsBy(c.String("mode"))
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	paths, err := files(c)
	if err != nil {
		return err
	}
	_, store, svc, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := svc.Stats(c.Context, paths, by)
	if err != nil {
		return queryError(err)
	}
	columns, rows := report.Table(c.String("output") == "")
	return common.Render(c, "Stats by "+string(by), columns, rows)
}

// ListAction prints the rows of a table matching the selection.
func ListAction(c *cli.Context) error {
	table, err := models.ParseTableType(c.String("table"))
	if err != nil {
		return cli.Exit(err.Error(), common.ExitUsage)
	}
	sel, err := selection(c)
	if err != nil {
		return err
	}
	paths, err := files(c)
	if err != nil {
		return err
	}
	env, store, svc, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	rs, err := svc.List(c.Context, paths, table, sel)
	if err != nil {
		return queryError(err)
	}
	for _, s := range rs.Skipped {
		env.Logger.Debug("file skipped", "file", s, "table", table)
	}

	columns, rows := rs.Columns, rs.Rows
	if table == models.TableRecords && !c.Bool("all-columns") {
		columns, rows = summarizeRecords(rs)
	}
	return common.Render(c, string(table), columns, rows)
}

// summaryColumns is the short record listing.
var summaryColumns = []string{"offset", "url", "length", "content_type", "ext", "warc_id"}

func summarizeRecords(rs *query.ResultSet) ([]string, [][]any) {
	index := make(map[string]int, len(rs.Columns))
	for i, c := range rs.Columns {
		index[c] = i
	}
	rows := make([][]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out := make([]any, len(summaryColumns))
		for j, c := range summaryColumns {
			out[j] = row[index[c]]
		}
		rows[i] = out
	}
	return summaryColumns, rows
}

// DumpAction writes the selected payloads and a records.csv manifest.
func DumpAction(c *cli.Context) error {
	sel, err := selection(c)
	if err != nil {
		return err
	}
	if !sel.Filtered() && sel.Limit <= 0 && !c.Bool("everything") {
		return cli.Exit("refusing to dump every record: pass --mimes, --exts, --filter, --where, --limit or --everything", common.ExitUsage)
	}
	paths, err := files(c)
	if err != nil {
		return err
	}
	_, store, svc, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := svc.Dump(c.Context, paths, sel, c.String("output"))
	if err != nil {
		return queryError(err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d payloads (%d failed) and %s\n", res.Written, res.Failed, res.Manifest)
	return nil
}

// FetchAction writes the payload of one record found by warc id or URL.
func FetchAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("fetch takes exactly one warc id or URL", common.ExitUsage)
	}
	_, store, svc, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	id := c.Args().First()
	out := c.String("output")
	if out == "" {
		row, err := svc.Find(c.Context, id)
		if err != nil {
			return queryError(err)
		}
		out = filepath.Base(query.DumpFilename(*row))
	}
	row, err := svc.Fetch(c.Context, id, out)
	if err != nil {
		return queryError(err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%s, offset %d in %s)\n", out, row.URL, row.Offset, row.Source)
	return nil
}
