// Package db implements the catalog inspection commands: files, tables,
// verify, runs and run.
package db

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/metawarc/internal/common"
	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
)

func open(c *cli.Context) (*catalog.Store, error) {
	env, err := common.Setup(c)
	if err != nil {
		return nil, err
	}
	return env.OpenExistingCatalog()
}

// FilesAction lists indexed container files.
func FilesAction(c *cli.Context) error {
	store, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	files, err := store.Files(c.Context)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No files indexed")
		return nil
	}

	human := c.String("output") == ""
	rows := make([][]any, len(files))
	for i, f := range files {
		var size, indexed any = f.Size, f.IndexedAt.Format("2006-01-02 15:04:05")
		if human {
			size = humanize.IBytes(uint64(f.Size))
			indexed = humanize.Time(f.IndexedAt)
		}
		rows[i] = []any{f.Path, size, f.Records, indexed}
	}
	return common.Render(c, "Files", []string{"filename", "size", "records", "indexed"}, rows)
}

// TablesAction lists registered artifacts, optionally of one table type.
func TablesAction(c *cli.Context) error {
	var t models.TableType
	if raw := c.String("table"); raw != "" {
		parsed, err := models.ParseTableType(raw)
		if err != nil {
			return cli.Exit(err.Error(), common.ExitUsage)
		}
		t = parsed
	}
	store, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Tables(c.Context, t)
	if err != nil {
		return err
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{e.Source, string(e.TableType), e.ItemCount, e.Path}
	}
	return common.Render(c, "Tables", []string{"source", "table", "items", "path"}, rows)
}

// VerifyAction cross-checks registries and artifacts. It exits non-zero when
// any problem is found.
func VerifyAction(c *cli.Context) error {
	store, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	problems, err := store.Verify(c.Context)
	if err != nil {
		return err
	}
	if len(problems) == 0 {
		fmt.Println("Catalog is consistent")
		return nil
	}
	rows := make([][]any, len(problems))
	for i, p := range problems {
		rows[i] = []any{string(p.Kind), p.Source, string(p.TableType), p.Path, p.Detail}
	}
	if err := common.Render(c, "Problems", []string{"kind", "source", "table", "path", "detail"}, rows); err != nil {
		return err
	}
	return cli.Exit(fmt.Sprintf("%d problems found; re-index the affected files", len(problems)), common.ExitFailure)
}

// RunsAction lists recent index and extract runs.
func RunsAction(c *cli.Context) error {
	store, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.DB().ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}
	rows := make([][]any, len(runs))
	for i, r := range runs {
		rows[i] = []any{r.RunID, r.Command, r.StartedAt.Format("2006-01-02 15:04:05"), duration(r), r.Files, r.Records, r.Failures}
	}
	if err := common.Render(c, "Runs", []string{"id", "command", "started", "took", "files", "records", "failed"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\nTip: Use 'metawarc run <id>' to see per-file results\n")
	return nil
}

// RunAction shows the per-file results of one run, the latest by default.
func RunAction(c *cli.Context) error {
	store, err := open(c)
	if err != nil {
		return err
	}
	defer store.Close()
	database := store.DB()

	var run *models.Run
	if c.NArg() == 0 {
		runs, err := database.ListRuns(c.Context, 1)
		if err != nil {
			return fmt.Errorf("failed to get latest run: %w", err)
		}
		if len(runs) == 0 {
			return cli.Exit("no runs found. Run 'metawarc index <file.warc>' first", common.ExitMissingPrerequisite)
		}
		run = &runs[0]
	} else {
		id, err := strconv.ParseInt(c.Args().First(), 10, 64)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid run ID: %s", c.Args().First()), common.ExitUsage)
		}
		if run, err = database.GetRun(c.Context, id); err != nil {
			return cli.Exit(err.Error(), common.ExitFailure)
		}
	}

	files, err := database.GetRunFiles(c.Context, run.RunID)
	if err != nil {
		return fmt.Errorf("failed to get run files: %w", err)
	}

	fmt.Printf("Run %d: %s\n", run.RunID, run.Command)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Took:     %s\n", duration(*run))
	fmt.Printf("Files:    %d ok, %d failed, %d records\n\n", run.Files, run.Failures, run.Records)

	rows := make([][]any, len(files))
	for i, f := range files {
		rows[i] = []any{f.Filename, f.Status, f.Records, f.ErrorMessage}
	}
	return common.Render(c, "Run files", []string{"filename", "status", "records", "error"}, rows)
}

func duration(r models.Run) string {
	if r.FinishedAt == nil {
		return "unfinished"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
