package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/artifact_manager"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.CatalogPath = filepath.Join(dir, "catalog.db")
	cfg.DataDir = filepath.Join(dir, "data")
	s, err := Open(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestOpenExisting_Missing(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.db")
	_, err := OpenExisting(&cfg, slog.Default())
	assert.ErrorIs(t, err, ErrCatalogNotFound)
}

func TestReplaceAndLoad(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	source := filepath.Join(dir, "a.warc")

	rows := []models.Record{
		{WarcID: "1", URL: "https://x.org/", Offset: 0, Length: 10, Source: source},
		{WarcID: "2", URL: "https://x.org/b", Offset: 10, Length: 20, Source: source},
	}
	require.NoError(t, Replace(ctx, s, source, models.TableRecords, rows))
	require.NoError(t, Replace(ctx, s, source, models.TableRecords, rows[:1]))

	got, entry, err := Load[models.Record](ctx, s, source, models.TableRecords)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int64(1), entry.ItemCount)

	tables, err := s.Tables(ctx, "")
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestReplace_FailedRegistryWriteKeepsOldArtifact(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	source := filepath.Join(dir, "a.warc")

	rows := []models.Record{
		{WarcID: "1", URL: "https://x.org/", Source: source},
		{WarcID: "2", URL: "https://x.org/b", Source: source},
	}
	require.NoError(t, Replace(ctx, s, source, models.TableRecords, rows))

	_, err := s.DB().ExecContext(ctx, `
		CREATE TRIGGER deny_insert BEFORE INSERT ON tables BEGIN SELECT RAISE(ABORT, 'registry locked'); END;
		CREATE TRIGGER deny_update BEFORE UPDATE ON tables BEGIN SELECT RAISE(ABORT, 'registry locked'); END;
	`)
	require.NoError(t, err)
	err = Replace(ctx, s, source, models.TableRecords, rows[:1])
	require.Error(t, err)

	_, err = s.DB().ExecContext(ctx, `DROP TRIGGER deny_insert; DROP TRIGGER deny_update;`)
	require.NoError(t, err)
	got, entry, err := Load[models.Record](ctx, s, source, models.TableRecords)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(2), entry.ItemCount)

	entries, err := os.ReadDir(filepath.Dir(entry.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "staged artifact left behind")
}

func TestReplace_ClosedRegistryKeepsOldArtifact(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()
	source := filepath.Join(dir, "a.warc")
	rows := []models.Record{{WarcID: "1", Source: source}, {WarcID: "2", Source: source}}
	require.NoError(t, Replace(ctx, s, source, models.TableRecords, rows))
	path := s.Artifacts().ArtifactPath(source, models.TableRecords)

	require.NoError(t, s.DB().Close())
	require.Error(t, Replace(ctx, s, source, models.TableRecords, rows[:1]))

	n, err := artifact_manager.RowCount(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSwapIn_Restore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.parquet")
	staged := filepath.Join(dir, "records.parquet.tmp-1")

	require.NoError(t, os.WriteFile(staged, []byte("new"), 0o644))
	restore, err := swapIn(staged, path)
	require.NoError(t, err)
	require.NoError(t, restore())
	assert.NoFileExists(t, path)

	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(staged, []byte("new"), 0o644))
	restore, err = swapIn(staged, path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	require.NoError(t, restore())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestLoad_NotRegistered(t *testing.T) {
	s, _ := newStore(t)
	_, _, err := Load[models.Link](context.Background(), s, "/nowhere.warc", models.TableLinks)
	assert.ErrorIs(t, err, ErrArtifactMissing)
}

func TestVerify(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	good := filepath.Join(dir, "good.warc")
	gone := filepath.Join(dir, "gone.warc")
	require.NoError(t, os.WriteFile(good, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(gone, []byte("x"), 0o644))
	require.NoError(t, s.UpsertFile(ctx, models.SourceFile{Path: good, Size: 1}))
	require.NoError(t, s.UpsertFile(ctx, models.SourceFile{Path: gone, Size: 1}))

	require.NoError(t, Replace(ctx, s, good, models.TableRecords, []models.Record{{WarcID: "1"}}))
	require.NoError(t, Replace(ctx, s, good, models.TableHeaders, []models.HeaderProperty{{Key: "k"}}))
	require.NoError(t, Replace(ctx, s, gone, models.TableRecords, []models.Record{{WarcID: "1"}}))

	problems, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	// Break things.
	require.NoError(t, os.Remove(s.Artifacts().ArtifactPath(good, models.TableHeaders)))
	require.NoError(t, os.WriteFile(s.Artifacts().ArtifactPath(gone, models.TableRecords), []byte("not parquet"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Artifacts().BaseDir(), "stray-000000000000"), 0o750))
	require.NoError(t, os.Remove(gone))
	_, err = s.DB().ExecContext(ctx, `UPDATE tables SET item_count = 7 WHERE source = ? AND table_type = 'records'`, good)
	require.NoError(t, err)

	problems, err = s.Verify(ctx)
	require.NoError(t, err)

	kinds := map[ProblemKind]int{}
	for _, p := range problems {
		kinds[p.Kind]++
	}
	assert.Equal(t, map[ProblemKind]int{
		ProblemMissingArtifact:    1,
		ProblemUnreadableArtifact: 1,
		ProblemCountMismatch:      1,
		ProblemOrphanDirectory:    1,
		ProblemMissingSource:      1,
	}, kinds)
}
