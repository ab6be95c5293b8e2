package indexer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/extractors"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/warc"
	"github.com/dtnitsch/metawarc/pkg/warc/warctest"
)

const htmlID = "aaaaaaaa-0000-4000-8000-000000000001"

func threeRecordArchive(b *warctest.Builder) *warctest.Builder {
	return b.
		Warcinfo().
		Response(warctest.Response{
			ID:          htmlID,
			URL:         "https://example.org/index.html",
			ContentType: "text/html; charset=utf-8",
			Body: warctest.HTML("home",
				`<a href="/one" class="nav">One</a>`,
				`<a href="https://other.org/two" id="second">Two</a>`,
			),
		}).
		Request("https://example.org/paper.pdf").
		Response(warctest.Response{
			URL:         "https://example.org/paper.pdf",
			ContentType: "application/pdf",
			Body:        warctest.PDF(map[string]string{"Author": "Jane", "Title": "Paper"}),
		}).
		Response(warctest.Response{
			URL:         "https://example.org/blob",
			ContentType: "application/octet-stream",
			Body:        bytes.Repeat([]byte{0xde, 0xad}, 64),
		})
}

type fixture struct {
	store   *catalog.Store
	indexer *Indexer
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.CatalogPath = filepath.Join(dir, "catalog.db")
	cfg.DataDir = filepath.Join(dir, "data")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := catalog.Open(&cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	router := extractors.NewRouter(logger, extractors.WithTempDir(t.TempDir()), extractors.WithMetrics(m))
	return &fixture{
		store:   store,
		indexer: New(store, router, logger, m, Options{}),
		dir:     dir,
	}
}

func (f *fixture) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestIndex_EndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name    string
		builder *warctest.Builder
		file    string
	}{
		{"plain", warctest.New(), "crawl.warc"},
		{"gzip", warctest.NewGzip(), "crawl.warc.gz"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			path := f.write(t, tc.file, threeRecordArchive(tc.builder).Bytes())
			ctx := context.Background()

			sum, err := f.indexer.Index(ctx, []string{path}, []models.TableType{models.TableHeaders, models.TableLinks, models.TablePDFs})
			require.NoError(t, err)
			assert.Empty(t, sum.Failed)
			assert.Equal(t, 1, sum.Files)
			assert.Equal(t, int64(3), sum.Records)

			records, entry, err := catalog.Load[models.Record](ctx, f.store, path, models.TableRecords)
			require.NoError(t, err)
			assert.Len(t, records, 3)
			assert.Equal(t, int64(3), entry.ItemCount)
			assert.Equal(t, htmlID, records[0].WarcID)
			assert.Equal(t, "text/html", *records[0].ContentType)
			assert.Equal(t, "utf-8", *records[0].Charset)
			assert.Equal(t, "index.html", records[0].Filename)
			assert.Equal(t, "html", records[0].Ext)
			assert.Equal(t, int64(200), records[0].StatusCode)

			links, _, err := catalog.Load[models.Link](ctx, f.store, path, models.TableLinks)
			require.NoError(t, err)
			require.Len(t, links, 2)
			for _, l := range links {
				assert.Equal(t, htmlID, l.WarcID)
			}
			assert.Equal(t, "/one", *links[0].Href)
			assert.Equal(t, "second", *links[1].ID)

			pdfs, _, err := catalog.Load[models.DocumentMetadata](ctx, f.store, path, models.TablePDFs)
			require.NoError(t, err)
			require.Len(t, pdfs, 1)
			meta, err := pdfs[0].MetadataMap()
			require.NoError(t, err)
			assert.Equal(t, "Jane", meta["Author"])
			assert.Equal(t, "pdf", pdfs[0].Ext)

			headers, _, err := catalog.Load[models.HeaderProperty](ctx, f.store, path, models.TableHeaders)
			require.NoError(t, err)
			assert.NotEmpty(t, headers)

			file, err := f.store.DB().GetFile(ctx, path)
			require.NoError(t, err)
			require.NotNil(t, file)
			assert.Equal(t, int64(3), file.Records)
		})
	}
}

func TestIndex_LegacyOfficeProperties(t *testing.T) {
	f := newFixture(t)
	data := warctest.New().Response(warctest.Response{
		URL:         "https://example.org/report.doc",
		ContentType: "application/msword",
		Body:        warctest.OLE(map[string]string{"Title": "Budget 2019", "Author": "Finance Office"}),
	}).Bytes()
	path := f.write(t, "office.warc", data)
	ctx := context.Background()

	sum, err := f.indexer.Index(ctx, []string{path}, []models.TableType{models.TableOleDocs})
	require.NoError(t, err)
	assert.Empty(t, sum.Failed)

	docs, entry, err := catalog.Load[models.DocumentMetadata](ctx, f.store, path, models.TableOleDocs)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(1), entry.ItemCount)
	assert.Equal(t, "doc", docs[0].Ext)
	meta, err := docs[0].MetadataMap()
	require.NoError(t, err)
	assert.Equal(t, "Budget 2019", meta["Title"])
	assert.Equal(t, "Finance Office", meta["Author"])
}

func TestIndex_Idempotent(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "crawl.warc.gz", threeRecordArchive(warctest.NewGzip()).Bytes())
	ctx := context.Background()
	tables := []models.TableType{models.TableHeaders, models.TableLinks, models.TablePDFs}

	_, err := f.indexer.Index(ctx, []string{path}, tables)
	require.NoError(t, err)
	firstRecords, _, err := catalog.Load[models.Record](ctx, f.store, path, models.TableRecords)
	require.NoError(t, err)
	firstLinks, _, err := catalog.Load[models.Link](ctx, f.store, path, models.TableLinks)
	require.NoError(t, err)

	_, err = f.indexer.Index(ctx, []string{path}, tables)
	require.NoError(t, err)
	secondRecords, _, err := catalog.Load[models.Record](ctx, f.store, path, models.TableRecords)
	require.NoError(t, err)
	secondLinks, _, err := catalog.Load[models.Link](ctx, f.store, path, models.TableLinks)
	require.NoError(t, err)

	assert.Equal(t, firstRecords, secondRecords)
	assert.Equal(t, firstLinks, secondLinks)

	entries, err := f.store.Tables(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	problems, err := f.store.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestIndex_OffsetsReread(t *testing.T) {
	for _, b := range []*warctest.Builder{warctest.New(), warctest.NewGzip()} {
		f := newFixture(t)
		path := f.write(t, "crawl.warc", threeRecordArchive(b).Bytes())
		ctx := context.Background()

		_, err := f.indexer.Index(ctx, []string{path}, nil)
		require.NoError(t, err)
		records, _, err := catalog.Load[models.Record](ctx, f.store, path, models.TableRecords)
		require.NoError(t, err)

		file, err := os.Open(path)
		require.NoError(t, err)
		for _, row := range records {
			rec, err := warc.ReadAt(file, row.Offset)
			require.NoError(t, err)
			assert.Equal(t, row.URL, rec.TargetURI)
			n, err := rec.Finish()
			require.NoError(t, err)
			assert.Equal(t, row.Length, n)
		}
		file.Close()
	}
}

func TestExtract_SecondaryPass(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "crawl.warc.gz", threeRecordArchive(warctest.NewGzip()).Bytes())
	ctx := context.Background()

	_, err := f.indexer.Index(ctx, []string{path}, nil)
	require.NoError(t, err)
	_, _, err = catalog.Load[models.Link](ctx, f.store, path, models.TableLinks)
	require.ErrorIs(t, err, catalog.ErrArtifactMissing)

	sum, err := f.indexer.Extract(ctx, nil, models.TableLinks)
	require.NoError(t, err)
	assert.Empty(t, sum.Failed)
	assert.Equal(t, int64(1), sum.Records)

	links, _, err := catalog.Load[models.Link](ctx, f.store, path, models.TableLinks)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = f.indexer.Extract(ctx, nil, models.TablePDFs)
	require.NoError(t, err)
	pdfs, _, err := catalog.Load[models.DocumentMetadata](ctx, f.store, path, models.TablePDFs)
	require.NoError(t, err)
	require.Len(t, pdfs, 1)
	assert.NotNil(t, pdfs[0].Metadata)
}

func TestExtract_NotIndexed(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "fresh.warc", threeRecordArchive(warctest.New()).Bytes())

	sum, err := f.indexer.Extract(context.Background(), []string{path}, models.TablePDFs)
	require.NoError(t, err)
	require.Len(t, sum.Failed, 1)
	assert.ErrorIs(t, sum.Failed[0], ErrNotIndexed)
}

func TestExtract_RejectsNonFamilyTable(t *testing.T) {
	f := newFixture(t)
	_, err := f.indexer.Extract(context.Background(), nil, models.TableHeaders)
	assert.Error(t, err)
}

func TestIndex_BatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	good := f.write(t, "good.warc", threeRecordArchive(warctest.New()).Bytes())
	missing := filepath.Join(f.dir, "missing.warc")

	sum, err := f.indexer.Index(context.Background(), []string{missing, good}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	require.Len(t, sum.Failed, 1)
	assert.Equal(t, missing, sum.Failed[0].Path)

	files, err := f.store.DB().GetRunFiles(context.Background(), sum.RunID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestIndex_StrictFramingFailsFile(t *testing.T) {
	f := newFixture(t)
	data := warctest.New().
		Response(warctest.Response{URL: "https://example.org/a", ContentType: "text/plain", Body: []byte("a")}).
		Garbage([]byte("junk\r\n")).
		Bytes()
	path := f.write(t, "damaged.warc", data)

	strict := New(f.store, extractors.NewRouter(slog.Default()), slog.New(slog.NewTextHandler(io.Discard, nil)), nil, Options{Framing: warc.FramingStrict})
	sum, err := strict.Index(context.Background(), []string{path}, nil)
	require.NoError(t, err)
	require.Len(t, sum.Failed, 1)
	var fe *warc.FramingError
	assert.ErrorAs(t, sum.Failed[0].Err, &fe)

	lenient, err := f.indexer.Index(context.Background(), []string{path}, nil)
	require.NoError(t, err)
	assert.Empty(t, lenient.Failed)
	assert.Equal(t, 1, lenient.Skipped)
}

func TestEstimateRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crawl.warc.gz")
	assert.Equal(t, int64(-1), estimateRecords(path))

	require.NoError(t, os.WriteFile(path+".cdx", []byte(" CDX N b a m s k r M S V g\nx 1\ny 2\nz 3"), 0o644))
	assert.Equal(t, int64(3), estimateRecords(path))
}

func TestWarcID(t *testing.T) {
	assert.Equal(t, "1234", WarcID("<urn:uuid:1234>"))
	assert.Equal(t, "plain", WarcID("plain"))
}
