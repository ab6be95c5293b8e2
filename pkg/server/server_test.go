package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/extractors"
	"github.com/dtnitsch/metawarc/pkg/indexer"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/query"
	"github.com/dtnitsch/metawarc/pkg/warc/warctest"
)

const pdfID = "bbbbbbbb-0000-4000-8000-000000000002"

var pdfBody = warctest.PDF(map[string]string{"Title": "Report"})

func newTestServer(t *testing.T) (*Server, *metrics.Metrics) {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.CatalogPath = filepath.Join(dir, "catalog.db")
	cfg.DataDir = filepath.Join(dir, "data")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := catalog.Open(&cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	data := warctest.New().
		Response(warctest.Response{
			URL:         "https://example.org/",
			ContentType: "text/html",
			Body:        warctest.HTML("home", `<a href="/report.pdf">Report</a>`),
		}).
		Response(warctest.Response{
			ID:          pdfID,
			URL:         "https://example.org/report.pdf",
			ContentType: "application/pdf",
			Body:        pdfBody,
		}).
		Bytes()
	path := filepath.Join(dir, "crawl.warc")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m := metrics.New()
	router := extractors.NewRouter(logger, extractors.WithTempDir(t.TempDir()))
	_, err = indexer.New(store, router, logger, m, indexer.Options{}).
		Index(context.Background(), []string{path}, []models.TableType{models.TableLinks})
	require.NoError(t, err)

	return New("127.0.0.1:0", store, query.New(store, logger), m, logger), m
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, target, http.NoBody)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestFilesAndTables(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/files")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = get(t, s, "/api/tables")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = get(t, s, "/api/tables?table=links")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = get(t, s, "/api/tables?table=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecords(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/records?ext=pdf")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	rows := body["rows"].([]any)
	assert.Equal(t, pdfID, rows[0].([]any)[0])

	w = get(t, s, "/api/records?filter="+url.QueryEscape("status_code=200")+"&offset=1&limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = get(t, s, "/api/records?table=links")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestRecords_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{
		"/api/records?ext=pdf&mime=application/pdf",
		"/api/records?filter=" + url.QueryEscape("nope=1"),
		"/api/records?offset=-3",
		"/api/records?limit=many",
		"/api/records?table=nope",
	} {
		w := get(t, s, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestServer(t)
	w := get(t, s, "/api/stats?by=ext")
	require.Equal(t, http.StatusOK, w.Code)
	var report query.StatsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, query.StatsByExt, report.By)
	assert.Equal(t, int64(2), report.Total.Files)

	w = get(t, s, "/api/stats?by=size")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayload(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/records/"+pdfID+"/payload")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), pdfID+".pdf")
	assert.Equal(t, pdfBody, w.Body.Bytes())

	w = get(t, s, "/api/records/00000000-dead-4000-8000-000000000000/payload")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s, "/api/files")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `metawarc_http_requests_total{method="GET",route="/api/files",status="200"} 1`)
	assert.Contains(t, w.Body.String(), "metawarc_rows_written_total")
}
