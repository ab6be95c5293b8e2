package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	testColumns = []string{"offset", "url", "content_type"}
	testRows    = [][]any{
		{int64(0), "https://x.org/", "text/html"},
		{int64(512), "https://x.org/a,b", nil},
	}
)

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testColumns, testRows))
	assert.Equal(t, "offset,url,content_type\n0,https://x.org/,text/html\n512,\"https://x.org/a,b\",\n", buf.String())
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, "records", testColumns, testRows)
	out := buf.String()
	assert.Contains(t, out, "records")
	assert.Contains(t, out, "CONTENT_TYPE")
	assert.Contains(t, out, "https://x.org/a,b")
}

func TestWriteFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteFile(path, "records", testColumns, testRows))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("records")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, testColumns, rows[0])
	assert.Equal(t, "512", rows[2][0])
}

func TestWriteFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, "", testColumns, testRows))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "offset,url,content_type")
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	var missing *string
	rows := append(append([][]any{}, testRows...), []any{int64(9), "https://x.org/\"q\"", missing})
	require.NoError(t, WriteJSONL(&buf, testColumns, rows))
	assert.Equal(t,
		`{"offset":0,"url":"https://x.org/","content_type":"text/html"}`+"\n"+
			`{"offset":512,"url":"https://x.org/a,b","content_type":null}`+"\n"+
			`{"offset":9,"url":"https://x.org/\"q\"","content_type":null}`+"\n",
		buf.String())
}

func TestWriteFile_JSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, WriteFile(path, "", testColumns, testRows))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.Len(t, lines, 2)
	var row map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &row))
	assert.Equal(t, map[string]any{"offset": float64(512), "url": "https://x.org/a,b", "content_type": nil}, row)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatXLSX, FormatForPath("a.XLSX"))
	assert.Equal(t, FormatJSONL, FormatForPath("out/rows.jsonl"))
	assert.Equal(t, FormatJSONL, FormatForPath("rows.ndjson"))
	assert.Equal(t, FormatCSV, FormatForPath("rows.csv"))
	assert.Equal(t, FormatCSV, FormatForPath("rows"))
}

func TestFormatValue(t *testing.T) {
	s := "x"
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "x", FormatValue(&s))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "1.5", FormatValue(1.5))
}
