// Package export renders tabular query results as a formatted table,
// delimited text, JSON Lines or an Excel workbook.
package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatJSONL Format = "jsonl"
)

// FormatForPath picks the file format from an output path's extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}

// FormatValue renders a cell. nil becomes the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

// RenderTable writes rows as a bordered text table.
func RenderTable(w io.Writer, title string, columns []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = FormatValue(v)
		}
		t.AppendRow(r)
	}
	t.Render()
}

// WriteCSV writes a header row followed by rows.
func WriteCSV(w io.Writer, columns []string, rows [][]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = FormatValue(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONL writes one JSON object per row with keys in column order.
// nil values become null.
func WriteJSONL(w io.Writer, columns []string, rows [][]any) error {
	bw := bufio.NewWriter(w)
	for n, row := range rows {
		bw.WriteByte('{')
		for i, col := range columns {
			if i > 0 {
				bw.WriteByte(',')
			}
			key, _ := json.Marshal(col)
			bw.Write(key)
			bw.WriteByte(':')
			var v any
			if i < len(row) {
				v = row[i]
			}
			val, err := json.Marshal(jsonValue(v))
			if err != nil {
				return fmt.Errorf("failed to encode row %d column %s: %w", n+1, col, err)
			}
			bw.Write(val)
		}
		bw.WriteString("}\n")
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write jsonl: %w", err)
	}
	return nil
}

func jsonValue(v any) any {
	switch x := v.(type) {
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case []byte:
		return string(x)
	}
	return v
}

// WriteXLSX saves rows as a single-sheet workbook at path.
func WriteXLSX(path, sheet string, columns []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			if v == nil {
				values[j] = ""
				continue
			}
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteFile writes rows to path in the format implied by its extension.
func WriteFile(path, sheet string, columns []string, rows [][]any) error {
	format := FormatForPath(path)
	if format == FormatXLSX {
		return WriteXLSX(path, sheet, columns, rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	write := WriteCSV
	if format == FormatJSONL {
		write = WriteJSONL
	}
	if err := write(f, columns, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
