package models

import "encoding/json"

// Column describes one column of a catalog table as seen by the query engine.
type Column struct {
	Name string
	Type string // SQLite affinity: TEXT or INTEGER
}

// Row is implemented by every catalog row type. Values are returned in the
// order of Columns(table).
type Row interface {
	Values() []any
}

// Record is one response record of a container file.
type Record struct {
	WarcID         string  `parquet:"warc_id" json:"warc_id"`
	URL            string  `parquet:"url" json:"url"`
	Offset         int64   `parquet:"offset" json:"offset"`
	Length         int64   `parquet:"length" json:"length"`
	ContentTypeRaw *string `parquet:"content_type_raw,optional" json:"content_type_raw"`
	ContentType    *string `parquet:"content_type,optional" json:"content_type"`
	Charset        *string `parquet:"charset,optional" json:"charset"`
	StatusCode     int64   `parquet:"status_code" json:"status_code"`
	ContentLength  int64   `parquet:"content_length" json:"content_length"`
	RecordDate     string  `parquet:"rec_date" json:"rec_date"`
	Source         string  `parquet:"source" json:"source"`
	Filename       string  `parquet:"filename" json:"filename"`
	Ext            string  `parquet:"ext" json:"ext"`
}

func (r Record) Values() []any {
	return []any{
		r.WarcID, r.URL, r.Offset, r.Length,
		nullable(r.ContentTypeRaw), nullable(r.ContentType), nullable(r.Charset),
		r.StatusCode, r.ContentLength, r.RecordDate, r.Source, r.Filename, r.Ext,
	}
}

// HeaderProperty is one HTTP header of one record.
type HeaderProperty struct {
	Key    string `parquet:"key" json:"key"`
	Value  string `parquet:"value" json:"value"`
	WarcID string `parquet:"warc_id" json:"warc_id"`
	Source string `parquet:"source" json:"source"`
}

func (h HeaderProperty) Values() []any {
	return []any{h.Key, h.Value, h.WarcID, h.Source}
}

// Link is one anchor tag found in an HTML response.
type Link struct {
	WarcID string  `parquet:"warc_id" json:"warc_id"`
	Source string  `parquet:"source" json:"source"`
	URL    string  `parquet:"url" json:"url"`
	Text   string  `parquet:"text" json:"text"`
	Href   *string `parquet:"href,optional" json:"href"`
	Class  *string `parquet:"class,optional" json:"class"`
	ID     *string `parquet:"id,optional" json:"id"`
}

func (l Link) Values() []any {
	return []any{l.WarcID, l.Source, l.URL, l.Text, nullable(l.Href), nullable(l.Class), nullable(l.ID)}
}

// DocumentMetadata holds the metadata extracted from one document payload.
// Metadata is a JSON object, or nil when nothing could be extracted.
type DocumentMetadata struct {
	WarcID   string  `parquet:"warc_id" json:"warc_id"`
	Offset   int64   `parquet:"offset" json:"offset"`
	Filename string  `parquet:"filename" json:"filename"`
	Ext      string  `parquet:"ext" json:"ext"`
	URL      string  `parquet:"url" json:"url"`
	Mime     *string `parquet:"mime,optional" json:"mime"`
	Metadata *string `parquet:"metadata,optional" json:"metadata"`
	Source   string  `parquet:"source" json:"source"`
}

func (d DocumentMetadata) Values() []any {
	return []any{d.WarcID, d.Offset, d.Filename, d.Ext, d.URL, nullable(d.Mime), nullable(d.Metadata), d.Source}
}

// SetMetadata stores m as JSON. An empty or nil map is stored as null.
func (d *DocumentMetadata) SetMetadata(m map[string]any) error {
	if len(m) == 0 {
		d.Metadata = nil
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s := string(data)
	d.Metadata = &s
	return nil
}

// MetadataMap decodes the stored metadata. It returns nil for null metadata.
func (d DocumentMetadata) MetadataMap() (map[string]any, error) {
	if d.Metadata == nil {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*d.Metadata), &m); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	recordColumns = []Column{
		{"warc_id", "TEXT"}, {"url", "TEXT"}, {"offset", "INTEGER"}, {"length", "INTEGER"},
		{"content_type_raw", "TEXT"}, {"content_type", "TEXT"}, {"charset", "TEXT"},
		{"status_code", "INTEGER"}, {"content_length", "INTEGER"}, {"rec_date", "TEXT"},
		{"source", "TEXT"}, {"filename", "TEXT"}, {"ext", "TEXT"},
	}
	headerColumns = []Column{
		{"key", "TEXT"}, {"value", "TEXT"}, {"warc_id", "TEXT"}, {"source", "TEXT"},
	}
	linkColumns = []Column{
		{"warc_id", "TEXT"}, {"source", "TEXT"}, {"url", "TEXT"}, {"text", "TEXT"},
		{"href", "TEXT"}, {"class", "TEXT"}, {"id", "TEXT"},
	}
	documentColumns = []Column{
		{"warc_id", "TEXT"}, {"offset", "INTEGER"}, {"filename", "TEXT"}, {"ext", "TEXT"},
		{"url", "TEXT"}, {"mime", "TEXT"}, {"metadata", "TEXT"}, {"source", "TEXT"},
	}
)

// Columns returns the column layout of a table type.
func Columns(t TableType) []Column {
	switch t {
	case TableRecords:
		return recordColumns
	case TableHeaders:
		return headerColumns
	case TableLinks:
		return linkColumns
	default:
		return documentColumns
	}
}

// ColumnNames returns the column names of a table type.
func ColumnNames(t TableType) []string {
	cols := Columns(t)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
