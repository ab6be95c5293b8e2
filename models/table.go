package models

import (
	"fmt"
	"strings"
	"time"
)

// TableType names one kind of per-file artifact in the catalog.
type TableType string

const (
	TableRecords   TableType = "records"
	TableHeaders   TableType = "headers"
	TableLinks     TableType = "links"
	TableOleDocs   TableType = "oledocs"
	TableOOXMLDocs TableType = "ooxmldocs"
	TablePDFs      TableType = "pdfs"
	TableImages    TableType = "images"
)

// AllTableTypes lists every table type in catalog order.
var AllTableTypes = []TableType{
	TableRecords, TableHeaders, TableLinks, TableOleDocs, TableOOXMLDocs, TablePDFs, TableImages,
}

// IsDocumentTable reports whether rows of t are DocumentMetadata.
func (t TableType) IsDocumentTable() bool {
	switch t {
	case TableOleDocs, TableOOXMLDocs, TablePDFs, TableImages:
		return true
	}
	return false
}

// ParseTableType validates a table type name.
func ParseTableType(s string) (TableType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllTableTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table type: %q (use one of: %s)", s, JoinTableTypes(AllTableTypes))
}

// ParseTableTypes parses a comma-separated table type list, dropping duplicates.
func ParseTableTypes(s string) ([]TableType, error) {
	var out []TableType
	seen := make(map[TableType]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseTableType(part)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// JoinTableTypes renders table types as a comma-separated list.
func JoinTableTypes(types []TableType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// SourceFile is one indexed container file.
type SourceFile struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Records   int64     `json:"records"`
	IndexedAt time.Time `json:"indexed_at"`
}

// TableEntry locates the artifact holding one source file's rows of one table type.
type TableEntry struct {
	Source    string    `json:"source"`
	TableType TableType `json:"table_type"`
	Path      string    `json:"path"`
	ItemCount int64     `json:"item_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run is one index or extract invocation.
type Run struct {
	RunID      int64
	Command    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Files      int
	Records    int64
	Failures   int
}
