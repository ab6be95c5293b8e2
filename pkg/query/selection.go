package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dtnitsch/metawarc/models"
)

var (
	// ErrSelectionConflict is returned when more than one selection mode is
	// given.
	ErrSelectionConflict = errors.New("choose only one of mimes, exts or a filter")
	// ErrInvalidFilter is returned for filter expressions that do not parse
	// or name unknown fields.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrNotFound is returned by Fetch when no registered file holds the
	// requested record.
	ErrNotFound = errors.New("record not found")
)

// Selection picks rows. At most one of Mimes, Exts and a predicate (Filter or
// RawWhere) may be set; with none, Offset and Limit page through all rows.
// Offset and Limit also apply to the matches of a filtered selection.
type Selection struct {
	Mimes    []string
	Exts     []string
	Filter   string
	RawWhere string // trusted SQL, never taken from network input
	Offset   int
	Limit    int // <= 0 means no limit
}

// Validate reports conflicting selection modes.
func (s Selection) Validate() error {
	modes := 0
	if len(s.Mimes) > 0 {
		modes++
	}
	if len(s.Exts) > 0 {
		modes++
	}
	if s.Filter != "" || s.RawWhere != "" {
		modes++
	}
	if modes > 1 || (s.Filter != "" && s.RawWhere != "") {
		return ErrSelectionConflict
	}
	if s.Offset < 0 {
		return fmt.Errorf("%w: negative offset", ErrInvalidFilter)
	}
	return nil
}

// Filtered reports whether the selection narrows rows.
func (s Selection) Filtered() bool {
	return len(s.Mimes) > 0 || len(s.Exts) > 0 || s.Filter != "" || s.RawWhere != ""
}

// where builds the SQL condition for table t.
func (s Selection) where(t models.TableType) (*FilterResult, error) {
	switch {
	case len(s.Mimes) > 0:
		col := "content_type"
		if t.IsDocumentTable() {
			col = "mime"
		}
		return inClause(t, col, s.Mimes)
	case len(s.Exts) > 0:
		return inClause(t, "ext", s.Exts)
	case s.RawWhere != "":
		return &FilterResult{WhereClause: s.RawWhere}, nil
	}
	return ParseFilter(t, s.Filter)
}

func inClause(t models.TableType, col string, values []string) (*FilterResult, error) {
	if !hasColumn(t, col) {
		return nil, fmt.Errorf("%w: table %s has no %s column", ErrInvalidFilter, t, col)
	}
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return &FilterResult{
		WhereClause: fmt.Sprintf("%s IN (%s)", quoteIdent(col), strings.Join(placeholders, ",")),
		Args:        args,
	}, nil
}

// SplitList splits a comma-separated flag value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
