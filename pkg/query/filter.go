package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dtnitsch/metawarc/models"
)

// FilterResult represents parsed filter components for SQL generation.
type FilterResult struct {
	WhereClause string
	Args        []any
}

// ParseFilter parses a filter expression for table t into a parameterized
// SQL WHERE clause.
// Supported syntax:
//   - Comparison: "status_code>=400", "ext=pdf", "content_type!=text/html"
//   - Pattern: "url~%example.org%" (SQL LIKE)
//   - Null test: "charset=null", "charset!=null"
//   - Boolean: "ext=pdf AND status_code=200", "ext=doc OR ext=docx"
//
// AND binds tighter than OR. Field names must be columns of t.
func ParseFilter(t models.TableType, filter string) (*FilterResult, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return &FilterResult{WhereClause: "1=1"}, nil
	}

	var (
		groups []string
		args   []any
	)
	for _, group := range splitByKeyword(filter, "OR") {
		var parts []string
		for _, part := range splitByKeyword(group, "AND") {
			clause, partArgs, err := parseSimpleFilter(t, part)
			if err != nil {
				return nil, err
			}
			parts = append(parts, clause)
			args = append(args, partArgs...)
		}
		groups = append(groups, "("+strings.Join(parts, " AND ")+")")
	}
	return &FilterResult{
		WhereClause: strings.Join(groups, " OR "),
		Args:        args,
	}, nil
}

var operators = []string{">=", "<=", "!=", "=", ">", "<", "~"}

// parseSimpleFilter parses a single comparison.
// Examples: "status_code>=400", "ext=pdf", "url~%.gov/%"
func parseSimpleFilter(t models.TableType, filter string) (string, []any, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return "", nil, fmt.Errorf("%w: empty condition", ErrInvalidFilter)
	}

	idx, op := findOperator(filter)
	if idx <= 0 {
		return "", nil, fmt.Errorf("%w: %q is not a comparison", ErrInvalidFilter, filter)
	}
	field := strings.ToLower(strings.TrimSpace(filter[:idx]))
	value := strings.TrimSpace(filter[idx+len(op):])

	col, ok := column(t, field)
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown field %q for %s", ErrInvalidFilter, field, t)
	}

	if strings.EqualFold(value, "null") {
		switch op {
		case "=":
			return quoteIdent(col.Name) + " IS NULL", nil, nil
		case "!=":
			return quoteIdent(col.Name) + " IS NOT NULL", nil, nil
		}
		return "", nil, fmt.Errorf("%w: null only works with = and !=", ErrInvalidFilter)
	}

	value = strings.Trim(value, `"'`)
	if op == "~" {
		return quoteIdent(col.Name) + " LIKE ?", []any{value}, nil
	}

	var arg any = value
	if col.Type == "INTEGER" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %s expects a number, got %q", ErrInvalidFilter, field, value)
		}
		arg = n
	}
	return quoteIdent(col.Name) + " " + op + " ?", []any{arg}, nil
}

// findOperator returns the earliest operator in s. At equal positions the
// two-character operator wins.
func findOperator(s string) (int, string) {
	best, bestOp := -1, ""
	for _, op := range operators {
		i := strings.Index(s, op)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(op) > len(bestOp)) {
			best, bestOp = i, op
		}
	}
	return best, bestOp
}

// splitByKeyword splits a string by AND/OR keywords (case-insensitive).
func splitByKeyword(s, keyword string) []string {
	upper := strings.ToUpper(s)
	pattern := " " + keyword + " "

	var parts []string
	remaining := s
	upperRemaining := upper

	for {
		idx := strings.Index(upperRemaining, pattern)
		if idx == -1 {
			parts = append(parts, remaining)
			break
		}

		parts = append(parts, remaining[:idx])
		remaining = remaining[idx+len(pattern):]
		upperRemaining = upperRemaining[idx+len(pattern):]
	}

	return parts
}

func column(t models.TableType, name string) (models.Column, bool) {
	for _, c := range models.Columns(t) {
		if c.Name == name {
			return c, true
		}
	}
	return models.Column{}, false
}

func hasColumn(t models.TableType, name string) bool {
	_, ok := column(t, name)
	return ok
}

// quoteIdent quotes a column name; "offset" is a keyword in SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
