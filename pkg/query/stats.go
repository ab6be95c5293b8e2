package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/dtnitsch/metawarc/models"
)

// StatsBy names the grouping key of Stats.
type StatsBy string

const (
	StatsByMime StatsBy = "mime"
	StatsByExt  StatsBy = "ext"
)

// TotalKey labels the summary row of a stats report.
const TotalKey = "#total"

// noneKey groups records without a content type or extension.
const noneKey = "(none)"

// ParseStatsBy validates a grouping key.
func ParseStatsBy(s string) (StatsBy, error) {
	switch StatsBy(s) {
	case StatsByMime, StatsByExt:
		return StatsBy(s), nil
	case "":
		return StatsByMime, nil
	}
	return "", fmt.Errorf("unknown stats mode %q (use mime or ext)", s)
}

// StatRow aggregates the records sharing one key.
type StatRow struct {
	Key   string  `json:"key"`
	Files int64   `json:"files"`
	Size  int64   `json:"size"`
	Share float64 `json:"share"` // percent of the total size
}

// StatsReport is the outcome of Stats. Rows are sorted by size, largest
// first.
type StatsReport struct {
	By      StatsBy   `json:"by"`
	Rows    []StatRow `json:"rows"`
	Total   StatRow   `json:"total"`
	Skipped []string  `json:"skipped,omitempty"`
}

// Stats counts records and sums their container length per content type or
// extension.
func (s *Service) Stats(ctx context.Context, files []string, by StatsBy) (*StatsReport, error) {
	if _, err := ParseStatsBy(string(by)); err != nil {
		return nil, err
	}

	groups := make(map[string]*StatRow)
	report := &StatsReport{By: by, Total: StatRow{Key: TotalKey, Share: 100}}
	var err error
	report.Skipped, err = scan(ctx, s, files, models.TableRecords, Selection{}, func(_ string, r models.Record) error {
		key := r.Ext
		if by == StatsByMime {
			key = ""
			if r.ContentType != nil {
				key = *r.ContentType
			}
		}
		if key == "" {
			key = noneKey
		}
		g, ok := groups[key]
		if !ok {
			g = &StatRow{Key: key}
			groups[key] = g
		}
		g.Files++
		g.Size += r.Length
		report.Total.Files++
		report.Total.Size += r.Length
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if report.Total.Size > 0 {
			g.Share = float64(g.Size) * 100 / float64(report.Total.Size)
		}
		report.Rows = append(report.Rows, *g)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		if report.Rows[i].Size != report.Rows[j].Size {
			return report.Rows[i].Size > report.Rows[j].Size
		}
		return report.Rows[i].Key < report.Rows[j].Key
	})
	return report, nil
}

// Table renders the report as columns and rows, total last. Sizes are
// humanized when human is set.
func (r *StatsReport) Table(human bool) ([]string, [][]any) {
	columns := []string{string(r.By), "files", "size", "share"}
	rows := make([][]any, 0, len(r.Rows)+1)
	for _, row := range append(append([]StatRow{}, r.Rows...), r.Total) {
		var size any = row.Size
		files := any(row.Files)
		if human {
			size = humanize.IBytes(uint64(row.Size))
			files = humanize.Comma(row.Files)
		}
		rows = append(rows, []any{row.Key, files, size, fmt.Sprintf("%.2f", row.Share)})
	}
	return columns, rows
}
