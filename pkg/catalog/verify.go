package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/artifact_manager"
)

// ProblemKind classifies a catalog inconsistency.
type ProblemKind string

const (
	ProblemMissingArtifact    ProblemKind = "missing-artifact"
	ProblemUnreadableArtifact ProblemKind = "unreadable-artifact"
	ProblemCountMismatch      ProblemKind = "count-mismatch"
	ProblemOrphanDirectory    ProblemKind = "orphan-directory"
	ProblemMissingSource      ProblemKind = "missing-source"
)

// Problem is one inconsistency found by Verify.
type Problem struct {
	Kind      ProblemKind
	Source    string
	TableType models.TableType
	Path      string
	Detail    string
}

func (p Problem) String() string {
	if p.Detail == "" {
		return fmt.Sprintf("%s: %s", p.Kind, p.Path)
	}
	return fmt.Sprintf("%s: %s (%s)", p.Kind, p.Path, p.Detail)
}

// Verify cross-checks the registries against the artifacts on disk. It
// reports missing or unreadable artifacts, row counts that differ from the
// registry, artifact directories no entry points at, and registered source
// files that no longer exist.
func (s *Store) Verify(ctx context.Context) ([]Problem, error) {
	entries, err := s.db.ListTables(ctx, "")
	if err != nil {
		return nil, err
	}

	var problems []Problem
	known := map[string]bool{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		known[filepath.Dir(e.Path)] = true

		n, err := artifact_manager.RowCount(e.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems = append(problems, Problem{Kind: ProblemMissingArtifact, Source: e.Source, TableType: e.TableType, Path: e.Path})
		case err != nil:
			problems = append(problems, Problem{Kind: ProblemUnreadableArtifact, Source: e.Source, TableType: e.TableType, Path: e.Path, Detail: err.Error()})
		case n != e.ItemCount:
			problems = append(problems, Problem{
				Kind:      ProblemCountMismatch,
				Source:    e.Source,
				TableType: e.TableType,
				Path:      e.Path,
				Detail:    fmt.Sprintf("registry %d, artifact %d", e.ItemCount, n),
			})
		}
	}

	dirs, err := s.artifacts.ListSourceDirs()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if !known[dir] {
			problems = append(problems, Problem{Kind: ProblemOrphanDirectory, Path: dir})
		}
	}

	files, err := s.db.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := os.Stat(f.Path); errors.Is(err, os.ErrNotExist) {
			problems = append(problems, Problem{Kind: ProblemMissingSource, Source: f.Path, Path: f.Path})
		}
	}

	s.logger.Debug("catalog verified", "entries", len(entries), "problems", len(problems))
	return problems, nil
}
