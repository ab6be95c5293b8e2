// Package artifact_manager stores catalog rows as Parquet artifacts, one
// directory per source container file.
package artifact_manager

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/dtnitsch/metawarc/models"
)

const (
	DefaultBaseDir = "metawarc-data"
	ArtifactExt    = ".parquet"
)

// Manager lays out artifact paths under a base directory.
type Manager struct {
	baseDir string
}

// NewManager creates a new Artifact Manager instance.
// It ensures the base directory exists.
func NewManager(baseDir string) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Manager{baseDir: abs}, nil
}

// BaseDir returns the absolute data directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// getShortHash generates a short, stable hash of a source path.
func getShortHash(source string) string {
	hash := sha256.Sum256([]byte(source))
	return fmt.Sprintf("%x", hash[:6]) // Use first 6 bytes for a 12-char hex string
}

// sanitizeSlug creates a filesystem-safe slug from a source file name.
var invalidFilenameChar = regexp.MustCompile(`[^a-zA-Z0-9\-_]+`)

func sanitizeSlug(source string) string {
	base := filepath.Base(source)
	for _, ext := range []string{".gz", ".warc"} {
		base = strings.TrimSuffix(base, ext)
	}
	safe := invalidFilenameChar.ReplaceAllString(base, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "source"
	}
	return safe
}

// SourceDir returns the artifact directory of a source file.
// Example: metawarc-data/crawl-00001-3fa2b1c09d4e/
func (m *Manager) SourceDir(source string) string {
	return filepath.Join(m.baseDir, fmt.Sprintf("%s-%s", sanitizeSlug(source), getShortHash(source)))
}

// ArtifactPath returns where the rows of one table type of source live.
func (m *Manager) ArtifactPath(source string, t models.TableType) string {
	return filepath.Join(m.SourceDir(source), string(t)+ArtifactExt)
}

// ListSourceDirs returns every artifact directory under the base directory.
func (m *Manager) ListSourceDirs() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(m.baseDir, e.Name()))
		}
	}
	return dirs, nil
}

// Write stores rows at path. The rows land in a temporary file in the same
// directory which is renamed over path, so readers see either the old or
// the new artifact.
func Write[T any](path string, rows []T) error {
	tmpName, err := Stage(path, rows)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace artifact: %w", err)
	}
	return nil
}

// Stage writes rows to a temporary file beside path and returns its name.
// The caller renames it into place or removes it.
func Stage[T any](path string, rows []T) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if err := parquet.Write(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	return tmpName, nil
}

// Read loads all rows of the artifact at path.
func Read[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return rows, nil
}

// RowCount returns the number of rows in the artifact at path without
// decoding them.
func RowCount(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat artifact: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	return pf.NumRows(), nil
}
