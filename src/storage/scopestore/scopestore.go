package scopestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact kinds under a scope's processed directory.
const (
	KindData       = "data"
	KindMarkdown   = "output_md"
	KindSummaries  = "summaries"
	KindEmbeddings = "embeddings"
)

// Store lays out per-scope document artifacts on disk:
//
//	<base>/<scope>/unprocessed/<file>
//	<base>/<scope>/processed/data/<file>
//	<base>/<scope>/processed/output_md/<stem>.md
//	<base>/<scope>/processed/summaries/<stem>_summary.json
//	<base>/<scope>/processed/embeddings/<stem>_embedding.json
//
// Scopes are the data-isolation boundary; nothing here ever reads across
// scope directories.
type Store struct {
	baseDir string
}

// NewStore creates a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ScopeDir returns the root directory for one scope.
func (s *Store) ScopeDir(scopeID int64) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%d", scopeID))
}

// UnprocessedDir returns the directory holding not-yet-ingested originals.
func (s *Store) UnprocessedDir(scopeID int64) string {
	return filepath.Join(s.ScopeDir(scopeID), "unprocessed")
}

// ProcessedDir returns the per-kind artifact directory for a scope.
func (s *Store) ProcessedDir(scopeID int64, kind string) string {
	return filepath.Join(s.ScopeDir(scopeID), "processed", kind)
}

// UniqueFilename derives a collision-free stored name for an upload while
// keeping the original name readable: YYYYMMDD_HHMMSS_<uuid8>_<safe><ext>.
func UniqueFilename(originalFilename string) string {
	timestamp := time.Now().Format("20060102_150405")
	uniqueID := uuid.New().String()[:8]

	ext := filepath.Ext(originalFilename)
	name := strings.TrimSuffix(originalFilename, ext)

	var safe strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			safe.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			safe.WriteRune(r)
		case r > 127: // keep CJK and other non-ASCII name characters
			safe.WriteRune(r)
		}
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, uniqueID, strings.TrimSpace(safe.String()), ext)
}

// SaveUpload streams an uploaded file into the scope's unprocessed
// directory and returns its path and size.
func (s *Store) SaveUpload(scopeID int64, storedName string, r io.Reader) (string, int64, error) {
	dir := s.UnprocessedDir(scopeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create unprocessed directory: %w", err)
	}

	path := filepath.Join(dir, storedName)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write upload file: %w", err)
	}

	return path, size, nil
}

// Promote moves a scratch artifact into the scope's processed directory for
// the given kind and returns the final path.
func (s *Store) Promote(scopeID int64, kind, srcPath string) (string, error) {
	dir := s.ProcessedDir(scopeID, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create processed directory: %w", err)
	}

	dst := filepath.Join(dir, filepath.Base(srcPath))
	if err := MoveFile(srcPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// MoveFile renames src to dst, falling back to copy-and-remove when the
// paths live on different filesystems (scratch workspaces are under the
// system temp directory).
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", dst, err)
	}

	return os.Remove(src)
}
