package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// EntryKind is the result of an existence check.
type EntryKind int

const (
	EntryAbsent EntryKind = iota
	EntryFile
	EntryFolder
)

// Handle identifies one document on disk.
type Handle struct {
	Path    string // slash-separated, relative to the store root
	ModTime time.Time
}

// Store is the local document store the sync engine reads and writes.
// Paths are relative to the store root and slash-separated.
type Store interface {
	ListDocuments(folder string) ([]Handle, error)
	ReadDocument(h Handle) (string, error)
	WriteDocument(h Handle, content string) error
	CreateDocument(path, content string) error
	EnsureFolder(path string) error
	Entry(path string) EntryKind
}

// DirStore implements Store over an OS directory tree.
type DirStore struct {
	Root            string
	IgnorePatterns  []string
	IncludePatterns []string
}

// NewDirStore creates a store rooted at the given directory.
func NewDirStore(root string, ignorePatterns, includePatterns []string) *DirStore {
	return &DirStore{
		Root:            root,
		IgnorePatterns:  ignorePatterns,
		IncludePatterns: includePatterns,
	}
}

func (s *DirStore) abs(relPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(relPath))
}

// ListDocuments returns every markdown document under folder, recursively,
// honoring the configured ignore and include patterns.
func (s *DirStore) ListDocuments(folder string) ([]Handle, error) {
	root := s.abs(folder)
	var handles []Handle

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}

		relPath, _ := filepath.Rel(s.Root, path)
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			// Include patterns apply to files only; pruning here would
			// hide matching files in unmatched directories.
			if s.matchesIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.shouldIgnore(relPath) {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(relPath), ".md") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		handles = append(handles, Handle{Path: relPath, ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder %s: %w", folder, err)
	}

	return handles, nil
}

// ReadDocument reads a document's raw text.
func (s *DirStore) ReadDocument(h Handle) (string, error) {
	data, err := os.ReadFile(s.abs(h.Path))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", h.Path, err)
	}
	return string(data), nil
}

// WriteDocument overwrites a document's content.
func (s *DirStore) WriteDocument(h Handle, content string) error {
	if err := os.WriteFile(s.abs(h.Path), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", h.Path, err)
	}
	return nil
}

// CreateDocument writes a new document, creating parent folders as
// needed. An existing file at the path is overwritten.
func (s *DirStore) CreateDocument(path, content string) error {
	absPath := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", path, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// EnsureFolder creates a folder (and parents) when absent.
func (s *DirStore) EnsureFolder(path string) error {
	if err := os.MkdirAll(s.abs(path), 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// Entry reports what exists at the given path.
func (s *DirStore) Entry(path string) EntryKind {
	info, err := os.Stat(s.abs(path))
	if err != nil {
		return EntryAbsent
	}
	if info.IsDir() {
		return EntryFolder
	}
	return EntryFile
}

// matchesIgnore checks a relative path against the ignore patterns.
func (s *DirStore) matchesIgnore(relPath string) bool {
	for _, pattern := range s.IgnorePatterns {
		matched, err := doublestar.Match(pattern, relPath)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// shouldIgnore checks a relative path against ignore/include patterns.
func (s *DirStore) shouldIgnore(relPath string) bool {
	if s.matchesIgnore(relPath) {
		return true
	}

	if len(s.IncludePatterns) > 0 {
		for _, pattern := range s.IncludePatterns {
			matched, err := doublestar.Match(pattern, relPath)
			if err != nil {
				continue
			}
			if matched {
				return false
			}
		}
		return true // Didn't match any include pattern
	}

	return false
}
