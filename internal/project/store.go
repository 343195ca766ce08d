// Package project materializes generated files on disk and exports them.
package project

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gensite/internal/protocol"
	"gensite/internal/watcher"
)

const DefaultDir = "generated_project"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid file path")
)

// Store reads and writes files below a single root directory.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a store rooted at root. The directory is created lazily.
func NewStore(root string, logger *slog.Logger) *Store {
	if root == "" {
		root = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: filepath.Clean(root), logger: logger}
}

// Root returns the root directory.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a slash-separated project name onto the filesystem.
func (s *Store) resolve(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(s.root, local), nil
}

// CreateFile writes content to name, creating parent directories and
// replacing any existing file.
func (s *Store) CreateFile(name, content string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.logger.Debug("file written", "file", name, "bytes", len(content))
	return nil
}

// ReadFile returns the content of name.
func (s *Store) ReadFile(name string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// WriteArchive writes a zip of every file under the root to w. A missing or
// empty root produces a valid archive with no entries.
func (s *Store) WriteArchive(w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{
			Name:   filepath.ToSlash(rel),
			Method: zip.Deflate,
		}
		if info, err := d.Info(); err == nil {
			header.Modified = info.ModTime()
		}

		dst, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("archive project: %w", err)
	}
	return zw.Close()
}

// Reset makes the root an existing, empty directory.
func (s *Store) Reset() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("read project dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("clear project dir: %w", err)
		}
	}
	s.logger.Info("project directory reset", "root", s.root, "removed", len(entries))
	return nil
}

// Tree returns the project tree down to depth levels.
func (s *Store) Tree(depth int) []protocol.FileNode {
	return watcher.BuildFileTree(s.root, depth)
}

// Count returns the number of files in the project.
func (s *Store) Count() int {
	return watcher.CountFiles(s.root)
}
