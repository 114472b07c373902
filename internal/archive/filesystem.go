package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"almaseo-go/internal/seo"
)

// FileSystemArchive stores blobs as files below a root directory. Slashes
// in blob names become subdirectories:
//
//	<root>/
//	  redirects/<timestamp>.csv
//	  history/<post>/<export-id>.json.age
//	  backups/<site>/<timestamp>.db
type FileSystemArchive struct {
	root string
}

// NewFileSystemArchive creates a new archive rooted at the given path.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive root: %w", err)
	}
	return &FileSystemArchive{root: root}, nil
}

// Put writes the blob atomically (temp file + rename) so readers never see
// a partial export.
func (a *FileSystemArchive) Put(_ context.Context, name string, r io.Reader, size int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	destPath := filepath.Join(a.root, filepath.FromSlash(name))

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func (a *FileSystemArchive) Get(_ context.Context, name string, w io.Writer) error {
	if err := validateName(name); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(a.root, filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("archive blob %s: %w", name, seo.ErrNotFound)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

func (a *FileSystemArchive) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing archive: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// ValidateSetup verifies that the archive root exists and is writable.
func (a *FileSystemArchive) ValidateSetup(context.Context) error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}

	check, err := os.CreateTemp(a.root, ".tmp-writable-*")
	if err != nil {
		return fmt.Errorf("archive root not writable: %w", err)
	}
	check.Close()
	os.Remove(check.Name())
	return nil
}

var _ seo.Archive = (*FileSystemArchive)(nil)
