package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore keeps uploaded files on the local filesystem under a
// single root directory. Files are served back by the HTTP layer as
// static content.
type FileSystemStore struct {
	basePath string
	baseURL  string
}

// NewFileSystemStore creates a filesystem storage backend. baseURL is
// the public prefix under which stored files are reachable.
func NewFileSystemStore(basePath, baseURL string) *FileSystemStore {
	return &FileSystemStore{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Put writes data to a file named filename under the storage root.
// A partially written file is removed on error.
func (fs *FileSystemStore) Put(ctx context.Context, filename string, data io.Reader, size int64, contentType string) error {
	path := fs.filePath(filename)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Delete removes the stored file. A file that is already gone only
// warrants a warning: the record removal that follows is what makes the
// upload disappear for users.
func (fs *FileSystemStore) Delete(ctx context.Context, filename string) error {
	path := fs.filePath(filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("stored file already missing", "filename", filename)
			return nil
		}
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// URL returns the public URL for a stored file.
func (fs *FileSystemStore) URL(filename string) string {
	return fs.baseURL + "/f/" + filename
}

// Healthy verifies the storage root exists and is a directory.
func (fs *FileSystemStore) Healthy(ctx context.Context) error {
	info, err := os.Stat(fs.basePath)
	if err != nil {
		return fmt.Errorf("storage root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", fs.basePath)
	}
	return nil
}

// BasePath returns the storage root, used to mount the static file route.
func (fs *FileSystemStore) BasePath() string {
	return fs.basePath
}

func (fs *FileSystemStore) filePath(filename string) string {
	// filename is generated server-side, but keep Base as a guard
	// against anything path-like reaching the filesystem.
	return filepath.Join(fs.basePath, filepath.Base(filename))
}
