package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements ByteStore on the local filesystem.
// Structure: {dir}/{key}, where key segments become directories.
//
// Writes are published with a hard link from a temp file, so the first
// writer for a path wins and later writers observe the existing file.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, ErrInvalidStoreDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &FileStore{
		dir: dir,
	}, nil
}

// Dir returns the store root.
func (s *FileStore) Dir() string {
	return s.dir
}

// buildFilePath maps a key to a path below the store root.
// Components that could escape the root are dropped.
func (s *FileStore) buildFilePath(key string) (string, error) {
	parts := strings.Split(key, "/")
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, s.dir)
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) == 1 {
		return "", ErrEmptyKey
	}
	return filepath.Join(clean...), nil
}

func (s *FileStore) Get(key string) ([]byte, bool) {
	filePath, err := s.buildFilePath(key)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, false
	}

	return data, true
}

func (s *FileStore) Has(key string) bool {
	filePath, err := s.buildFilePath(key)
	if err != nil {
		return false
	}

	info, err := os.Stat(filePath)
	return err == nil && info.Mode().IsRegular()
}

func (s *FileStore) SetIfAbsent(key string, value []byte) (bool, error) {
	filePath, err := s.buildFilePath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(filePath); err == nil {
		return false, nil
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return false, err
	}
	// CreateTemp uses 0600; published entries are world-readable.
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}

	// Link fails with ErrExist when another writer got there first.
	if err := os.Link(tmpPath, filePath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *FileStore) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}

	return os.MkdirAll(s.dir, 0755)
}
