package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileCache keeps one JSON file per fingerprint under a directory.
type FileCache struct {
	dir string
}

var _ Cache = (*FileCache)(nil)

// NewFileCache creates the cache directory if needed. An empty dir defaults
// to .cache/finstory/results.
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		dir = filepath.Join(".cache", "finstory", "results")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) Get(_ context.Context, fingerprint string) (*Entry, error) {
	path, err := c.path(fingerprint)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached result: %w", err)
	}
	return &entry, nil
}

// Put writes through a temp file so readers never see a partial entry.
func (c *FileCache) Put(_ context.Context, entry *Entry) error {
	path, err := c.path(entry.Fingerprint)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to save to file cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save to file cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to save to file cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FileCache) path(fingerprint string) (string, error) {
	if fingerprint == "" || strings.ContainsAny(fingerprint, `/\.`) {
		return "", fmt.Errorf("invalid fingerprint %q", fingerprint)
	}
	return filepath.Join(c.dir, fingerprint+".json"), nil
}
