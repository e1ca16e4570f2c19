package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wfs-go/internal/wfs"
)

// valueSuffix keeps a key's file from colliding with a directory of the same
// name, e.g. "drafts/_index" and "drafts/_index/<section>".
const valueSuffix = ".v"

// FileSystemKV stores one file per key under a root directory:
//
//	<root>/
//	  drafts/<doc>/<section>.v
//	  syncq/jobs.v
//
// Writes go to a temp file in the same directory and are renamed into place.
type FileSystemKV struct {
	root string
}

var _ wfs.KV = (*FileSystemKV)(nil)

// NewFileSystemKV creates the root directory if needed.
func NewFileSystemKV(root string) (*FileSystemKV, error) {
	if root == "" {
		return nil, errors.New("filesystem storage requires a root directory")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileSystemKV{root: root}, nil
}

func (f *FileSystemKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read value: %w", err)
	}
	return data, true, nil
}

func (f *FileSystemKV) Set(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, value)
}

func (f *FileSystemKV) Remove(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove value: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the root is an accessible directory.
func (f *FileSystemKV) ValidateSetup() error {
	info, err := os.Stat(f.root)
	if err != nil {
		return fmt.Errorf("storage root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root is not a directory: %s", f.root)
	}
	return nil
}

func (f *FileSystemKV) Close() error { return nil }

// path maps key to its file, rejecting keys that would escape the root.
func (f *FileSystemKV) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(f.root, filepath.FromSlash(key)) + valueSuffix, nil
}

func writeFileAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
