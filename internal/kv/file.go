package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const fileMode = 0o600

// FileStore keeps one namespace as a JSON object in a single file. It is the
// plain fallback when the encrypted store cannot be used.
type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFileStore returns a store persisted at path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return "", false, err
	}

	value, ok := entries[key]
	return value, ok, nil
}

func (f *FileStore) Put(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[key] = value

	return f.write(entries)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)

	return f.write(entries)
}

func (f *FileStore) All(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.read()
}

func (f *FileStore) ReplaceAll(_ context.Context, entries map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write(copyEntries(entries))
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write(map[string]string{})
}

func (f *FileStore) read() (map[string]string, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err = json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, f.path, err)
	}

	return entries, nil
}

// write replaces the file atomically through a temp file and rename.
func (f *FileStore) write(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err = f.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := afero.TempFile(f.fs, dir, "."+filepath.Base(f.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.Write(data); err != nil {
		tmpFile.Close()
		f.fs.Remove(tmpPath)
		return fmt.Errorf("write entries: %w", err)
	}
	if err = tmpFile.Close(); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = f.fs.Chmod(tmpPath, fileMode); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err = f.fs.Rename(tmpPath, f.path); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("rename entries file: %w", err)
	}

	return nil
}
