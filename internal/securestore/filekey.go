package securestore

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	keyFileName = "session.key"
	keyFileMode = 0o600
)

// FileKeyStore keeps the key hex-encoded in a 0600 file, for hosts without a usable keyring.
type FileKeyStore struct {
	fs        afero.Fs
	configDir string
}

// NewFileKeyStore stores the key under configDir on fs.
func NewFileKeyStore(fs afero.Fs, configDir string) *FileKeyStore {
	return &FileKeyStore{fs: fs, configDir: configDir}
}

func (f *FileKeyStore) keyPath() string {
	return filepath.Join(f.configDir, keyFileName)
}

// SetKey generates a new key and writes it atomically through a temp file and rename.
func (f *FileKeyStore) SetKey() ([]byte, error) {
	if err := f.fs.MkdirAll(f.configDir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	tmpFile, err := afero.TempFile(f.fs, f.configDir, ".session.key.tmp.*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.WriteString(fmt.Sprintf("%x", key)); err != nil {
		tmpFile.Close()
		f.fs.Remove(tmpPath)
		return nil, fmt.Errorf("write key: %w", err)
	}
	if err = tmpFile.Close(); err != nil {
		f.fs.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err = f.fs.Chmod(tmpPath, keyFileMode); err != nil {
		f.fs.Remove(tmpPath)
		return nil, fmt.Errorf("set permissions: %w", err)
	}
	if err = f.fs.Rename(tmpPath, f.keyPath()); err != nil {
		f.fs.Remove(tmpPath)
		return nil, fmt.Errorf("rename key file: %w", err)
	}

	return key, nil
}

func (f *FileKeyStore) GetKey() ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.keyPath())
	if err != nil {
		return nil, err
	}

	return decodeKey(string(data))
}

func (f *FileKeyStore) DeleteKey() error {
	return f.fs.Remove(f.keyPath())
}
