package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Backend persists the raw JSON body of the last accepted write.
type Backend interface {
	// Save overwrites the stored record.
	Save(raw []byte) error
	// Load returns the stored record, or ok=false when nothing was saved yet.
	Load() (raw []byte, ok bool, err error)
}

// FileBackend keeps the record in a single file. Writes go to a temporary
// file in the same directory and are renamed over the target, so readers
// never observe a partial record.
type FileBackend struct {
	path string
	mu   sync.RWMutex
}

// NewFileBackend stores the record at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file the record is stored in.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Save(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Load() ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", b.path, err)
	}
	return raw, true, nil
}

// MemoryBackend keeps the record in memory.
type MemoryBackend struct {
	mu  sync.RWMutex
	raw []byte
	ok  bool
}

// NewMemoryBackend keeps the record in memory; used by tests and local runs.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Save(raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = append([]byte(nil), raw...)
	b.ok = true
	return nil
}

func (b *MemoryBackend) Load() ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ok {
		return nil, false, nil
	}
	return append([]byte(nil), b.raw...), true, nil
}
