// Package storekv provides default implementations of
// pkg/capability.KvStore: an in-memory store for tests and a file-backed
// store for a single-process host application. An optional Postgres-backed
// implementation lives in internal/storekv/pgstore for host applications
// that want durable, networked storage.
package storekv

import (
	"context"
	"encoding/json"
	"os"
	"sync"
)

// Memory is an in-process KvStore backed by a map, guarded by a mutex per
// spec.md §5's single-owner/many-reader model for shared resources.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-memory KvStore.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

// Get implements capability.KvStore.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put implements capability.KvStore.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.items[key] = v
	return nil
}

// File is a KvStore backed by a single JSON file on disk, suitable for a
// simple host application without a database dependency. Every Put
// overwrites the entire file (spec.md §5: "writes are overwrites of the
// whole blob; no partial updates").
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed KvStore rooted at path. The file is created
// lazily on first Put.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) load() (map[string][]byte, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, err
	}
	var items map[string][]byte
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get implements capability.KvStore.
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

// Put implements capability.KvStore.
func (f *File) Put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.load()
	if err != nil {
		return err
	}
	items[key] = value
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}
