// Package nvs provides the persistent key/blob store the configuration
// record lives in.
//
// Blobs are grouped by namespace and addressed by key, the same shape as
// the non-volatile storage partition on the relay controller. Two
// implementations are provided: Memory for tests and simulations, and File,
// which keeps every namespace in a single YAML document on disk.
package nvs

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no blob is stored under the key.
var ErrNotFound = errors.New("nvs: key not found")

// BlobStore is the persistence collaborator.
//
// Put returns the number of bytes actually stored; a value smaller than
// len(data) is a short write and callers must treat it as a failure.
// Erase of a missing key is not an error.
type BlobStore interface {
	Get(namespace, key string) ([]byte, error)
	Put(namespace, key string, data []byte) (int, error)
	Erase(namespace, key string) error
}

// Memory is an in-process BlobStore.
type Memory struct {
	mu    sync.Mutex
	blobs map[string]map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]map[string][]byte)}
}

// Get implements BlobStore. The returned slice is a copy.
func (m *Memory) Get(namespace, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put implements BlobStore.
func (m *Memory) Put(namespace, key string, data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.blobs[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.blobs[namespace] = ns
	}
	ns[key] = append([]byte(nil), data...)
	return len(data), nil
}

// Erase implements BlobStore.
func (m *Memory) Erase(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs[namespace], key)
	return nil
}

// Keys returns the keys stored in namespace, in no particular order.
func (m *Memory) Keys(namespace string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.blobs[namespace]))
	for k := range m.blobs[namespace] {
		keys = append(keys, k)
	}
	return keys
}
