package nvs

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileFormatVersion = 1

// fileDocument is the on-disk form of a File store.
type fileDocument struct {
	Version    int                          `yaml:"version"`
	Namespaces map[string]map[string]string `yaml:"namespaces,omitempty"` // base64 blobs
}

// File is a BlobStore persisted as a YAML document of base64 blobs.
//
// Every Put and Erase rewrites the whole document through a temporary file
// and a rename, so a crash leaves either the old or the new document.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a File store at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get implements BlobStore.
func (f *File) Get(namespace, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return nil, err
	}

	encoded, ok := doc.Namespaces[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("nvs: corrupt blob %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

// Put implements BlobStore.
func (f *File) Put(namespace, key string, data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return 0, err
	}

	ns, ok := doc.Namespaces[namespace]
	if !ok || ns == nil {
		ns = make(map[string]string)
		doc.Namespaces[namespace] = ns
	}
	ns[key] = base64.StdEncoding.EncodeToString(data)

	if err := f.write(doc); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Erase implements BlobStore.
func (f *File) Erase(namespace, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}

	ns, ok := doc.Namespaces[namespace]
	if !ok {
		return nil
	}
	if _, ok := ns[key]; !ok {
		return nil
	}
	delete(ns, key)
	if len(ns) == 0 {
		delete(doc.Namespaces, namespace)
	}

	return f.write(doc)
}

func (f *File) read() (*fileDocument, error) {
	doc := &fileDocument{
		Version:    fileFormatVersion,
		Namespaces: make(map[string]map[string]string),
	}

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nvs: failed to read %s: %w", f.path, err)
	}

	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("nvs: failed to parse %s: %w", f.path, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("nvs: unsupported store version: %d (expected %d)", doc.Version, fileFormatVersion)
	}
	if doc.Namespaces == nil {
		doc.Namespaces = make(map[string]map[string]string)
	}
	// "namespaces: {ns: }" decodes to a nil inner map.
	for name, ns := range doc.Namespaces {
		if ns == nil {
			doc.Namespaces[name] = make(map[string]string)
		}
	}
	return doc, nil
}

func (f *File) write(doc *fileDocument) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("nvs: failed to create store directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("nvs: failed to marshal store: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("nvs: failed to write temporary store file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("nvs: failed to save store file: %w", err)
	}
	return nil
}
