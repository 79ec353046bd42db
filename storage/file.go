package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as a single JSON object on disk. Every mutation
// rewrites the document through a temporary file and an atomic rename, so a
// crash never leaves a truncated document behind.
type File struct {
	path string
	ns   namespace
	mu   sync.Mutex
	data map[string]string
}

// NewFile opens the document at path, creating its directory when needed.
// A missing file is treated as an empty store.
func NewFile(path, prefix string) (*File, error) {
	f := &File{path: path, ns: newNamespace(prefix), data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read storage file %s: %w", path, err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("failed to parse storage file %s: %w", path, err)
	}
	return f, nil
}

// Path returns the location of the backing document.
func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool, error) {
	full, err := f.ns.key(key)
	if err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[full]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	full, err := f.ns.key(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[full]
	f.data[full] = value
	if err := f.flush(); err != nil {
		if existed {
			f.data[full] = prev
		} else {
			delete(f.data, full)
		}
		return err
	}
	return nil
}

func (f *File) Delete(key string) error {
	full, err := f.ns.key(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.data[full]
	if !existed {
		return nil
	}
	delete(f.data, full)
	if err := f.flush(); err != nil {
		f.data[full] = prev
		return err
	}
	return nil
}

func (f *File) Has(key string) (bool, error) {
	_, ok, err := f.Get(key)
	return ok, err
}

func (f *File) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return collectKeys(f.ns, f.data), nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := make(map[string]string, len(f.data))
	for k, v := range f.data {
		snapshot[k] = v
	}
	clearNamespace(f.ns, f.data)
	if err := f.flush(); err != nil {
		f.data = snapshot
		return err
	}
	return nil
}

// flush must be called with f.mu held.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage file: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary storage file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close storage file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace storage file %s: %w", f.path, err)
	}
	return nil
}
