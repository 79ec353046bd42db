package storage

import (
	"slices"
	"sync"
)

// Memory is an in-process Store. The zero value is not usable; call NewMemory.
type Memory struct {
	ns   namespace
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty store for prefix. An empty prefix selects
// DefaultPrefix.
func NewMemory(prefix string) *Memory {
	return &Memory{ns: newNamespace(prefix), data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	full, err := m.ns.key(key)
	if err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[full]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	full, err := m.ns.key(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[full] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	full, err := m.ns.key(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, full)
	return nil
}

func (m *Memory) Has(key string) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collectKeys(m.ns, m.data), nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clearNamespace(m.ns, m.data)
	return nil
}

func collectKeys(ns namespace, data map[string]string) []string {
	keys := make([]string, 0, len(data))
	for full := range data {
		if k, ok := ns.owns(full); ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func clearNamespace(ns namespace, data map[string]string) {
	for full := range data {
		if _, ok := ns.owns(full); ok {
			delete(data, full)
		}
	}
}
