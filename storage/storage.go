// Package storage provides the namespaced key-value stores used to persist
// application settings between runs.
//
// Keys are namespaced as "<prefix>:<key>" so several applications can share
// one backing document. Callers always work with the unprefixed key.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrefix is the namespace used when none is configured.
const DefaultPrefix = "alouette"

var (
	// ErrEmptyKey is returned when an operation is given an empty key.
	ErrEmptyKey = errors.New("storage key must not be empty")
	// ErrDecode is returned by GetObject when a stored value is not valid JSON
	// for the requested type.
	ErrDecode = errors.New("failed to decode stored value")
)

// Store is a string key-value store scoped to a single prefix.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Has(key string) (bool, error)
	// Keys returns the unprefixed keys of this namespace in sorted order.
	Keys() ([]string, error)
	// Clear removes every key of this namespace and leaves others untouched.
	Clear() error
}

// GetObject decodes the JSON value stored under key into v. It reports false
// without touching v when the key is absent.
func GetObject(s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("%w for key %q: %w", ErrDecode, key, err)
	}
	return true, nil
}

// SetObject stores v under key as JSON.
func SetObject(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %q: %w", key, err)
	}
	return s.Set(key, string(data))
}

type namespace string

func newNamespace(prefix string) namespace {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return namespace(prefix + ":")
}

func (n namespace) key(key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	return string(n) + key, nil
}

func (n namespace) owns(full string) (string, bool) {
	return strings.CutPrefix(full, string(n))
}
