package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// toTree converts cfg into the generic map form addressed by dotted paths.
func toTree(cfg Config) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree(tree map[string]any) (Config, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// lookup returns the value at path, which may be a whole section.
func lookup(tree map[string]any, path string) (any, bool) {
	var current any = tree
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// assign replaces the leaf at path. Only existing leaves can be assigned,
// so a typo never silently grows the tree.
func assign(tree map[string]any, path string, value any) error {
	keys := strings.Split(path, ".")
	current := tree
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPath, path)
		}
		current = next
	}

	last := keys[len(keys)-1]
	existing, ok := current[last]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	if _, isSection := existing.(map[string]any); isSection {
		return fmt.Errorf("%w: %s is a section", ErrUnknownPath, path)
	}
	current[last] = value
	return nil
}

// applyPaths sets every path of updates on a copy of cfg.
func applyPaths(cfg Config, updates map[string]any) (Config, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return Config{}, err
	}
	for path, value := range updates {
		if err := assign(tree, path, value); err != nil {
			return Config{}, err
		}
	}
	next, err := fromTree(tree)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	return next, nil
}
