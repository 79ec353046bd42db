// Package feeders populates configuration structs from files and the
// process environment.
//
// Each feeder implements Feeder. Feeders are applied in order, so later feeders override earlier ones:
//
//	for _, f := range []feeders.Feeder{
//		feeders.NewYamlFeeder("alouette.yaml"),
//		feeders.NewAffixedEnvFeeder("ALOUETTE_", ""),
//	} {
//		if err := f.Feed(&cfg); err != nil {
//			return err
//		}
//	}
package feeders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Feeder populates target, which must be a pointer.
type Feeder interface {
	Feed(target any) error
}

// ForFile picks the file feeder matching the extension of path.
func ForFile(path string) (Feeder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func readFile(path, kind string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file %s: %w", kind, path, err)
	}
	return data, nil
}
