package config

import (
	"fmt"

	"github.com/GoCodeAlone/alouette/feeders"
)

// EnvPrefix prefixes every environment override, e.g. ALOUETTE_LLM_PROVIDER.
const EnvPrefix = "ALOUETTE_"

// LoadFile builds a Config from defaults, the file at path and then the
// ALOUETTE_* environment, in that order. The format follows the extension:
// .yaml, .yml, .toml or .json.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	fileFeeder, err := feeders.ForFile(path)
	if err != nil {
		return Config{}, err
	}
	for _, f := range []feeders.Feeder{fileFeeder, feeders.NewAffixedEnvFeeder(EnvPrefix, "")} {
		if err := f.Feed(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	cfg.Clamp()
	if err := ValidateRequired(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
