package feeders

import "errors"

var (
	// ErrUnsupportedFormat is returned by ForFile for unknown extensions.
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	// ErrEnvInvalidStructure indicates the env feeder was not given a struct pointer.
	ErrEnvInvalidStructure = errors.New("env: invalid structure")
	// ErrEnvEmptyPrefixAndSuffix indicates both affixes were empty.
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	// ErrEnvFieldNotSettable indicates a tagged field could not be assigned.
	ErrEnvFieldNotSettable = errors.New("env: field cannot be set")
)
