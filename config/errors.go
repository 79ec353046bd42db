package config

import "errors"

var (
	ErrConfigNil                  = errors.New("config cannot be nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required config field missing")
	ErrUnknownPath                = errors.New("unknown config path")
	ErrInvalidValue               = errors.New("invalid config value")
)
