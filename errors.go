package alouette

import (
	"errors"
)

// Registry errors
var (
	// Lifecycle errors
	ErrInitializationFailed = errors.New("service initialization failed")
	ErrShutdownFailed       = errors.New("service shutdown failed")
	ErrRollbackFailed       = errors.New("service rollback failed")

	// Lookup errors
	ErrServiceNotFound = errors.New("service not found")

	// Factory errors
	ErrNilService       = errors.New("service factory returned nil service")
	ErrDuplicateService = errors.New("duplicate service name")

	// Observer errors
	ErrObserverNil = errors.New("observer is nil")

	// Routing errors
	ErrUnexpectedPayload = errors.New("unexpected event payload")
)
