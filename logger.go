package alouette

import "github.com/GoCodeAlone/alouette/logging"

// Logger is the structured logger used by the registry. It is the same
// interface every subpackage logs through; see package logging for the zap
// adapter.
type Logger = logging.Logger
