package eventbus

import (
	"strings"
	"sync"
)

type logEntry struct {
	Level   string
	Message string
	Args    []any
}

// testLogger captures log entries for verification.
type testLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *testLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Message: msg, Args: args})
}

func (l *testLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *testLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *testLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *testLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }

func (l *testLogger) count(level, message string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level && strings.Contains(e.Message, message) {
			n++
		}
	}
	return n
}
