package alouette

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/services/translation"
	"github.com/GoCodeAlone/alouette/storage"
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

// bareService implements no optional hooks.
type bareService struct {
	name string
}

func (s *bareService) Name() string { return s.name }

// fakeService implements every optional hook and records the calls.
type fakeService struct {
	name        string
	initErr     error
	shutdownErr error
	healthy     bool
	lastErr     error
	// initGate, when set, blocks Initialize until closed.
	initGate <-chan struct{}
	// calls is shared between services to record the global call order.
	calls *callLog

	mu            sync.Mutex
	initCalls     int
	shutdownCalls int
	configs       []config.Config
	translations  []translation.Result
	initialized   bool
}

func newFake(name string, calls *callLog) *fakeService {
	return &fakeService{name: name, healthy: true, calls: calls}
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Initialize(ctx context.Context) error {
	if s.initGate != nil {
		select {
		case <-s.initGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	s.calls.add("init:" + s.name)
	if s.initErr != nil {
		return s.initErr
	}
	s.initialized = true
	return nil
}

func (s *fakeService) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownCalls++
	s.calls.add("shutdown:" + s.name)
	s.initialized = false
	return s.shutdownErr
}

func (s *fakeService) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

func (s *fakeService) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *fakeService) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *fakeService) OnConfigChanged(_ context.Context, cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
	s.calls.add("config:" + s.name)
}

func (s *fakeService) OnTranslationCompleted(_ context.Context, r translation.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.translations = append(s.translations, r)
}

func (s *fakeService) counts() (initCalls, shutdownCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls, s.shutdownCalls
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *callLog) with(prefix string) []string {
	var out []string
	for _, call := range c.list() {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

// fixed returns a factory handing out svc.
func fixed(svc Service) ServiceFactory {
	return func(Dependencies) (Service, error) { return svc, nil }
}

// fakeFactories returns factories for the given fakes, in order.
func fakeFactories(svcs ...*fakeService) []ServiceFactory {
	out := make([]ServiceFactory, len(svcs))
	for i, svc := range svcs {
		out[i] = fixed(svc)
	}
	return out
}

func storageForTest(t *testing.T) storage.Store {
	t.Helper()
	return storage.NewMemory(storage.DefaultPrefix)
}
