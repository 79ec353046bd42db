package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/golobby/cast"

	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/storage"
)

// StorageKey is the key the settings document is persisted under.
const StorageKey = "app-config"

// legacyKeys maps flat keys written by earlier releases to their paths.
var legacyKeys = []struct{ key, path string }{
	{"llmProvider", "llm.provider"},
	{"serverUrl", "llm.serverUrl"},
	{"ollamaUrl", "llm.serverUrl"},
	{"selectedModel", "llm.selectedModel"},
	{"apiKey", "llm.apiKey"},
	{"ttsRate", "tts.rate"},
	{"ttsVolume", "tts.volume"},
	{"ttsPause", "tts.pauseBetweenLanguages"},
	{"ttsAutoSelect", "tts.autoSelectVoice"},
}

// Manager owns the live Config. It persists every mutation to its store and
// emits eventbus.TopicConfigChanged with the new Config as payload.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	loaded   bool
	store    storage.Store
	legacy   storage.Store
	bus      *eventbus.Bus
	platform Platform
	logger   logging.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithBus sets the bus that receives config:changed events.
func WithBus(bus *eventbus.Bus) ManagerOption {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the manager's logger.
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// WithPlatform sets the host platform used for platform defaults.
func WithPlatform(p Platform) ManagerOption {
	return func(m *Manager) { m.platform = p }
}

// WithLegacyStore sets where flat legacy keys are read from. It defaults to
// the primary store.
func WithLegacyStore(s storage.Store) ManagerOption {
	return func(m *Manager) { m.legacy = s }
}

// NewManager returns a Manager holding defaults. Call Load before use.
func NewManager(store storage.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    Default(),
		store:  store,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.legacy == nil {
		m.legacy = store
	}
	return m
}

// Load merges the persisted document over the defaults, applies platform
// defaults, migrates legacy keys, clamps the result and saves it. A
// persisted document that cannot be decoded is logged and ignored. Load
// does not emit config:changed.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		m.logger.Warn("Configuration manager already loaded")
		return nil
	}

	cfg := Default()
	if _, err := storage.GetObject(m.store, StorageKey, &cfg); err != nil {
		m.logger.Warn("Failed to load configuration, using defaults", "error", err)
		cfg = Default()
	}

	applyPlatformDefaults(&cfg, m.platform)

	cfg, err := m.migrateLegacy(cfg)
	if err != nil {
		return err
	}
	cfg.Clamp()

	if err := m.save(cfg); err != nil {
		return err
	}
	m.cfg = cfg
	m.loaded = true
	m.logger.Info("Configuration loaded", "provider", cfg.LLM.Provider, "platform", m.platform.Name)
	return nil
}

func (m *Manager) migrateLegacy(cfg Config) (Config, error) {
	var migrated []string
	for _, lk := range legacyKeys {
		raw, ok, err := m.legacy.Get(lk.key)
		if err != nil {
			return cfg, err
		}
		if !ok {
			continue
		}

		next, err := migrateLegacyValue(cfg, lk.path, raw)
		if err != nil {
			m.logger.Warn("Keeping unparseable legacy setting", "key", lk.key, "error", err)
			continue
		}
		cfg = next
		if err := m.legacy.Delete(lk.key); err != nil {
			return cfg, err
		}
		migrated = append(migrated, lk.key)
	}
	if len(migrated) > 0 {
		m.logger.Info("Migrated legacy configuration", "keys", migrated)
	}
	return cfg, nil
}

// migrateLegacyValue sets path on a copy of cfg from a flat setting, which
// was stored as a string, converted to the type of the leaf at path.
func migrateLegacyValue(cfg Config, path, raw string) (Config, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return Config{}, err
	}
	existing, ok := lookup(tree, path)
	if !ok || existing == nil {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownPath, path)
	}
	value, err := cast.FromType(raw, reflect.TypeOf(existing))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, path, err)
	}
	return applyPaths(cfg, map[string]any{path: value})
}

func (m *Manager) save(cfg Config) error {
	return storage.SetObject(m.store, StorageKey, cfg)
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Get returns the value at a dotted path such as "tts.rate". Section paths
// such as "llm" return a map.
func (m *Manager) Get(path string) (any, bool) {
	tree, err := toTree(m.Snapshot())
	if err != nil {
		return nil, false
	}
	return lookup(tree, path)
}

// Set assigns value at path, then clamps, saves and emits config:changed.
func (m *Manager) Set(ctx context.Context, path string, value any) error {
	return m.UpdateMultiple(ctx, map[string]any{path: value})
}

// UpdateMultiple assigns every path in updates as one change.
func (m *Manager) UpdateMultiple(ctx context.Context, updates map[string]any) error {
	return m.mutate(ctx, func(cfg Config) (Config, error) {
		return applyPaths(cfg, updates)
	})
}

// Reset restores defaults plus platform defaults.
func (m *Manager) Reset(ctx context.Context) error {
	return m.mutate(ctx, func(Config) (Config, error) {
		cfg := Default()
		applyPlatformDefaults(&cfg, m.platform)
		return cfg, nil
	})
}

// Apply replaces the whole Config, e.g. after a config file was reloaded.
func (m *Manager) Apply(ctx context.Context, cfg Config) error {
	return m.mutate(ctx, func(Config) (Config, error) {
		return cfg, nil
	})
}

func (m *Manager) mutate(ctx context.Context, fn func(Config) (Config, error)) error {
	m.mu.Lock()
	next, err := fn(m.cfg)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	next.Clamp()
	if err := ValidateRequired(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.save(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	m.mu.Unlock()

	// Emit outside the lock so handlers may read the manager.
	if m.bus != nil {
		m.bus.Emit(ctx, eventbus.TopicConfigChanged, next)
	}
	return nil
}
