// Package cache reports on and clears the backend's speech audio cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/services"
)

// Name is the registry name of the service.
const Name = "cache"

const (
	mb = 1024 * 1024

	largeThreshold   = 100 * mb
	warningThreshold = 500 * mb
	manyFiles        = 1000
)

var (
	ErrInfoFailed      = errors.New("failed to get cache information")
	ErrClearFailed     = errors.New("failed to clear cache")
	ErrInvalidSchedule = errors.New("invalid cache refresh schedule")
)

// Info is what the backend reports about its cache directory.
type Info struct {
	FileCount   int     `json:"file_count"`
	TotalSize   int64   `json:"total_size"`
	TotalSizeMB float64 `json:"total_size_mb"`
}

// ClearResult describes a finished Clear.
type ClearResult struct {
	ClearedSize int64   `json:"clearedSize"`
	ClearedMB   float64 `json:"clearedMB"`
	Message     string  `json:"message"`
}

// Stats is Info prepared for display.
type Stats struct {
	FileCount      int    `json:"fileCount"`
	TotalSize      string `json:"totalSize"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	Large          bool   `json:"isLarge"`
	Empty          bool   `json:"isEmpty"`
}

// Level grades a cache health check.
type Level string

const (
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelGood    Level = "good"
)

// Health is the outcome of a cache health check.
type Health struct {
	NeedsAttention bool   `json:"needsAttention"`
	Level          Level  `json:"level,omitempty"`
	Message        string `json:"message"`
}

// Recommendation is an action offered to the user.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// State is a snapshot of the service.
type State struct {
	Info       *Info  `json:"cacheInfo"`
	Refreshing bool   `json:"isRefreshingCache"`
	Clearing   bool   `json:"isClearingCache"`
	HasCache   bool   `json:"hasCache"`
	Stats      *Stats `json:"stats"`
}

// Service implements cache management. Create it with New.
type Service struct {
	invoker backend.Invoker
	logger  logging.Logger

	mu          sync.Mutex
	info        *Info
	refreshing  int
	clearing    int
	lastErr     error
	initialized bool

	schedule  string
	scheduler *cron.Cron
	entry     cron.EntryID
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// New builds the service from deps.
func New(deps services.Dependencies) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	deps = deps.WithDefaults()
	return &Service{
		invoker:  deps.Invoker,
		logger:   deps.Logger,
		schedule: deps.Config.Performance.CacheRefreshSchedule,
	}, nil
}

func (s *Service) Name() string { return Name }

// Initialize starts the periodic refresh. Cache information is not fetched
// until the first scheduled run or an explicit Refresh.
func (s *Service) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	s.jobCtx, s.jobCancel = context.WithCancel(context.Background())
	s.scheduler = cron.New(cron.WithLogger(cronLogger{s.logger}))
	if err := s.scheduleLocked(s.schedule); err != nil {
		s.jobCancel()
		s.scheduler = nil
		return err
	}
	s.scheduler.Start()
	s.initialized = true
	return nil
}

func (s *Service) scheduleLocked(spec string) error {
	if spec == "" {
		s.entry = 0
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	id, err := s.scheduler.AddFunc(spec, s.refreshJob)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	s.entry = id
	return nil
}

func (s *Service) refreshJob() {
	s.mu.Lock()
	ctx := s.jobCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Scheduled cache refresh failed", "error", err)
	}
}

// Shutdown stops the scheduler and waits for a running refresh to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = false
	scheduler := s.scheduler
	s.scheduler = nil
	s.jobCancel()
	s.mu.Unlock()

	select {
	case <-scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsHealthy is false while the last refresh failed.
func (s *Service) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr == nil
}

func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnConfigChanged moves the refresh job to a new schedule. An invalid
// schedule is logged and the old one stays in effect.
func (s *Service) OnConfigChanged(_ context.Context, cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec := cfg.Performance.CacheRefreshSchedule
	if spec == s.schedule {
		return
	}
	if s.scheduler == nil {
		s.schedule = spec
		return
	}

	old := s.entry
	if err := s.scheduleLocked(spec); err != nil {
		s.logger.Error("Keeping previous cache refresh schedule", "schedule", spec, "error", err)
		return
	}
	if old != 0 {
		s.scheduler.Remove(old)
	}
	s.schedule = spec
	s.logger.Info("Cache refresh rescheduled", "schedule", spec)
}

// Schedule returns the refresh schedule in effect.
func (s *Service) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Refresh fetches cache information from the backend.
func (s *Service) Refresh(ctx context.Context) (Info, error) {
	s.mu.Lock()
	s.refreshing++
	s.mu.Unlock()

	s.logger.Debug("Fetching TTS cache information")
	var info Info
	err := s.invoker.Invoke(ctx, backend.CommandGetTTSCacheInfo, nil, &info)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing--
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %w", ErrInfoFailed, err)
		s.logger.Error("Failed to get cache information", "error", err)
		return Info{}, s.lastErr
	}
	s.info = &info
	s.lastErr = nil
	return info, nil
}

// Info is Refresh under the name callers asking for information expect.
func (s *Service) Info(ctx context.Context) (Info, error) {
	return s.Refresh(ctx)
}

// Current returns the last fetched information without contacting the
// backend.
func (s *Service) Current() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.info == nil {
		return Info{}, false
	}
	return *s.info, true
}

// Clear deletes the cached audio and refreshes the information afterwards.
func (s *Service) Clear(ctx context.Context) (ClearResult, error) {
	s.mu.Lock()
	s.clearing++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.clearing--
		s.mu.Unlock()
	}()

	s.logger.Info("Clearing TTS cache")
	var cleared int64
	if err := s.invoker.Invoke(ctx, backend.CommandClearTTSCache, nil, &cleared); err != nil {
		s.logger.Error("Failed to clear cache", "error", err)
		return ClearResult{}, fmt.Errorf("%w: %w", ErrClearFailed, err)
	}

	clearedMB := math.Round(float64(cleared)/mb*100) / 100
	s.logger.Info("Cache cleared", "freedMB", clearedMB)

	if _, err := s.Refresh(ctx); err != nil {
		return ClearResult{}, fmt.Errorf("%w: %w", ErrClearFailed, err)
	}

	return ClearResult{
		ClearedSize: cleared,
		ClearedMB:   clearedMB,
		Message:     fmt.Sprintf("Cache cleared successfully! Freed %.2f MB of disk space.", clearedMB),
	}, nil
}

// Stats returns the last fetched information prepared for display.
func (s *Service) Stats() (Stats, bool) {
	info, ok := s.Current()
	if !ok {
		return Stats{}, false
	}
	return statsOf(info), true
}

func statsOf(info Info) Stats {
	return Stats{
		FileCount:      info.FileCount,
		TotalSize:      FormatSize(info.TotalSize),
		TotalSizeBytes: info.TotalSize,
		Large:          info.TotalSize > largeThreshold,
		Empty:          info.FileCount == 0,
	}
}

// Health grades the last fetched information.
func (s *Service) Health() Health {
	stats, ok := s.Stats()
	if !ok {
		return Health{Message: "Cache information not available"}
	}

	switch {
	case stats.TotalSizeBytes > warningThreshold:
		return Health{
			NeedsAttention: true,
			Level:          LevelWarning,
			Message:        fmt.Sprintf("Cache is very large (%s). Consider clearing it to free disk space.", stats.TotalSize),
		}
	case stats.FileCount > manyFiles:
		return Health{
			NeedsAttention: true,
			Level:          LevelInfo,
			Message:        fmt.Sprintf("Cache contains many files (%d). Consider clearing old files.", stats.FileCount),
		}
	case stats.Large:
		return Health{
			NeedsAttention: true,
			Level:          LevelInfo,
			Message:        fmt.Sprintf("Cache size: %s. You can clear it to free disk space if needed.", stats.TotalSize),
		}
	default:
		return Health{
			Level:   LevelGood,
			Message: fmt.Sprintf("Cache is healthy: %s in %d files.", stats.TotalSize, stats.FileCount),
		}
	}
}

// Recommendations lists actions worth offering. Refreshing is always
// offered last.
func (s *Service) Recommendations() []Recommendation {
	var out []Recommendation
	if h := s.Health(); h.NeedsAttention {
		switch h.Level {
		case LevelWarning:
			out = append(out, Recommendation{
				Type:     "clear",
				Priority: "high",
				Message:  "Clear cache to free significant disk space",
				Action:   "Clear Cache",
			})
		case LevelInfo:
			out = append(out, Recommendation{
				Type:     "consider_clear",
				Priority: "medium",
				Message:  "Consider clearing cache to free space and improve performance",
				Action:   "Clear Cache",
			})
		}
	}
	return append(out, Recommendation{
		Type:     "refresh",
		Priority: "low",
		Message:  "Refresh cache information to see current status",
		Action:   "Refresh Info",
	})
}

// State returns a snapshot of the service.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Refreshing: s.refreshing > 0,
		Clearing:   s.clearing > 0,
		HasCache:   s.info != nil,
	}
	if s.info != nil {
		info := *s.info
		stats := statsOf(info)
		st.Info = &info
		st.Stats = &stats
	}
	return st
}

var units = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count with binary units. Bytes are shown
// without decimals, larger units with two.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	size := float64(bytes)
	unit := 0
	for size >= 1024 && unit < len(units)-1 {
		size /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", size, units[unit])
}

// cronLogger routes the scheduler's own logging through logging.Logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
