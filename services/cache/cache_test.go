package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/services"
	"github.com/GoCodeAlone/alouette/services/servicestest"
)

func newService(t *testing.T, inv *servicestest.Invoker) *Service {
	t.Helper()
	svc, err := New(services.Dependencies{Invoker: inv})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc
}

func withInfo(t *testing.T, info Info) *Service {
	t.Helper()
	svc := newService(t, servicestest.NewInvoker().Returns(backend.CommandGetTTSCacheInfo, info))
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	return svc
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		-5:            "0 B",
		512:           "512 B",
		1023:          "1023 B",
		1024:          "1.00 KB",
		1536:          "1.50 KB",
		5 * mb:        "5.00 MB",
		3 * 1024 * mb: "3.00 GB",
		1 << 42:       "4096.00 GB",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatSize(in), "FormatSize(%d)", in)
	}
}

func TestInitializeDoesNotFetch(t *testing.T) {
	inv := servicestest.NewInvoker()
	svc := newService(t, inv)

	assert.Empty(t, inv.Calls())
	_, ok := svc.Current()
	assert.False(t, ok)
	assert.True(t, svc.IsHealthy())
	assert.Equal(t, "@every 5m", svc.Schedule())
}

func TestRefresh(t *testing.T) {
	inv := servicestest.NewInvoker().Returns(backend.CommandGetTTSCacheInfo,
		map[string]any{"file_count": 12, "total_size": 2 * mb, "total_size_mb": 2.0})
	svc := newService(t, inv)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{FileCount: 12, TotalSize: 2 * mb, TotalSizeMB: 2}, info)

	current, ok := svc.Current()
	require.True(t, ok)
	assert.Equal(t, info, current)

	calls := inv.CallsTo(backend.CommandGetTTSCacheInfo)
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Args)
}

func TestRefreshFailureMarksUnhealthy(t *testing.T) {
	boom := errors.New("disk gone")
	inv := servicestest.NewInvoker().Fails(backend.CommandGetTTSCacheInfo, boom)
	svc := newService(t, inv)

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInfoFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, svc.IsHealthy())
	assert.ErrorIs(t, svc.LastError(), boom)

	inv.Returns(backend.CommandGetTTSCacheInfo, Info{})
	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, svc.IsHealthy())
	assert.NoError(t, svc.LastError())
}

func TestClear(t *testing.T) {
	inv := servicestest.NewInvoker().
		Returns(backend.CommandClearTTSCache, 3*mb+mb/2).
		Returns(backend.CommandGetTTSCacheInfo, Info{})
	svc := newService(t, inv)

	result, err := svc.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ClearResult{
		ClearedSize: 3*mb + mb/2,
		ClearedMB:   3.5,
		Message:     "Cache cleared successfully! Freed 3.50 MB of disk space.",
	}, result)

	calls := inv.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, backend.CommandClearTTSCache, calls[0].Command)
	assert.Equal(t, backend.CommandGetTTSCacheInfo, calls[1].Command)

	stats, ok := svc.Stats()
	require.True(t, ok)
	assert.True(t, stats.Empty)
	assert.False(t, svc.State().Clearing)
}

func TestClearFailure(t *testing.T) {
	inv := servicestest.NewInvoker().Fails(backend.CommandClearTTSCache, errors.New("locked"))
	svc := newService(t, inv)

	_, err := svc.Clear(context.Background())
	assert.ErrorIs(t, err, ErrClearFailed)
	assert.Empty(t, inv.CallsTo(backend.CommandGetTTSCacheInfo))
	assert.False(t, svc.State().Clearing)
}

func TestStats(t *testing.T) {
	svc := withInfo(t, Info{FileCount: 3, TotalSize: 101 * mb})
	stats, ok := svc.Stats()
	require.True(t, ok)
	assert.Equal(t, Stats{
		FileCount:      3,
		TotalSize:      "101.00 MB",
		TotalSizeBytes: 101 * mb,
		Large:          true,
	}, stats)

	empty := withInfo(t, Info{})
	stats, _ = empty.Stats()
	assert.True(t, stats.Empty)
	assert.False(t, stats.Large)
	assert.Equal(t, "0 B", stats.TotalSize)
}

func TestHealth(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		svc := newService(t, servicestest.NewInvoker())
		assert.Equal(t, Health{Message: "Cache information not available"}, svc.Health())
	})

	tests := []struct {
		name string
		info Info
		want Health
	}{
		{
			name: "very large",
			info: Info{FileCount: 5000, TotalSize: 501 * mb},
			want: Health{NeedsAttention: true, Level: LevelWarning, Message: "Cache is very large (501.00 MB). Consider clearing it to free disk space."},
		},
		{
			name: "many files",
			info: Info{FileCount: 1001, TotalSize: 200 * mb},
			want: Health{NeedsAttention: true, Level: LevelInfo, Message: "Cache contains many files (1001). Consider clearing old files."},
		},
		{
			name: "large",
			info: Info{FileCount: 10, TotalSize: 150 * mb},
			want: Health{NeedsAttention: true, Level: LevelInfo, Message: "Cache size: 150.00 MB. You can clear it to free disk space if needed."},
		},
		{
			name: "exactly at thresholds",
			info: Info{FileCount: 1000, TotalSize: 100 * mb},
			want: Health{Level: LevelGood, Message: "Cache is healthy: 100.00 MB in 1000 files."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withInfo(t, tt.info).Health())
		})
	}
}

func TestRecommendations(t *testing.T) {
	refresh := Recommendation{Type: "refresh", Priority: "low", Message: "Refresh cache information to see current status", Action: "Refresh Info"}

	got := withInfo(t, Info{FileCount: 1, TotalSize: 600 * mb}).Recommendations()
	require.Len(t, got, 2)
	assert.Equal(t, "clear", got[0].Type)
	assert.Equal(t, "high", got[0].Priority)
	assert.Equal(t, refresh, got[1])

	got = withInfo(t, Info{FileCount: 2000, TotalSize: mb}).Recommendations()
	require.Len(t, got, 2)
	assert.Equal(t, "consider_clear", got[0].Type)
	assert.Equal(t, "medium", got[0].Priority)

	got = withInfo(t, Info{FileCount: 2, TotalSize: mb}).Recommendations()
	assert.Equal(t, []Recommendation{refresh}, got)

	got = newService(t, servicestest.NewInvoker()).Recommendations()
	assert.Equal(t, []Recommendation{refresh}, got)
}

func TestState(t *testing.T) {
	svc := newService(t, servicestest.NewInvoker())
	assert.Equal(t, State{}, svc.State())

	svc = withInfo(t, Info{FileCount: 1, TotalSize: 10})
	st := svc.State()
	assert.True(t, st.HasCache)
	require.NotNil(t, st.Info)
	require.NotNil(t, st.Stats)
	assert.Equal(t, "10 B", st.Stats.TotalSize)
}

func TestInitializeRejectsInvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Performance.CacheRefreshSchedule = "every now and then"
	svc, err := New(services.Dependencies{Invoker: servicestest.NewInvoker(), Config: cfg})
	require.NoError(t, err)

	err = svc.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.False(t, svc.IsInitialized())
}

func TestScheduledRefresh(t *testing.T) {
	var fetched atomic.Int32
	inv := servicestest.NewInvoker().On(backend.CommandGetTTSCacheInfo, func(context.Context, map[string]any) (any, error) {
		fetched.Add(1)
		return Info{FileCount: 1}, nil
	})

	cfg := config.Default()
	cfg.Performance.CacheRefreshSchedule = "@every 1s"
	svc, err := New(services.Dependencies{Invoker: inv, Config: cfg})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(context.Background()))

	assert.Eventually(t, func() bool { return fetched.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	_, ok := svc.Current()
	assert.True(t, ok)

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.False(t, svc.IsInitialized())

	after := fetched.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, fetched.Load(), "no refresh after shutdown")
}

func TestOnConfigChangedReschedules(t *testing.T) {
	svc := newService(t, servicestest.NewInvoker())

	cfg := config.Default()
	cfg.Performance.CacheRefreshSchedule = "0 * * * *"
	svc.OnConfigChanged(context.Background(), cfg)
	assert.Equal(t, "0 * * * *", svc.Schedule())
	assert.Len(t, svc.scheduler.Entries(), 1)

	cfg.Performance.CacheRefreshSchedule = "not a schedule"
	svc.OnConfigChanged(context.Background(), cfg)
	assert.Equal(t, "0 * * * *", svc.Schedule(), "invalid schedule is ignored")
	assert.Len(t, svc.scheduler.Entries(), 1)

	cfg.Performance.CacheRefreshSchedule = ""
	svc.OnConfigChanged(context.Background(), cfg)
	assert.Equal(t, "", svc.Schedule())
	assert.Empty(t, svc.scheduler.Entries())
}

func TestShutdownIsIdempotent(t *testing.T) {
	svc := newService(t, servicestest.NewInvoker())
	assert.Equal(t, Name, svc.Name())
	require.NoError(t, svc.Shutdown(context.Background()))
	require.NoError(t, svc.Shutdown(context.Background()))
}
