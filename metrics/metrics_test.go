package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveInitialization(time.Second, errors.New("x"))
		m.RollbackFailed()
		m.ShutdownFailed("tts")
		m.SetServiceHealth("tts", true)
		m.ResetServiceHealth()
		m.ObserveBackendCall("play_tts", time.Millisecond, nil)
		m.BackendRetried("play_tts")
	})
}

func TestRegistryMetrics(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m, err := New(reg, "")
	require.NoError(t, err)

	m.ObserveInitialization(10*time.Millisecond, nil)
	m.ObserveInitialization(10*time.Millisecond, errors.New("boom"))
	m.ShutdownFailed("cache")
	m.ShutdownFailed("cache")
	m.SetServiceHealth("tts", true)
	m.SetServiceHealth("cache", false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.initFailures), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.shutdownFailures.WithLabelValues("cache")), 0)

	expected := `
# HELP alouette_registry_service_healthy 1 when the service reported healthy on the last health snapshot
# TYPE alouette_registry_service_healthy gauge
alouette_registry_service_healthy{service="cache"} 0
alouette_registry_service_healthy{service="tts"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "alouette_registry_service_healthy"))

	m.ResetServiceHealth()
	assert.Zero(t, testutil.CollectAndCount(m.serviceHealthy))
}

func TestBackendMetrics(t *testing.T) {
	m, err := New(nil, "test")
	require.NoError(t, err)

	m.ObserveBackendCall("translate_text", time.Millisecond, nil)
	m.ObserveBackendCall("translate_text", time.Millisecond, errors.New("refused"))
	m.BackendRetried("translate_text")

	assert.InDelta(t, 1, testutil.ToFloat64(m.backendRequests.WithLabelValues("translate_text", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.backendRequests.WithLabelValues("translate_text", OutcomeError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.backendRetries.WithLabelValues("translate_text")), 0)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "")
	require.NoError(t, err)
	_, err = New(reg, "")
	assert.Error(t, err)
}
