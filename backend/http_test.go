package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/alouette/config"
)

type echoArgs struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

func newInvoker(t *testing.T, handler http.Handler, opts ...HTTPOption) *HTTPInvoker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	inv, err := NewHTTPInvoker(srv.URL, append([]HTTPOption{WithBackoff(time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return inv
}

func TestHTTPInvokerRoundTrip(t *testing.T) {
	var gotPath, gotContentType string
	var gotArgs echoArgs
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotArgs))
		_, _ = w.Write([]byte(`{"translations":{"fr":"Bonjour"}}`))
	}))

	var result struct {
		Translations map[string]string `json:"translations"`
	}
	err := inv.Invoke(context.Background(), CommandTranslateText, echoArgs{Text: "Hello", Lang: "fr"}, &result)
	require.NoError(t, err)

	assert.Equal(t, "/invoke/translate_text", gotPath)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, echoArgs{Text: "Hello", Lang: "fr"}, gotArgs)
	assert.Equal(t, map[string]string{"fr": "Bonjour"}, result.Translations)
}

func TestHTTPInvokerNilArgsAndResult(t *testing.T) {
	var body string
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := make([]byte, 16)
		n, _ := r.Body.Read(raw)
		body = string(raw[:n])
		_, _ = w.Write([]byte(`1234`))
	}))

	require.NoError(t, inv.Invoke(context.Background(), CommandClearTTSCache, nil, nil))
	assert.Equal(t, "{}", body)
}

func TestHTTPInvokerRemoteErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Input text is empty"}`))
	}))

	err := inv.Invoke(context.Background(), CommandTranslateText, nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Equal(t, "Input text is empty", remote.Message)
	assert.Equal(t, CommandTranslateText, remote.Command)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPInvokerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`["llama3"]`))
	}), WithRetries(2))

	var models []string
	require.NoError(t, inv.Invoke(context.Background(), CommandConnectOllama, nil, &models))
	assert.Equal(t, []string{"llama3"}, models)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPInvokerGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}), WithPerformance(config.Performance{MaxConcurrentRequests: 2, RequestRetries: 1}))

	err := inv.Invoke(context.Background(), CommandGetTTSCacheInfo, nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "down", remote.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPInvokerTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	inv, err := NewHTTPInvoker(url, WithRetries(1), WithBackoff(time.Millisecond))
	require.NoError(t, err)

	err = inv.Invoke(context.Background(), CommandPlayTTS, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHTTPInvokerBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{}`))
	}), WithMaxConcurrent(2))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, inv.Invoke(context.Background(), CommandPlayTTS, nil, nil))
		}()
	}

	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestHTTPInvokerHonoursContext(t *testing.T) {
	inv := newInvoker(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}), WithRetries(5), WithBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := inv.Invoke(ctx, CommandPlayTTS, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewHTTPInvokerValidation(t *testing.T) {
	for _, bad := range []string{"", "localhost:8080", "ftp://host", "http://"} {
		_, err := NewHTTPInvoker(bad)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, bad)
	}

	inv, err := NewHTTPInvoker("http://127.0.0.1:1")
	require.NoError(t, err)
	assert.ErrorIs(t, inv.Invoke(context.Background(), "", nil, nil), ErrEmptyCommand)
}

func TestInvokerFunc(t *testing.T) {
	want := errors.New("nope")
	var inv Invoker = InvokerFunc(func(_ context.Context, cmd Command, _ any, _ any) error {
		assert.Equal(t, CommandGetEdgeTTSVoices, cmd)
		return want
	})
	assert.ErrorIs(t, inv.Invoke(context.Background(), CommandGetEdgeTTSVoices, nil, nil), want)
	assert.Len(t, Commands(), 8)
}
