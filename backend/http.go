package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/metrics"
)

const (
	defaultMaxConcurrent = 3
	defaultRetries       = 2
	defaultBackoff       = 200 * time.Millisecond
	maxErrorBody         = 64 << 10
)

// HTTPInvoker sends each command as a JSON POST to <base>/invoke/<command>.
// A 2xx reply carries the JSON result. Any other status is a RemoteError
// whose message is taken from an {"error": "..."} body or the raw body.
//
// Transport failures, 429 and 5xx replies are retried with exponential
// backoff. At most maxConcurrent commands are in flight at once.
type HTTPInvoker struct {
	base          *url.URL
	client        *http.Client
	sem           *semaphore.Weighted
	maxConcurrent int64
	limiter       *rate.Limiter
	retries       int
	backoff       time.Duration
	logger        logging.Logger
	metrics       *metrics.Metrics
}

// HTTPOption configures an HTTPInvoker.
type HTTPOption func(*HTTPInvoker)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPInvoker) { h.client = c }
}

// WithMaxConcurrent bounds in-flight commands. Values below 1 are ignored.
func WithMaxConcurrent(n int) HTTPOption {
	return func(h *HTTPInvoker) {
		if n > 0 {
			h.maxConcurrent = int64(n)
		}
	}
}

// WithRetries sets how many times a retryable failure is retried.
func WithRetries(n int) HTTPOption {
	return func(h *HTTPInvoker) {
		if n >= 0 {
			h.retries = n
		}
	}
}

// WithBackoff sets the delay before the first retry. It doubles per retry.
func WithBackoff(d time.Duration) HTTPOption {
	return func(h *HTTPInvoker) { h.backoff = d }
}

// WithRateLimit throttles attempts, retries included.
func WithRateLimit(limit rate.Limit, burst int) HTTPOption {
	return func(h *HTTPInvoker) { h.limiter = rate.NewLimiter(limit, burst) }
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(l logging.Logger) HTTPOption {
	return func(h *HTTPInvoker) { h.logger = logging.OrNop(l) }
}

// WithInvokerMetrics records every call on m.
func WithInvokerMetrics(m *metrics.Metrics) HTTPOption {
	return func(h *HTTPInvoker) { h.metrics = m }
}

// WithPerformance applies the concurrency and retry settings of p.
func WithPerformance(p config.Performance) HTTPOption {
	return func(h *HTTPInvoker) {
		WithMaxConcurrent(p.MaxConcurrentRequests)(h)
		WithRetries(p.RequestRetries)(h)
	}
}

// NewHTTPInvoker returns an invoker for the backend served at baseURL.
func NewHTTPInvoker(baseURL string, opts ...HTTPOption) (*HTTPInvoker, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	h := &HTTPInvoker{
		base:          base,
		client:        &http.Client{Timeout: 60 * time.Second},
		maxConcurrent: defaultMaxConcurrent,
		retries:       defaultRetries,
		backoff:       defaultBackoff,
		logger:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.sem = semaphore.NewWeighted(h.maxConcurrent)
	return h, nil
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, command Command, args any, result any) error {
	if command == "" {
		return ErrEmptyCommand
	}

	body := []byte("{}")
	if args != nil {
		var err error
		if body, err = json.Marshal(args); err != nil {
			return fmt.Errorf("failed to encode arguments for %s: %w", command, err)
		}
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := h.invokeWithRetry(ctx, command, body, result)
	h.metrics.ObserveBackendCall(string(command), time.Since(start), err)
	return err
}

func (h *HTTPInvoker) invokeWithRetry(ctx context.Context, command Command, body []byte, result any) error {
	delay := h.backoff
	for attempt := 0; ; attempt++ {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := h.attempt(ctx, command, body, result)
		if err == nil || attempt >= h.retries || !retryable(err) || ctx.Err() != nil {
			return err
		}

		h.logger.Warn("Retrying backend command", "command", string(command), "attempt", attempt+1, "error", err)
		h.metrics.BackendRetried(string(command))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (h *HTTPInvoker) attempt(ctx context.Context, command Command, body []byte, result any) error {
	endpoint := h.base.JoinPath("invoke", string(command))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Command: command, StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", command, err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode == http.StatusTooManyRequests || re.StatusCode >= 500
	}
	return false
}
