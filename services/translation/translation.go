// Package translation sends text to the configured language model through
// the backend, keeps the latest result and announces completed
// translations on the event bus.
package translation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/services"
)

// Name is the registry name of the service.
const Name = "translation"

var (
	ErrEmptyText         = errors.New("please enter text to translate")
	ErrNoLanguages       = errors.New("please select at least one target language")
	ErrLLMNotConfigured  = errors.New("please configure LLM settings first")
	ErrNoTranslation     = errors.New("no translation available to save")
	ErrServerUnreachable = errors.New("cannot connect to LLM server")
	ErrUnauthorized      = errors.New("authentication failed, check your API key")
	ErrModelNotFound     = errors.New("model not found")
	ErrTimeout           = errors.New("translation request timed out, the server may be busy")
	ErrTranslationFailed = errors.New("translation failed")
	ErrSaveFailed        = errors.New("failed to save translation")
)

// Result is a completed translation. It is the payload of
// eventbus.TopicTranslationCompleted.
type Result struct {
	Original     string            `json:"original"`
	Translations map[string]string `json:"translations"`
	Languages    []string          `json:"languages"`
	Timestamp    time.Time         `json:"timestamp"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model"`
	// Cached is set when the result was served from the result cache.
	Cached bool `json:"cached,omitempty"`
}

// Clone returns a copy of r that shares no maps or slices with it.
func (r Result) Clone() Result {
	r.Translations = maps.Clone(r.Translations)
	r.Languages = slices.Clone(r.Languages)
	return r
}

// State describes what the service is doing.
type State struct {
	Translating    bool    `json:"isTranslating"`
	HasTranslation bool    `json:"hasTranslation"`
	Current        *Result `json:"currentTranslation,omitempty"`
}

// request is the translate_text argument object.
type request struct {
	Text            string   `json:"text"`
	TargetLanguages []string `json:"target_languages"`
	Provider        string   `json:"provider"`
	ServerURL       string   `json:"server_url"`
	ModelName       string   `json:"model_name"`
	APIKey          string   `json:"api_key,omitempty"`
}

type response struct {
	Translations map[string]string `json:"translations"`
}

// Service implements translation. Create it with New.
type Service struct {
	invoker backend.Invoker
	bus     *eventbus.Bus
	logger  logging.Logger
	now     func() time.Time

	mu          sync.Mutex
	llm         config.LLM
	cache       *lru.Cache[string, Result]
	current     *Result
	translating int
	initialized bool
	lastErr     error
}

// New builds the service from deps.
func New(deps services.Dependencies) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	deps = deps.WithDefaults()

	cache, err := lru.New[string, Result](deps.Config.Performance.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation cache: %w", err)
	}
	return &Service{
		invoker: deps.Invoker,
		bus:     deps.Bus,
		logger:  deps.Logger,
		now:     time.Now,
		llm:     deps.Config.LLM,
		cache:   cache,
	}, nil
}

func (s *Service) Name() string { return Name }

// Initialize marks the service ready. Translation needs no warm-up.
func (s *Service) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Shutdown drops cached results and the current translation.
func (s *Service) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	s.current = nil
	s.initialized = false
	return nil
}

func (s *Service) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// LastError returns the error of the most recent failed translation, or nil
// once a later one succeeded.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnConfigChanged picks up new LLM settings and resizes the result cache.
// Cached results from a different provider or model never match again
// because they are keyed on both.
func (s *Service) OnConfigChanged(_ context.Context, cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llm = cfg.LLM
	if evicted := s.cache.Resize(cfg.Performance.CacheSize); evicted > 0 {
		s.logger.Debug("Translation cache shrunk", "evicted", evicted, "size", cfg.Performance.CacheSize)
	}
}

// Translate translates text into every language, in order, and emits
// eventbus.TopicTranslationCompleted with the Result.
func (s *Service) Translate(ctx context.Context, text string, languages []string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyText
	}
	if len(languages) == 0 {
		return Result{}, ErrNoLanguages
	}

	s.mu.Lock()
	llm := s.llm
	if llm.ServerURL == "" || llm.SelectedModel == "" {
		s.mu.Unlock()
		return Result{}, ErrLLMNotConfigured
	}
	key := cacheKey(llm, text, languages)
	if hit, ok := s.cache.Get(key); ok {
		cached := hit.Clone()
		cached.Cached = true
		current := cached.Clone()
		s.current = &current
		s.mu.Unlock()
		s.logger.Debug("Translation served from cache", "languages", languages)
		s.bus.Emit(ctx, eventbus.TopicTranslationCompleted, cached.Clone())
		return cached, nil
	}
	s.translating++
	s.mu.Unlock()

	s.logger.Info("Starting translation", "provider", llm.Provider, "model", llm.SelectedModel, "languages", languages)

	var resp response
	err := s.invoker.Invoke(ctx, backend.CommandTranslateText, request{
		Text:            text,
		TargetLanguages: languages,
		Provider:        llm.Provider,
		ServerURL:       llm.ServerURL,
		ModelName:       llm.SelectedModel,
		APIKey:          llm.APIKey,
	}, &resp)

	s.mu.Lock()
	s.translating--
	if err != nil {
		err = friendlyError(err, llm)
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Error("Translation failed", "provider", llm.Provider, "error", err)
		return Result{}, err
	}

	result := Result{
		Original:     text,
		Translations: maps.Clone(resp.Translations),
		Languages:    slices.Clone(languages),
		Timestamp:    s.now(),
		Provider:     llm.Provider,
		Model:        llm.SelectedModel,
	}
	s.cache.Add(key, result.Clone())
	current := result.Clone()
	s.current = &current
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info("Translation completed", "languages", len(result.Translations))
	s.bus.Emit(ctx, eventbus.TopicTranslationCompleted, result.Clone())
	return result, nil
}

func cacheKey(llm config.LLM, text string, languages []string) string {
	return strings.Join([]string{llm.Provider, llm.ServerURL, llm.SelectedModel, strings.Join(languages, ","), text}, "\x00")
}

// friendlyError maps backend failures to messages a user can act on.
func friendlyError(err error, llm config.LLM) error {
	msg := strings.ToLower(err.Error())

	var remote *backend.RemoteError
	status := 0
	if errors.As(err, &remote) {
		status = remote.StatusCode
	}

	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "network"):
		return fmt.Errorf("%w: %s server at %s, check that it is running and accessible: %w",
			ErrServerUnreachable, llm.Provider, llm.ServerURL, err)
	case status == 401 || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case status == 404 || strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return fmt.Errorf("%w: %q is not available on the server: %w", ErrModelNotFound, llm.SelectedModel, err)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
}

// Current returns the latest translation.
func (s *Service) Current() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Result{}, false
	}
	return s.current.Clone(), true
}

// Clear forgets the current translation. Cached results are kept.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

// State reports progress and the current translation.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Translating: s.translating > 0, HasTranslation: s.current != nil}
	if s.current != nil {
		c := s.current.Clone()
		st.Current = &c
	}
	return st
}
