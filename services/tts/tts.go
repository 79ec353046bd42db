// Package tts plays text through the backend speech engine and, when
// auto-play is enabled, reads every completed translation aloud.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/eventbus"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/services"
	"github.com/GoCodeAlone/alouette/services/translation"
)

// Name is the registry name of the service.
const Name = "tts"

const queueSize = 8

var (
	ErrEmptyText      = errors.New("nothing to play")
	ErrPlaybackFailed = errors.New("tts playback failed")
	ErrStopped        = errors.New("tts playback stopped")
)

// PlaybackEvent is the payload of the playback topics.
type PlaybackEvent struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// PlaybackState describes what is playing.
type PlaybackState struct {
	PlayingText string `json:"playingText,omitempty"`
	PlayingAll  bool   `json:"isPlayingAll"`
	Playing     bool   `json:"isPlaying"`
	Queued      int    `json:"queued"`
}

// sequence is one PlayAll run.
type sequence struct {
	cancel context.CancelFunc
}

type playRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang"`
}

// Service implements speech playback. Create it with New.
type Service struct {
	invoker backend.Invoker
	bus     *eventbus.Bus
	logger  logging.Logger
	clock   clock.Clock

	mu          sync.Mutex
	settings    config.TTS
	playingText string
	sequence    *sequence
	lastErr     error
	initialized bool

	queue  chan translation.Result
	stop   context.CancelFunc
	worker sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the clock used for pauses between languages.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// New builds the service from deps.
func New(deps services.Dependencies, opts ...Option) (*Service, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	deps = deps.WithDefaults()

	s := &Service{
		invoker:  deps.Invoker,
		bus:      deps.Bus,
		logger:   deps.Logger,
		clock:    clock.New(),
		settings: deps.Config.TTS,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Name() string { return Name }

// Initialize starts the auto-play worker.
func (s *Service) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.queue = make(chan translation.Result, queueSize)
	s.stop = cancel
	s.initialized = true

	s.worker.Add(1)
	go s.run(ctx, s.queue)
	return nil
}

// Shutdown stops the worker and any playback sequence in progress. Queued
// translations are discarded.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = false
	s.stop()
	if s.sequence != nil {
		s.sequence.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tts worker did not stop: %w", ctx.Err())
	}
}

func (s *Service) run(ctx context.Context, queue <-chan translation.Result) {
	defer s.worker.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-queue:
			if err := s.PlayAll(ctx, r); err != nil && !errors.Is(err, ErrStopped) {
				s.logger.Warn("Auto-play of translation failed", "error", err)
			}
		}
	}
}

func (s *Service) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsHealthy reports whether the auto-play worker is running.
func (s *Service) IsHealthy() bool {
	return s.IsInitialized()
}

// LastError returns the error of the most recent failed playback, or nil
// once a later playback succeeded.
func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnConfigChanged picks up new TTS settings.
func (s *Service) OnConfigChanged(_ context.Context, cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg.TTS
}

// OnTranslationCompleted queues r for playback when auto-play is enabled.
// It never blocks; when the queue is full the translation is skipped.
func (s *Service) OnTranslationCompleted(_ context.Context, r translation.Result) {
	s.mu.Lock()
	autoPlay, queue := s.settings.AutoPlay, s.queue
	ready := s.initialized
	s.mu.Unlock()

	if !autoPlay || !ready {
		s.logger.Debug("Translation completed, auto-play disabled", "languages", len(r.Translations))
		return
	}
	select {
	case queue <- r:
		s.logger.Debug("Translation queued for playback", "languages", len(r.Translations))
	default:
		s.logger.Warn("Playback queue full, skipping translation", "languages", len(r.Translations))
	}
}

// Play speaks text in lang and blocks until the backend finishes.
// Playback events are emitted around the call.
func (s *Service) Play(ctx context.Context, text, lang string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	s.playingText = text
	s.mu.Unlock()

	s.bus.Emit(ctx, eventbus.TopicPlaybackStarted, PlaybackEvent{Text: text, Language: lang})
	start := s.clock.Now()

	err := s.invoker.Invoke(ctx, backend.CommandPlayTTS, playRequest{Text: text, Lang: lang}, nil)

	done := PlaybackEvent{Text: text, Language: lang, Duration: s.clock.Since(start)}
	s.mu.Lock()
	s.playingText = ""
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
		s.lastErr = err
		done.Error = err.Error()
	} else {
		s.lastErr = nil
	}
	s.mu.Unlock()

	s.bus.Emit(ctx, eventbus.TopicPlaybackCompleted, done)
	if err != nil {
		s.logger.Error("TTS playback failed", "language", lang, "error", err)
	}
	return err
}

// PlayAll speaks each translation of r in language order, pausing
// tts.pauseBetweenLanguages between them. It stops at the first failure.
// Starting a new sequence cancels the previous one.
func (s *Service) PlayAll(ctx context.Context, r translation.Result) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	seq := &sequence{cancel: cancel}

	s.mu.Lock()
	if s.sequence != nil {
		s.sequence.cancel()
	}
	s.sequence = seq
	pause := time.Duration(s.settings.PauseBetweenLanguages) * time.Millisecond
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.sequence == seq {
			s.sequence = nil
		}
		s.mu.Unlock()
	}()

	first := true
	for _, lang := range r.Languages {
		text, ok := r.Translations[lang]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if !first && pause > 0 {
			if err := s.sleep(ctx, pause); err != nil {
				return err
			}
		}
		first = false

		if ctx.Err() != nil {
			return ErrStopped
		}
		if err := s.Play(ctx, text, lang); err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			return err
		}
	}
	return nil
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := s.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrStopped
	case <-timer.C:
		return nil
	}
}

// Stop cancels the running PlayAll sequence, including its command in
// flight.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sequence != nil {
		s.sequence.cancel()
		s.sequence = nil
	}
	s.playingText = ""
	s.logger.Info("TTS playback stopped")
}

// PlaybackState reports what is playing.
func (s *Service) PlaybackState() PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := PlaybackState{
		PlayingText: s.playingText,
		PlayingAll:  s.sequence != nil,
		Playing:     s.playingText != "",
	}
	if s.queue != nil {
		st.Queued = len(s.queue)
	}
	return st
}
