// Package llmconfig tests connections to language model servers, tracks
// the models they offer and validates LLM settings.
package llmconfig

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/alouette/backend"
	"github.com/GoCodeAlone/alouette/config"
	"github.com/GoCodeAlone/alouette/logging"
	"github.com/GoCodeAlone/alouette/services"
)

// Name is the registry name of the service.
const Name = "llmConfig"

// Providers with dedicated handling.
const (
	ProviderOllama   = "ollama"
	ProviderLMStudio = "lmstudio"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrVoicesFailed     = errors.New("failed to get TTS voices")
)

// ConnectionStatus is the outcome of the last connection test.
type ConnectionStatus struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ModelCount int       `json:"modelCount"`
	Timestamp  time.Time `json:"timestamp"`
}

type ollamaRequest struct {
	OllamaURL string `json:"ollama_url"`
}

type llmRequest struct {
	Provider  string `json:"provider"`
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key,omitempty"`
}

// Service implements LLM connection management. Create it with New.
type Service struct {
	invoker backend.Invoker
	logger  logging.Logger
	now     func() time.Time

	mu          sync.Mutex
	llm         config.LLM
	platform    config.Platform
	models      []string
	status      *ConnectionStatus
	testing     int
	lastErr     error
	initialized bool
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
		now:      time.Now,
		llm:      deps.Config.LLM,
		platform: deps.Platform,
	}, nil
}

func (s *Service) Name() string { return Name }

func (s *Service) Initialize(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

func (s *Service) Shutdown(context.Context) error {
	s.ClearConnection()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	return nil
}

func (s *Service) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// IsHealthy is false while the last connection test failed.
func (s *Service) IsHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == nil || s.status.Success
}

func (s *Service) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnConfigChanged forgets the model list when the server changed, since it
// described a different server.
func (s *Service) OnConfigChanged(_ context.Context, cfg config.Config) {
	s.mu.Lock()
	changed := cfg.LLM.Provider != s.llm.Provider || cfg.LLM.ServerURL != s.llm.ServerURL
	s.llm = cfg.LLM
	s.mu.Unlock()

	if changed {
		s.logger.Info("LLM server changed, clearing connection state", "provider", cfg.LLM.Provider)
		s.ClearConnection()
	}
}

// Settings returns the LLM settings the service currently knows.
func (s *Service) Settings() config.LLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llm
}

// TestConnection asks the backend to reach the server described by llm and
// returns the models it offers. Ollama servers are probed with
// connect_ollama, every other provider with connect_llm.
func (s *Service) TestConnection(ctx context.Context, llm config.LLM) ([]string, error) {
	s.mu.Lock()
	s.testing++
	s.status = nil
	s.mu.Unlock()

	s.logger.Info("Testing LLM connection", "provider", llm.Provider, "serverUrl", llm.ServerURL, "hasApiKey", llm.APIKey != "")

	var models []string
	var err error
	if llm.Provider == ProviderOllama {
		err = s.invoker.Invoke(ctx, backend.CommandConnectOllama, ollamaRequest{OllamaURL: llm.ServerURL}, &models)
	} else {
		err = s.invoker.Invoke(ctx, backend.CommandConnectLLM, llmRequest{
			Provider:  llm.Provider,
			ServerURL: llm.ServerURL,
			APIKey:    llm.APIKey,
		}, &models)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.testing--

	if err != nil {
		msg := connectionErrorMessage(err, llm)
		s.status = &ConnectionStatus{Message: msg, Timestamp: s.now()}
		s.lastErr = fmt.Errorf("%w: %s: %w", ErrConnectionFailed, msg, err)
		s.logger.Error("LLM connection failed", "provider", llm.Provider, "error", err)
		return nil, s.lastErr
	}

	if models == nil {
		models = []string{}
	}
	s.models = models
	s.lastErr = nil
	s.status = &ConnectionStatus{
		Success:    true,
		Message:    "Successfully connected to " + llm.Provider,
		ModelCount: len(models),
		Timestamp:  s.now(),
	}
	s.logger.Info("LLM connection successful", "provider", llm.Provider, "models", len(models))
	return append([]string(nil), models...), nil
}

func connectionErrorMessage(err error, llm config.LLM) string {
	raw := err.Error()
	msg := strings.ToLower(raw)

	status := 0
	var remote *backend.RemoteError
	if errors.As(err, &remote) {
		status = remote.StatusCode
	}

	switch {
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "econnrefused"):
		return fmt.Sprintf("Cannot connect to %s server at %s. Please ensure the server is running and accessible.", llm.Provider, llm.ServerURL)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "etimedout"):
		return fmt.Sprintf("Connection to %s server timed out. Please check the server URL and network connectivity.", llm.Provider)
	case status == 404 || strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return fmt.Sprintf("%s server not found at %s. Please verify the URL is correct.", llm.Provider, llm.ServerURL)
	case status == 401 || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401"):
		return fmt.Sprintf("Authentication failed. Please check your API key for %s.", llm.Provider)
	case strings.Contains(msg, "network") || strings.Contains(msg, "dns") || strings.Contains(msg, "no such host"):
		return fmt.Sprintf("Network error connecting to %s. Please check your internet connection and server URL.", llm.Provider)
	default:
		return "Connection failed: " + raw
	}
}

// Voices lists the backend's speech voices per language.
func (s *Service) Voices(ctx context.Context) (map[string][]string, error) {
	var voices map[string][]string
	if err := s.invoker.Invoke(ctx, backend.CommandGetEdgeTTSVoices, nil, &voices); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVoicesFailed, err)
	}
	return voices, nil
}

// Models returns the models offered by the last successfully tested server.
func (s *Service) Models() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.models...)
}

// Status returns the result of the last connection test, if any.
func (s *Service) Status() (ConnectionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == nil {
		return ConnectionStatus{}, false
	}
	return *s.status, true
}

// Testing reports whether a connection test is running.
func (s *Service) Testing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testing > 0
}

// ClearConnection forgets models, status and the last error.
func (s *Service) ClearConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = nil
	s.status = nil
	s.lastErr = nil
}

// Validation is the outcome of ValidateConfig. Warnings never make a
// configuration invalid.
type Validation struct {
	Valid    bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateConfig checks llm for problems a user should fix or know about.
func ValidateConfig(llm config.LLM) Validation {
	var errs, warnings []string

	if llm.Provider == "" {
		errs = append(errs, "LLM provider is required")
	}

	if llm.ServerURL == "" {
		errs = append(errs, "Server URL is required")
	} else if u, err := url.Parse(llm.ServerURL); err != nil || u.Host == "" {
		errs = append(errs, "Server URL format is invalid")
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, "Server URL must use HTTP or HTTPS protocol")
	}

	if llm.SelectedModel == "" {
		warnings = append(warnings, "No model selected - you will need to select a model after testing connection")
	}
	if llm.Provider == ProviderLMStudio && llm.APIKey == "" {
		warnings = append(warnings, "API key is recommended for LM Studio")
	}

	if llm.ServerURL != "" {
		local := strings.Contains(llm.ServerURL, "localhost") || strings.Contains(llm.ServerURL, "127.0.0.1")
		if local {
			warnings = append(warnings, "Using localhost - ensure the server is running on this machine")
		}
		if strings.HasPrefix(llm.ServerURL, "http:") && !strings.Contains(llm.ServerURL, "localhost") {
			warnings = append(warnings, "Using HTTP (not HTTPS) for remote server - consider using HTTPS for security")
		}
	}

	return Validation{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// ValidateConfig validates the settings the service currently holds.
func (s *Service) ValidateConfig() Validation {
	return ValidateConfig(s.Settings())
}

// Recommendation describes how to reach a provider's server.
type Recommendation struct {
	ServerURL         string   `json:"serverUrl"`
	APIKey            string   `json:"apiKey"`
	Description       string   `json:"description"`
	SetupInstructions []string `json:"setupInstructions"`
}

// RecommendedSettings suggests a server URL for provider. Android devices
// reach the server over the local network instead of localhost.
func RecommendedSettings(provider string, android bool) Recommendation {
	base := "http://localhost"
	if android {
		base = "http://192.168.1.100"
	}

	switch provider {
	case ProviderOllama:
		return Recommendation{
			ServerURL:   base + ":" + config.DefaultPort(ProviderOllama),
			Description: "Ollama typically runs on port 11434",
			SetupInstructions: []string{
				"Install Ollama from https://ollama.ai",
				`Run "ollama serve" to start the server`,
				`Pull a model with "ollama pull llama3.2" or similar`,
			},
		}
	case ProviderLMStudio:
		return Recommendation{
			ServerURL:   base + ":" + config.DefaultPort(ProviderLMStudio),
			Description: "LM Studio typically runs on port 1234",
			SetupInstructions: []string{
				"Install LM Studio from https://lmstudio.ai",
				"Load a model in LM Studio",
				"Start the local server from the server tab",
			},
		}
	default:
		return Recommendation{
			ServerURL:         base + ":" + config.DefaultPort(ProviderOllama),
			Description:       "Default configuration",
			SetupInstructions: []string{},
		}
	}
}

// RecommendedSettings suggests settings for provider on the service's
// platform.
func (s *Service) RecommendedSettings(provider string) Recommendation {
	s.mu.Lock()
	android := s.platform.Android
	s.mu.Unlock()
	return RecommendedSettings(provider, android)
}
