// Package config holds the application settings, their defaults and the
// Manager that persists them and announces changes on the event bus.
package config

// Config is the complete settings tree. Paths used by Manager.Get and
// Manager.Set follow the json tags, e.g. "llm.serverUrl".
type Config struct {
	LLM         LLM         `json:"llm" yaml:"llm" toml:"llm"`
	TTS         TTS         `json:"tts" yaml:"tts" toml:"tts"`
	UI          UI          `json:"ui" yaml:"ui" toml:"ui"`
	Performance Performance `json:"performance" yaml:"performance" toml:"performance"`
}

// LLM configures the language model server used for translation.
type LLM struct {
	Provider      string `json:"provider" yaml:"provider" toml:"provider" env:"LLM_PROVIDER" default:"ollama" required:"true"`
	ServerURL     string `json:"serverUrl" yaml:"serverUrl" toml:"serverUrl" env:"LLM_SERVER_URL"`
	APIKey        string `json:"apiKey" yaml:"apiKey" toml:"apiKey" env:"LLM_API_KEY"`
	SelectedModel string `json:"selectedModel" yaml:"selectedModel" toml:"selectedModel" env:"LLM_SELECTED_MODEL"`
	// Timeout in milliseconds.
	Timeout int `json:"timeout" yaml:"timeout" toml:"timeout" env:"LLM_TIMEOUT" default:"30000"`
}

// TTS configures speech playback.
type TTS struct {
	Rate   float64 `json:"rate" yaml:"rate" toml:"rate" env:"TTS_RATE" default:"1.0"`
	Volume float64 `json:"volume" yaml:"volume" toml:"volume" env:"TTS_VOLUME" default:"1.0"`
	// PauseBetweenLanguages in milliseconds.
	PauseBetweenLanguages int  `json:"pauseBetweenLanguages" yaml:"pauseBetweenLanguages" toml:"pauseBetweenLanguages" env:"TTS_PAUSE" default:"500"`
	AutoSelectVoice       bool `json:"autoSelectVoice" yaml:"autoSelectVoice" toml:"autoSelectVoice" env:"TTS_AUTO_SELECT_VOICE" default:"true"`
	CacheEnabled          bool `json:"cacheEnabled" yaml:"cacheEnabled" toml:"cacheEnabled" env:"TTS_CACHE_ENABLED" default:"true"`
	AutoPlay              bool `json:"autoPlay" yaml:"autoPlay" toml:"autoPlay" env:"TTS_AUTO_PLAY"`
}

// UI holds presentation preferences. The core only stores them.
type UI struct {
	Language    string `json:"language" yaml:"language" toml:"language" env:"UI_LANGUAGE" default:"en"`
	Theme       string `json:"theme" yaml:"theme" toml:"theme" env:"UI_THEME" default:"light"`
	FontSize    string `json:"fontSize" yaml:"fontSize" toml:"fontSize" env:"UI_FONT_SIZE" default:"medium"`
	CompactMode bool   `json:"compactMode" yaml:"compactMode" toml:"compactMode" env:"UI_COMPACT_MODE"`
}

// Performance bounds backend traffic and caching.
type Performance struct {
	MaxConcurrentRequests int    `json:"maxConcurrentRequests" yaml:"maxConcurrentRequests" toml:"maxConcurrentRequests" env:"MAX_CONCURRENT_REQUESTS" default:"3"`
	RequestRetries        int    `json:"requestRetries" yaml:"requestRetries" toml:"requestRetries" env:"REQUEST_RETRIES" default:"2"`
	CacheSize             int    `json:"cacheSize" yaml:"cacheSize" toml:"cacheSize" env:"CACHE_SIZE" default:"100"`
	CacheRefreshSchedule  string `json:"cacheRefreshSchedule" yaml:"cacheRefreshSchedule" toml:"cacheRefreshSchedule" env:"CACHE_REFRESH_SCHEDULE" default:"@every 5m"`
}

// Default returns a Config populated from the default tags.
func Default() Config {
	var cfg Config
	if err := ApplyDefaults(&cfg); err != nil {
		// The tags are static, so this only fires on a broken build.
		panic(err)
	}
	return cfg
}

// Clamp forces numeric settings into their supported ranges.
func (c *Config) Clamp() {
	c.TTS.Rate = clamp(c.TTS.Rate, 0.1, 3.0)
	c.TTS.Volume = clamp(c.TTS.Volume, 0, 1)
	c.TTS.PauseBetweenLanguages = clamp(c.TTS.PauseBetweenLanguages, 0, 5000)

	c.Performance.MaxConcurrentRequests = clamp(c.Performance.MaxConcurrentRequests, 1, 10)
	c.Performance.RequestRetries = clamp(c.Performance.RequestRetries, 0, 5)
	c.Performance.CacheSize = clamp(c.Performance.CacheSize, 10, 1000)
}

func clamp[T int | float64](v, lo, hi T) T {
	return max(lo, min(hi, v))
}
