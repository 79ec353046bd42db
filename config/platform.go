package config

// Platform describes the host the application runs on. Detection is left to
// the caller; the zero value is a desktop host.
type Platform struct {
	Name    string `json:"name"`
	Android bool   `json:"android"`
	IOS     bool   `json:"ios"`
}

// Mobile reports whether the platform is a phone or tablet.
func (p Platform) Mobile() bool { return p.Android || p.IOS }

// Network hosts tried for LLM servers reached from an Android device.
var androidHosts = []string{
	"http://192.168.1.100",
	"http://192.168.0.100",
	"http://10.0.2.2",
}

// DefaultPort returns the well-known port of a provider's server, or an
// empty string for providers without one.
func DefaultPort(provider string) string {
	switch provider {
	case "ollama":
		return "11434"
	case "lmstudio":
		return "1234"
	default:
		return ""
	}
}

// RecommendedServerURLs lists candidate server URLs per provider, best first.
func (p Platform) RecommendedServerURLs() map[string][]string {
	urls := make(map[string][]string, 2)
	for _, provider := range []string{"ollama", "lmstudio"} {
		port := DefaultPort(provider)
		if !p.Android {
			urls[provider] = []string{"http://localhost:" + port}
			continue
		}
		for _, host := range androidHosts {
			urls[provider] = append(urls[provider], host+":"+port)
		}
	}
	return urls
}

// RecommendedTTSRate returns the speech rate that sounds natural on p.
func (p Platform) RecommendedTTSRate() float64 {
	switch {
	case p.Android:
		return 0.9
	case p.IOS:
		return 1.1
	default:
		return 1.0
	}
}

// applyPlatformDefaults adjusts settings that still hold generic defaults.
func applyPlatformDefaults(cfg *Config, p Platform) {
	if cfg.TTS.Rate == 0 || cfg.TTS.Rate == 1.0 {
		cfg.TTS.Rate = p.RecommendedTTSRate()
	}
	cfg.UI.CompactMode = p.Mobile()
	if cfg.LLM.ServerURL == "" {
		if urls := p.RecommendedServerURLs()[cfg.LLM.Provider]; len(urls) > 0 {
			cfg.LLM.ServerURL = urls[0]
		}
	}
}
