package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig
	Scrape  ScrapeConfig
	Session SessionConfig
	Delay   DelayConfig
	LLM     LLMConfig
	Store   StoreConfig
	Probe   ProbeConfig
	Monitor MonitorConfig
	Log     LogConfig
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// NavigationTimeout is the max time for page.Navigate alone.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists CDP resource types to abort via hijack.
	// Empty by default: a page that loads no images is itself a bot signal,
	// so blocking is opt-in for fast non-stealth runs.
	BlockedResourceTypes []string
}

// ScrapeConfig controls the per-page scrape protocol.
type ScrapeConfig struct {
	// DiscoveryTimeout bounds one discovery page scrape end to end.
	DiscoveryTimeout time.Duration // default: 60s

	// PricingTimeout bounds one pricing page scrape end to end.
	PricingTimeout time.Duration // default: 180s

	// ReadySelector is the CSS selector of the room-list container; the
	// readiness predicate holds once it exists and has children.
	ReadySelector string // default: div[data-stid='section-room-list']

	// CaptchaKeywords are matched case-insensitively against the page's
	// visible text to detect a bot wall.
	CaptchaKeywords []string

	// MaxDocChars caps the markdown document handed to the extraction
	// collaborator.
	MaxDocChars int // default: 60000

	// Warmup visits the site root with a short dwell before the first
	// scrape of a run.
	Warmup bool // default: true
}

// SessionConfig controls browser-identity rotation.
type SessionConfig struct {
	// RequestLimit is the page-scrape count after which a session rotates.
	RequestLimit int // default: 10

	// MaxAge is the wall-clock age after which a session rotates.
	MaxAge time.Duration // default: 20m
}

// DelayConfig controls the humanized delay engine. All bounds are inclusive
// uniform-random ranges; a fixed delay is a timing signature, so Min == Max
// is legal but discouraged outside tests.
type DelayConfig struct {
	DiscoveryMin time.Duration // default: 3s
	DiscoveryMax time.Duration // default: 7s
	PricingMin   time.Duration // default: 8s
	PricingMax   time.Duration // default: 20s
	ShortMin     time.Duration // default: 2s
	ShortMax     time.Duration // default: 5s
	MediumMin    time.Duration // default: 5s
	MediumMax    time.Duration // default: 10s
	LongMin      time.Duration // default: 30s
	LongMax      time.Duration // default: 60s

	// LongBreakChance is the probability of appending an extended pause to
	// any delay, breaking periodic timing signatures.
	LongBreakChance float64       // default: 0.1
	LongBreakMin    time.Duration // default: 5s
	LongBreakMax    time.Duration // default: 15s
}

// LLMConfig controls the extraction collaborator client.
type LLMConfig struct {
	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string // default: "gpt-4o-mini"

	// BaseURL is the API root (OpenAI-compatible).
	BaseURL string // default: "https://api.openai.com/v1"

	// Timeout bounds one completion call.
	Timeout time.Duration // default: 60s

	// MaxTokens caps the completion length.
	MaxTokens int // default: 2000

	// RequestsPerSecond and Burst feed the client-side token bucket.
	RequestsPerSecond float64 // default: 1
	Burst             int     // default: 2
}

// StoreConfig controls on-disk persistence.
type StoreConfig struct {
	ProfilesDir string // default: "hotel_profiles"
	ResultsDir  string // default: "scraped_data"
	DebugDir    string // default: "debug"
}

// ProbeConfig controls the preflight reachability check.
type ProbeConfig struct {
	Enabled bool          // default: true
	Timeout time.Duration // default: 10s
}

// MonitorConfig controls the optional local observability server.
type MonitorConfig struct {
	Enabled bool   // default: false
	Addr    string // default: "127.0.0.1:9273"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:             envBoolOr("RATESCOUT_HEADLESS", true),
			NoSandbox:            envBoolOr("RATESCOUT_NO_SANDBOX", false),
			BrowserBin:           os.Getenv("RATESCOUT_BROWSER_BIN"),
			Proxy:                os.Getenv("RATESCOUT_PROXY"),
			NavigationTimeout:    envDurationOr("RATESCOUT_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("RATESCOUT_BLOCKED_RESOURCES", nil),
		},
		Scrape: ScrapeConfig{
			DiscoveryTimeout: envDurationOr("RATESCOUT_DISCOVERY_TIMEOUT", 60*time.Second),
			PricingTimeout:   envDurationOr("RATESCOUT_PRICING_TIMEOUT", 180*time.Second),
			ReadySelector:    envOr("RATESCOUT_READY_SELECTOR", "div[data-stid='section-room-list']"),
			CaptchaKeywords: envSliceOr("RATESCOUT_CAPTCHA_KEYWORDS", []string{
				"show us your human side",
				"prove you are human",
				"captcha",
				"robot",
				"start puzzle",
			}),
			MaxDocChars: envIntOr("RATESCOUT_MAX_DOC_CHARS", 60000),
			Warmup:      envBoolOr("RATESCOUT_WARMUP", true),
		},
		Session: SessionConfig{
			RequestLimit: envIntOr("RATESCOUT_SESSION_REQUEST_LIMIT", 10),
			MaxAge:       envDurationOr("RATESCOUT_SESSION_MAX_AGE", 20*time.Minute),
		},
		Delay: DelayConfig{
			DiscoveryMin:    envDurationOr("RATESCOUT_DELAY_DISCOVERY_MIN", 3*time.Second),
			DiscoveryMax:    envDurationOr("RATESCOUT_DELAY_DISCOVERY_MAX", 7*time.Second),
			PricingMin:      envDurationOr("RATESCOUT_DELAY_PRICING_MIN", 8*time.Second),
			PricingMax:      envDurationOr("RATESCOUT_DELAY_PRICING_MAX", 20*time.Second),
			ShortMin:        envDurationOr("RATESCOUT_DELAY_SHORT_MIN", 2*time.Second),
			ShortMax:        envDurationOr("RATESCOUT_DELAY_SHORT_MAX", 5*time.Second),
			MediumMin:       envDurationOr("RATESCOUT_DELAY_MEDIUM_MIN", 5*time.Second),
			MediumMax:       envDurationOr("RATESCOUT_DELAY_MEDIUM_MAX", 10*time.Second),
			LongMin:         envDurationOr("RATESCOUT_DELAY_LONG_MIN", 30*time.Second),
			LongMax:         envDurationOr("RATESCOUT_DELAY_LONG_MAX", 60*time.Second),
			LongBreakChance: envFloatOr("RATESCOUT_LONG_BREAK_CHANCE", 0.1),
			LongBreakMin:    envDurationOr("RATESCOUT_LONG_BREAK_MIN", 5*time.Second),
			LongBreakMax:    envDurationOr("RATESCOUT_LONG_BREAK_MAX", 15*time.Second),
		},
		LLM: LLMConfig{
			APIKey:            os.Getenv("RATESCOUT_LLM_API_KEY"),
			Model:             envOr("RATESCOUT_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:           envOr("RATESCOUT_LLM_BASE_URL", "https://api.openai.com/v1"),
			Timeout:           envDurationOr("RATESCOUT_LLM_TIMEOUT", 60*time.Second),
			MaxTokens:         envIntOr("RATESCOUT_LLM_MAX_TOKENS", 2000),
			RequestsPerSecond: envFloatOr("RATESCOUT_LLM_RPS", 1.0),
			Burst:             envIntOr("RATESCOUT_LLM_BURST", 2),
		},
		Store: StoreConfig{
			ProfilesDir: envOr("RATESCOUT_PROFILES_DIR", "hotel_profiles"),
			ResultsDir:  envOr("RATESCOUT_RESULTS_DIR", "scraped_data"),
			DebugDir:    envOr("RATESCOUT_DEBUG_DIR", "debug"),
		},
		Probe: ProbeConfig{
			Enabled: envBoolOr("RATESCOUT_PROBE_ENABLED", true),
			Timeout: envDurationOr("RATESCOUT_PROBE_TIMEOUT", 10*time.Second),
		},
		Monitor: MonitorConfig{
			Enabled: envBoolOr("RATESCOUT_MONITOR_ENABLED", false),
			Addr:    envOr("RATESCOUT_MONITOR_ADDR", "127.0.0.1:9273"),
		},
		Log: LogConfig{
			Level:  envOr("RATESCOUT_LOG_LEVEL", "info"),
			Format: envOr("RATESCOUT_LOG_FORMAT", "text"),
		},
	}
}

// Validate rejects configurations that would make the pipeline misbehave in
// ways that are hard to trace back to a bad variable.
func (c *Config) Validate() error {
	if c.Session.RequestLimit < 1 {
		return fmt.Errorf("config: session request limit must be >= 1, got %d", c.Session.RequestLimit)
	}
	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("config: session max age must be positive, got %s", c.Session.MaxAge)
	}
	if c.Scrape.DiscoveryTimeout <= 0 || c.Scrape.PricingTimeout <= 0 {
		return fmt.Errorf("config: scrape timeouts must be positive")
	}
	if strings.TrimSpace(c.Scrape.ReadySelector) == "" {
		return fmt.Errorf("config: ready selector must not be empty")
	}
	if len(c.Scrape.CaptchaKeywords) == 0 {
		return fmt.Errorf("config: captcha keyword list must not be empty")
	}
	if c.Scrape.MaxDocChars < 1 {
		return fmt.Errorf("config: max doc chars must be >= 1, got %d", c.Scrape.MaxDocChars)
	}
	if c.Delay.LongBreakChance < 0 || c.Delay.LongBreakChance > 1 {
		return fmt.Errorf("config: long break chance must be in [0,1], got %g", c.Delay.LongBreakChance)
	}
	for _, b := range []struct {
		name     string
		min, max time.Duration
	}{
		{"discovery", c.Delay.DiscoveryMin, c.Delay.DiscoveryMax},
		{"pricing", c.Delay.PricingMin, c.Delay.PricingMax},
		{"short", c.Delay.ShortMin, c.Delay.ShortMax},
		{"medium", c.Delay.MediumMin, c.Delay.MediumMax},
		{"long", c.Delay.LongMin, c.Delay.LongMax},
		{"long break", c.Delay.LongBreakMin, c.Delay.LongBreakMax},
	} {
		if b.min < 0 || b.max < b.min {
			return fmt.Errorf("config: %s delay bounds invalid: min=%s max=%s", b.name, b.min, b.max)
		}
	}
	if c.LLM.RequestsPerSecond <= 0 || c.LLM.Burst < 1 {
		return fmt.Errorf("config: llm rate limit must be positive")
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
