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
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Matcher   MatcherConfig
	Pool      PoolConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	CORS      CORSConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the browser sessions.
type BrowserConfig struct {
	// Engine selects the session implementation: "rod" drives headless
	// Chromium, "http" fetches static HTML with a Chrome TLS fingerprint.
	Engine string // default: "rod"

	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxSessions caps the number of live browser sessions.
	MaxSessions int // default: 2

	// DefaultProxy is the proxy URL for all browser traffic.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// LaunchAttempts bounds browser start retries.
	LaunchAttempts int // default: 3

	// LaunchBackoff is multiplied by the attempt number between retries.
	LaunchBackoff time.Duration // default: 2s

	// UserAgent is sent on every request.
	UserAgent string
}

// ScraperConfig controls page loading and waiting.
type ScraperConfig struct {
	// NavigationTimeout is the max time for one navigation including load.
	NavigationTimeout time.Duration // default: 30s

	// SettleMin and SettleMax bound the randomized post-load delay.
	SettleMin time.Duration // default: 2s
	SettleMax time.Duration // default: 4s

	// ResultWait bounds the wait for search result containers.
	ResultWait time.Duration // default: 15s

	// PollInterval is the element polling period while waiting.
	PollInterval time.Duration // default: 250ms

	// HostRate is the sustained navigations per second per retailer host.
	HostRate float64 // default: 0.5

	// BlockCooldown skips a retailer for this long after it served a bot
	// wall. Zero disables the cooldown.
	BlockCooldown time.Duration // default: 2m

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// ProfilesFile overrides the embedded retailer selector profiles.
	ProfilesFile string
}

// MatcherConfig controls candidate acceptance and query shaping.
type MatcherConfig struct {
	// Threshold is the minimum query-token overlap ratio.
	Threshold float64 // default: 0.3

	// MaxCandidates is how many search results are inspected per platform.
	MaxCandidates int // default: 8

	// VocabularyFile adds brands and keywords to the built-in vocabulary.
	VocabularyFile string
}

// PoolConfig controls browser session retirement.
type PoolConfig struct {
	// MaxUses retires a session after this many check-outs.
	MaxUses int // default: 50

	// MaxAge retires a session older than this.
	MaxAge time.Duration // default: 30m

	// IdleTimeout disposes sessions idle for longer than this.
	IdleTimeout time.Duration // default: 5m

	// MaxErrorScore retires a session whose decayed error score exceeds this.
	MaxErrorScore float64 // default: 3
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the comparison cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string // default: ["*"]
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("PRICEWATCH_HOST", "0.0.0.0"),
			Port: envIntOr("PRICEWATCH_PORT", 8080),
			Mode: envOr("PRICEWATCH_MODE", "release"),
		},
		Browser: BrowserConfig{
			Engine:         envOr("PRICEWATCH_ENGINE", "rod"),
			Headless:       envBoolOr("PRICEWATCH_HEADLESS", true),
			MaxSessions:    envIntOr("PRICEWATCH_MAX_SESSIONS", 2),
			DefaultProxy:   os.Getenv("PRICEWATCH_PROXY"),
			NoSandbox:      envBoolOr("PRICEWATCH_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("PRICEWATCH_BROWSER_BIN"),
			LaunchAttempts: envIntOr("PRICEWATCH_LAUNCH_ATTEMPTS", 3),
			LaunchBackoff:  envDurationOr("PRICEWATCH_LAUNCH_BACKOFF", 2*time.Second),
			UserAgent:      envOr("PRICEWATCH_USER_AGENT", defaultUserAgent),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("PRICEWATCH_NAV_TIMEOUT", 30*time.Second),
			SettleMin:         envDurationOr("PRICEWATCH_SETTLE_MIN", 2*time.Second),
			SettleMax:         envDurationOr("PRICEWATCH_SETTLE_MAX", 4*time.Second),
			ResultWait:        envDurationOr("PRICEWATCH_RESULT_WAIT", 15*time.Second),
			PollInterval:      envDurationOr("PRICEWATCH_POLL_INTERVAL", 250*time.Millisecond),
			HostRate:          envFloatOr("PRICEWATCH_HOST_RATE", 0.5),
			BlockCooldown:     envDurationOr("PRICEWATCH_BLOCK_COOLDOWN", 2*time.Minute),
			BlockedResourceTypes: envSliceOr("PRICEWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			ProfilesFile: os.Getenv("PRICEWATCH_PROFILES_FILE"),
		},
		Matcher: MatcherConfig{
			Threshold:      envFloatOr("PRICEWATCH_MATCH_THRESHOLD", 0.3),
			MaxCandidates:  envIntOr("PRICEWATCH_MAX_CANDIDATES", 8),
			VocabularyFile: os.Getenv("PRICEWATCH_VOCAB_FILE"),
		},
		Pool: PoolConfig{
			MaxUses:       envIntOr("PRICEWATCH_SESSION_MAX_USES", 50),
			MaxAge:        envDurationOr("PRICEWATCH_SESSION_MAX_AGE", 30*time.Minute),
			IdleTimeout:   envDurationOr("PRICEWATCH_SESSION_IDLE_TIMEOUT", 5*time.Minute),
			MaxErrorScore: envFloatOr("PRICEWATCH_SESSION_MAX_ERROR_SCORE", 3),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICEWATCH_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PRICEWATCH_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICEWATCH_RATE_RPS", 1.0),
			Burst:             envIntOr("PRICEWATCH_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PRICEWATCH_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("PRICEWATCH_LOG_LEVEL", "info"),
			Format: envOr("PRICEWATCH_LOG_FORMAT", "json"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envSliceOr("PRICEWATCH_CORS_ORIGINS", []string{"*"}),
		},
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "rod", "http":
	default:
		return fmt.Errorf("config: unknown engine %q (want rod or http)", c.Browser.Engine)
	}
	if c.Browser.MaxSessions < 1 {
		return fmt.Errorf("config: max sessions must be >= 1, got %d", c.Browser.MaxSessions)
	}
	if c.Browser.LaunchAttempts < 1 {
		return fmt.Errorf("config: launch attempts must be >= 1, got %d", c.Browser.LaunchAttempts)
	}
	if c.Scraper.SettleMax < c.Scraper.SettleMin {
		return fmt.Errorf("config: settle max %s is below settle min %s", c.Scraper.SettleMax, c.Scraper.SettleMin)
	}
	if c.Matcher.Threshold <= 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("config: match threshold must be in (0, 1], got %g", c.Matcher.Threshold)
	}
	if c.Matcher.MaxCandidates < 1 {
		return fmt.Errorf("config: max candidates must be >= 1, got %d", c.Matcher.MaxCandidates)
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
