package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; SQLite is used when empty
	SQLitePath  string
	RedisURL    string // sessions and rate limiting; in-memory sessions when empty

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations

	// Directory backend
	Username     string // reported by GET /username
	SyftBoxURL   string // reported by GET /sburl
	DirectoryURL string // base URL the chat client uses for the directory
	RoutersFile  string // optional YAML seed

	// Collaborators
	ProxyUpstream   string
	HubSpotPortalID string
	HubSpotFormGUID string

	// Chat
	ChatModel       string
	PollMaxAttempts int
	PollInterval    time.Duration
	ParallelSearch  bool
	DispatchRate    float64 // submissions per second, 0 = unlimited
	MaxDataSources  int     // data sources a session may search per turn
}

// dispatchOverhead covers the submit request and the last poll's round trip.
const dispatchOverhead = 30 * time.Second

// DispatchBudget is how long one search or chat dispatch may take: every
// poll attempt plus the submit.
func (c *Config) DispatchBudget() time.Duration {
	return time.Duration(c.PollMaxAttempts)*c.PollInterval + dispatchOverhead
}

// TurnBudget bounds a chat turn: one dispatch per data source, then the chat.
func (c *Config) TurnBudget() time.Duration {
	return time.Duration(c.MaxDataSources+1) * c.DispatchBudget()
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/routerchat.db"),
		RedisURL:         os.Getenv("REDIS_URL"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",

		Username:     getEnv("SYFT_USERNAME", "guest@syft.org"),
		SyftBoxURL:   getEnv("SYFTBOX_URL", "https://syftbox.net"),
		DirectoryURL: os.Getenv("DIRECTORY_URL"),
		RoutersFile:  os.Getenv("ROUTERS_FILE"),

		ProxyUpstream:   getEnv("PROXY_UPSTREAM", "https://syftbox.net"),
		HubSpotPortalID: os.Getenv("HUBSPOT_PORTAL_ID"),
		HubSpotFormGUID: os.Getenv("HUBSPOT_FORM_GUID"),

		ChatModel:       getEnv("CHAT_MODEL", "tinyllama:latest"),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 20),
		PollInterval:    getEnvDuration("POLL_INTERVAL", 2*time.Second),
		ParallelSearch:  getEnv("PARALLEL_SEARCH", "false") == "true",
		DispatchRate:    getEnvFloat("DISPATCH_RATE", 0),
		MaxDataSources:  getEnvInt("MAX_DATA_SOURCES", 5),
	}

	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = "http://localhost:" + cfg.Port
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require database and redis URLs
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ContactEnabled reports whether HubSpot form submission is configured.
func (c *Config) ContactEnabled() bool {
	return c.HubSpotPortalID != "" && c.HubSpotFormGUID != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && f >= 0 {
		return f
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
