package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "SHIPYARD"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDSN       = "shipyard.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "shipyard_session"
	defaultSessionTTLMinutes = 24 * 60
	defaultRateLimitWindow   = 2
	defaultSearchIndex       = "profiles"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	AllowedOrigins  []string
	DatabaseDSN     string
	SigningSecret   string
	CookieName      string
	SessionTTL      time.Duration
	LogLevel        string
	RedisAddress    string
	RateLimitWindow time.Duration
	MeiliHost       string
	MeiliAPIKey     string
	SearchIndex     string
}

// SearchEnabled reports whether a Meilisearch host is configured.
func (c AppConfig) SearchEnabled() bool {
	return c.MeiliHost != ""
}

// RateLimitEnabled reports whether a Redis address is configured.
func (c AppConfig) RateLimitEnabled() bool {
	return c.RedisAddress != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", "")
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("ratelimit.window_seconds", defaultRateLimitWindow)
	configViper.SetDefault("search.meili_host", "")
	configViper.SetDefault("search.meili_api_key", "")
	configViper.SetDefault("search.index", defaultSearchIndex)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:  splitList(configViper.GetString("http.allowed_origins")),
		DatabaseDSN:     strings.TrimSpace(configViper.GetString("database.dsn")),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		CookieName:      strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		SessionTTL:      time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		LogLevel:        configViper.GetString("log.level"),
		RedisAddress:    strings.TrimSpace(configViper.GetString("redis.address")),
		RateLimitWindow: time.Duration(configViper.GetInt("ratelimit.window_seconds")) * time.Second,
		MeiliHost:       strings.TrimSpace(configViper.GetString("search.meili_host")),
		MeiliAPIKey:     configViper.GetString("search.meili_api_key"),
		SearchIndex:     strings.TrimSpace(configViper.GetString("search.index")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.CookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	if c.RateLimitEnabled() && c.RateLimitWindow <= 0 {
		return fmt.Errorf("ratelimit.window_seconds must be positive")
	}
	if c.SearchEnabled() && c.SearchIndex == "" {
		return fmt.Errorf("search.index is required when search.meili_host is set")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
