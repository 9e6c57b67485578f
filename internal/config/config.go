// Package config loads control-plane settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Session   SessionConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port string `envconfig:"PORT" default:"8080"`
	// PublicURL is where browsers and operators reach this server
	PublicURL   string `envconfig:"PUBLIC_URL" default:"http://127.0.0.1:8080"`
	OperatorKey string `envconfig:"OPERATOR_KEY"`
	// ViewerPath is the operator UI a bind URL redirects to
	ViewerPath      string        `envconfig:"VIEWER_PATH" default:"/viewer"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// BrowserConfig selects and tunes the browser launcher.
type BrowserConfig struct {
	Mode           string   `envconfig:"BROWSER_MODE" default:"local"`
	ExecPath       string   `envconfig:"BROWSER_EXEC_PATH"`
	Image          string   `envconfig:"BROWSER_IMAGE" default:"chromedp/headless-shell:latest"`
	DataDir        string   `envconfig:"BROWSER_DATA_DIR" default:"./storage/userdata"`
	ViewportWidth  int      `envconfig:"VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight int      `envconfig:"VIEWPORT_HEIGHT" default:"800"`
	TargetURLs     []string `envconfig:"TARGET_URLS"`
	AuthHosts      []string `envconfig:"AUTH_HOSTS"`
}

// SessionConfig holds session lifecycle limits.
type SessionConfig struct {
	LaunchTimeout     time.Duration `envconfig:"LAUNCH_TIMEOUT" default:"45s"`
	NavigationTimeout time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"15s"`
	MaxAge            time.Duration `envconfig:"SESSION_MAX_AGE" default:"2h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"5m"`
	MaxPerCampaign    int64         `envconfig:"MAX_SESSIONS_PER_CAMPAIGN" default:"10"`
}

// StorageConfig holds durable storage locations.
type StorageConfig struct {
	// SQLitePath empty keeps records in memory only
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./storage/control.db"`
	ProfileDir string `envconfig:"PROFILE_DIR" default:"./storage/profiles"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int  `envconfig:"RATE_LIMIT_RPM" default:"600"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"60"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	// a missing .env is fine; system environment still applies
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the control plane cannot run with.
func (c *Config) Validate() error {
	switch c.Browser.Mode {
	case "local", "docker":
	default:
		return fmt.Errorf("BROWSER_MODE must be local or docker, got %q", c.Browser.Mode)
	}
	if c.Session.MaxPerCampaign < 1 {
		return fmt.Errorf("MAX_SESSIONS_PER_CAMPAIGN must be positive")
	}
	if c.Session.CleanupInterval <= 0 || c.Session.MaxAge <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL and SESSION_MAX_AGE must be positive")
	}
	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
