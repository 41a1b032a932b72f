// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
//
// Source bindings (spreadsheet → remote list pairings) are an ordered list and
// live in a separate YAML or TOML file; see LoadBindings.
package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// RemoteConfig holds the email-marketing API credentials.
type RemoteConfig struct {
	// APIKey is sent as the basic-auth username (required)
	APIKey string `env:"REMOTE_API_KEY" envAlt:"CM_API_KEY" required:"true"`

	// BaseURL is the API root without a trailing slash
	BaseURL string `env:"REMOTE_BASE_URL" default:"https://api.createsend.com/api/v3.2"`

	// Timeout bounds a single HTTP call to the API (default: 60s)
	Timeout time.Duration `env:"REMOTE_TIMEOUT" default:"60s"`
}

// SyncConfig holds batch synchronization settings.
type SyncConfig struct {
	// BindingsFile is the YAML or TOML file listing source bindings
	BindingsFile string `env:"BINDINGS_FILE" default:"bindings.yaml"`

	// BatchSize is the number of subscribers per import call (default: 1000)
	BatchSize int `env:"SYNC_BATCH_SIZE" default:"1000"`

	// PageSize is the member page size for paginated reads (default: 1000)
	PageSize int `env:"SYNC_PAGE_SIZE" default:"1000"`

	// BatchDelay is the minimum spacing between import calls (default: 200ms)
	BatchDelay time.Duration `env:"SYNC_BATCH_DELAY" default:"200ms"`

	// SkipUnsubscribed drops addresses already unsubscribed remotely before import (default: true)
	SkipUnsubscribed bool `env:"SYNC_SKIP_UNSUBSCRIBED" default:"true"`

	// Resubscribe is sent with every import batch (default: false)
	Resubscribe bool `env:"SYNC_RESUBSCRIBE" default:"false"`

	// Timeout is the maximum duration of one run (default: 2h)
	Timeout time.Duration `env:"SYNC_TIMEOUT" default:"2h"`

	// MaxConcurrent is the maximum number of runs in flight (default: 1)
	MaxConcurrent int `env:"SYNC_MAX_CONCURRENT" default:"1"`

	// MaxWait is how long a trigger waits for a run slot (default: 5s)
	MaxWait time.Duration `env:"SYNC_MAX_WAIT" default:"5s"`

	// RunRetention is how long finished runs stay queryable (default: 1h)
	RunRetention time.Duration `env:"SYNC_RUN_RETENTION" default:"1h"`
}

// ExportConfig holds invalid-records export settings.
type ExportConfig struct {
	// Dir is where the workbook is written (default: current directory)
	Dir string `env:"EXPORT_DIR" default:"."`

	// FileName is overwritten on every export (default: invalid_emails.xlsx)
	FileName string `env:"EXPORT_FILENAME" default:"invalid_emails.xlsx"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// AllowedOrigins is a comma-separated CORS origin list; empty disables CORS
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Path returns the full path of the invalid-records workbook.
func (c *ExportConfig) Path() string {
	return filepath.Join(c.Dir, c.FileName)
}
