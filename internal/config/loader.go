package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load reads configuration from the process environment, applies
// defaults and validates the result. An empty variable counts as unset.
// Every unparsable or missing variable is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}

	v := viper.New()
	if err := errors.Join(fill(v, reflect.ValueOf(cfg).Elem(), "")...); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envTag is the parsed form of a field's env, envAlt, default and
// required tags.
type envTag struct {
	names    []string
	fallback string
	required bool
}

func parseEnvTag(f reflect.StructField) (envTag, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envTag{}, false
	}
	tag := envTag{
		names:    []string{name},
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		tag.names = append(tag.names, alt)
	}
	return tag, true
}

// bind registers the field under key: its variables in precedence order
// and its default.
func (t envTag) bind(v *viper.Viper, key string) error {
	if err := v.BindEnv(append([]string{key}, t.names...)...); err != nil {
		return fmt.Errorf("%s: %w", t.names[0], err)
	}
	if t.fallback != "" {
		v.SetDefault(key, t.fallback)
	}
	return nil
}

// fill walks the section structs and sets every tagged field. Keys are
// the dotted field path, e.g. "sync.batchdelay".
func fill(v *viper.Viper, rv reflect.Value, prefix string) []error {
	var errs []error
	for i := 0; i < rv.NumField(); i++ {
		f, fv := rv.Type().Field(i), rv.Field(i)
		if !fv.CanSet() {
			continue
		}
		key := prefix + strings.ToLower(f.Name)
		if f.Type.Kind() == reflect.Struct {
			errs = append(errs, fill(v, fv, key+".")...)
			continue
		}

		tag, ok := parseEnvTag(f)
		if !ok {
			continue
		}
		if err := tag.bind(v, key); err != nil {
			errs = append(errs, err)
			continue
		}
		raw := v.GetString(key)
		if raw == "" {
			if tag.required {
				errs = append(errs, fmt.Errorf("%s is required but not set", strings.Join(tag.names, " or ")))
			}
			continue
		}

		parse, ok := parsers[f.Type]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unsupported field type %s", tag.names[0], f.Type))
			continue
		}
		val, err := parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", tag.names[0], raw, err))
			continue
		}
		fv.Set(reflect.ValueOf(val).Convert(f.Type))
	}
	return errs
}

// parsers converts raw variable text into each supported field type.
var parsers = map[reflect.Type]func(string) (any, error){
	reflect.TypeFor[string]():        func(s string) (any, error) { return s, nil },
	reflect.TypeFor[int]():           func(s string) (any, error) { return strconv.Atoi(s) },
	reflect.TypeFor[bool]():          func(s string) (any, error) { return strconv.ParseBool(s) },
	reflect.TypeFor[time.Duration](): func(s string) (any, error) { return time.ParseDuration(s) },
	reflect.TypeFor[[]string]():      func(s string) (any, error) { return splitList(s), nil },
}

// splitList reads a comma-separated list, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Remote validation
	if c.Remote.APIKey == "" {
		errs = append(errs, "REMOTE_API_KEY is required")
	}
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("REMOTE_BASE_URL (%q) must be an absolute URL", c.Remote.BaseURL))
	}
	if c.Remote.Timeout <= 0 {
		errs = append(errs, "REMOTE_TIMEOUT must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Sync validation
	if strings.TrimSpace(c.Sync.BindingsFile) == "" {
		errs = append(errs, "BINDINGS_FILE is required")
	}
	if c.Sync.BatchSize <= 0 || c.Sync.BatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("SYNC_BATCH_SIZE (%d) must be 1-1000", c.Sync.BatchSize))
	}
	if c.Sync.PageSize < 10 || c.Sync.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("SYNC_PAGE_SIZE (%d) must be 10-1000", c.Sync.PageSize))
	}
	if c.Sync.BatchDelay < 0 {
		errs = append(errs, "SYNC_BATCH_DELAY must be non-negative")
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, "SYNC_TIMEOUT must be positive")
	}
	if c.Sync.MaxConcurrent <= 0 {
		errs = append(errs, "SYNC_MAX_CONCURRENT must be positive")
	}
	if c.Sync.MaxWait <= 0 {
		errs = append(errs, "SYNC_MAX_WAIT must be positive")
	}
	if c.Sync.RunRetention <= 0 {
		errs = append(errs, "SYNC_RUN_RETENTION must be positive")
	}

	// Export validation
	if c.Export.FileName == "" || filepath.Base(c.Export.FileName) != c.Export.FileName {
		errs = append(errs, fmt.Sprintf("EXPORT_FILENAME (%q) must be a plain file name", c.Export.FileName))
	}
	if !strings.EqualFold(filepath.Ext(c.Export.FileName), ".xlsx") {
		errs = append(errs, "EXPORT_FILENAME must end in .xlsx")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The remote API key is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Remote: {BaseURL: %q, APIKey: [MASKED]}, ", c.Remote.BaseURL)
	fmt.Fprintf(&b, "Sync: {BindingsFile: %q, BatchSize: %d, PageSize: %d, BatchDelay: %s, SkipUnsubscribed: %v}, ",
		c.Sync.BindingsFile, c.Sync.BatchSize, c.Sync.PageSize, c.Sync.BatchDelay, c.Sync.SkipUnsubscribed)
	fmt.Fprintf(&b, "Export: {Path: %q}, ", c.Export.Path())
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
