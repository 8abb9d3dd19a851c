package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// envField is the env binding parsed from one struct field's tags.
type envField struct {
	name     string
	alt      string
	fallback string
	required bool
}

func parseEnvField(f reflect.StructField) (envField, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envField{}, false
	}
	return envField{
		name:     name,
		alt:      f.Tag.Get("envAlt"),
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}, true
}

// value resolves the field from the primary variable, then the alternate,
// then the default. Whitespace-only values count as unset.
func (e envField) value() (string, bool, error) {
	for _, key := range []string{e.name, e.alt} {
		if key == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, true, nil
		}
	}
	if e.required {
		return "", false, fmt.Errorf("required environment variable %s is not set", e.name)
	}
	return e.fallback, e.fallback != "", nil
}

// loadStruct fills tagged fields of v from the environment, descending into
// the nested section structs.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := loadStruct(fv); err != nil {
				return err
			}
			continue
		}

		ef, ok := parseEnvField(sf)
		if !ok {
			continue
		}
		raw, set, err := ef.value()
		if err != nil {
			return err
		}
		if !set {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", ef.name, raw, err)
		}
	}

	return nil
}

// setField parses raw into field according to the field's type. Durations
// use time.ParseDuration and string slices are comma separated lists with
// blank entries dropped.
func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem())
		}
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// splitList splits a comma separated list, trimming entries and dropping
// empty ones.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
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

	// Tracking validation
	if u, err := url.Parse(c.Tracking.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("TRACKING_API_URL (%q) must be an absolute http(s) URL", c.Tracking.APIURL))
	}
	if !strings.HasPrefix(c.Tracking.Path, "/") {
		errs = append(errs, "TRACKING_PATH must start with /")
	}
	if c.Tracking.Timeout <= 0 {
		errs = append(errs, "TRACKING_TIMEOUT must be positive")
	}
	if c.Tracking.MaxRetries < 0 {
		errs = append(errs, "TRACKING_MAX_RETRIES must be non-negative")
	}
	if c.Tracking.MaxConcurrentRuns <= 0 {
		errs = append(errs, "TRACKING_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Tracking.MaxWaitTime <= 0 {
		errs = append(errs, "TRACKING_MAX_WAIT_TIME must be positive")
	}

	// Ingest validation
	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, "INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.MatchMode == "" {
		errs = append(errs, "INGEST_MATCH_MODE must not be empty")
	}
	if c.Ingest.HeaderSearchRows <= 0 {
		errs = append(errs, "INGEST_HEADER_SEARCH_ROWS must be positive")
	}
	if c.Ingest.SessionTTL <= 0 {
		errs = append(errs, "INGEST_SESSION_TTL must be positive")
	}

	// Database validation (only when persistence is enabled)
	if c.Database.URL != "" {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Events validation
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		errs = append(errs, "KAFKA_TOPIC is required when KAFKA_BROKERS is set")
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
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Tracking: {APIURL: %q, Timeout: %s, MaxRetries: %d, MaxConcurrentRuns: %d}, ",
		c.Tracking.APIURL, c.Tracking.Timeout, c.Tracking.MaxRetries, c.Tracking.MaxConcurrentRuns)
	fmt.Fprintf(&b, "Ingest: {MaxFileSize: %d, MatchMode: %q}, ", c.Ingest.MaxFileSize, c.Ingest.MatchMode)
	if c.Database.URL != "" {
		fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d}, ", c.Database.MaxConns)
	} else {
		b.WriteString("Database: {URL: <memory>}, ")
	}
	fmt.Fprintf(&b, "Events: {Brokers: %d, Topic: %q}, ", len(c.Events.Brokers), c.Events.Topic)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
