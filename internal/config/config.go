// Package config loads the dispatch configuration from a YAML file and
// DISPATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store and fleet drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// Classifier providers.
const (
	ProviderKeyword = "keyword"
	ProviderLLM     = "llm"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Fleet      FleetConfig      `yaml:"fleet"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Engine     EngineConfig     `yaml:"engine"`
	Events     EventsConfig     `yaml:"events"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	// MCPAddress also serves the MCP tools over SSE when set.
	MCPAddress string `yaml:"mcp_address"`
}

// StoreConfig selects where sessions live.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// DSN is the database DSN for SQL stores, or the directory for the file store.
	DSN string `yaml:"dsn"`
	// Redis settings, used when Driver is redis.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	// EncryptionKey is a base64 AES key; when set, session payloads are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key"`
	// FallbackKeys are retired keys still accepted for decryption.
	FallbackKeys []string `yaml:"fallback_keys"`
	// RedactResults lists regexps of result keys masked before storage.
	RedactResults []string `yaml:"redact_results"`
}

// FleetConfig selects the directory and the reference action handlers.
type FleetConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Seed loads the demo fleet into an empty backend.
	Seed bool `yaml:"seed"`
}

type SessionsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	Retention     time.Duration `yaml:"retention"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type ClassifierConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	// Threshold is the confidence under which a request is treated as unclear.
	Threshold float64 `yaml:"threshold"`
	// PatternExtraction enables resolving targets from the raw text.
	PatternExtraction bool `yaml:"pattern_extraction"`
}

type EngineConfig struct {
	MaxSteps     int  `yaml:"max_steps"`
	StrictEdges  bool `yaml:"strict_edges"`
	SeatCapacity int  `yaml:"seat_capacity"`
}

// EventsConfig enables the action event publisher.
type EventsConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ValidationError reports an invalid setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path (optional), applies defaults and environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else {
		cfg.Fleet.Seed = true
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 64 << 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = "localhost:6379"
	}
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "dispatch:"
	}
	if c.Fleet.Driver == "" {
		c.Fleet.Driver = DriverMemory
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 15 * time.Minute
	}
	if c.Sessions.Retention == 0 {
		c.Sessions.Retention = 24 * time.Hour
	}
	if c.Sessions.LockTTL == 0 {
		c.Sessions.LockTTL = 10 * time.Second
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = time.Minute
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ProviderKeyword
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 10 * time.Second
	}
	if c.Classifier.Threshold == 0 {
		c.Classifier.Threshold = 0.6
	}
	if c.Engine.MaxSteps == 0 {
		c.Engine.MaxSteps = 32
	}
	if c.Engine.SeatCapacity == 0 {
		c.Engine.SeatCapacity = 40
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "dispatch.actions"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv overrides settings from DISPATCH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DISPATCH_SERVER_ADDRESS":      &c.Server.Address,
		"DISPATCH_MCP_ADDRESS":         &c.Server.MCPAddress,
		"DISPATCH_STORE_DRIVER":        &c.Store.Driver,
		"DISPATCH_STORE_DSN":           &c.Store.DSN,
		"DISPATCH_REDIS_ADDR":          &c.Store.RedisAddr,
		"DISPATCH_REDIS_PASSWORD":      &c.Store.RedisPassword,
		"DISPATCH_REDIS_PREFIX":        &c.Store.RedisPrefix,
		"DISPATCH_ENCRYPTION_KEY":      &c.Store.EncryptionKey,
		"DISPATCH_FLEET_DRIVER":        &c.Fleet.Driver,
		"DISPATCH_FLEET_DSN":           &c.Fleet.DSN,
		"DISPATCH_CLASSIFIER_PROVIDER": &c.Classifier.Provider,
		"DISPATCH_CLASSIFIER_MODEL":    &c.Classifier.Model,
		"DISPATCH_CLASSIFIER_BASE_URL": &c.Classifier.BaseURL,
		"DISPATCH_CLASSIFIER_API_KEY":  &c.Classifier.APIKey,
		"DISPATCH_EVENTS_URL":          &c.Events.URL,
		"DISPATCH_EVENTS_EXCHANGE":     &c.Events.Exchange,
		"DISPATCH_LOG_LEVEL":           &c.Log.Level,
		"DISPATCH_LOG_FORMAT":          &c.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"DISPATCH_SESSION_TTL":       &c.Sessions.TTL,
		"DISPATCH_SESSION_RETENTION": &c.Sessions.Retention,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return &ValidationError{Field: key, Reason: err.Error()}
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"DISPATCH_FLEET_SEED":          &c.Fleet.Seed,
		"DISPATCH_PATTERN_EXTRACTION":  &c.Classifier.PatternExtraction,
		"DISPATCH_ENGINE_STRICT_EDGES": &c.Engine.StrictEdges,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return &ValidationError{Field: key, Reason: err.Error()}
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not one of %s", value, strings.Join(allowed, ", "))})
	}
	oneOf("store.driver", c.Store.Driver, DriverMemory, DriverFile, DriverRedis, DriverMySQL, DriverSQLite)
	oneOf("fleet.driver", c.Fleet.Driver, DriverMemory, DriverMySQL, DriverSQLite)
	oneOf("classifier.provider", c.Classifier.Provider, ProviderKeyword, ProviderLLM)
	oneOf("log.format", c.Log.Format, "text", "json")

	if (c.Store.Driver == DriverMySQL || c.Store.Driver == DriverSQLite) && c.Store.DSN == "" {
		errs = append(errs, &ValidationError{Field: "store.dsn", Reason: "required for SQL stores"})
	}
	if c.Fleet.Driver != DriverMemory && c.Fleet.DSN == "" {
		errs = append(errs, &ValidationError{Field: "fleet.dsn", Reason: "required for SQL fleets"})
	}
	if c.Classifier.Provider == ProviderLLM && c.Classifier.APIKey == "" && c.Classifier.BaseURL == "" {
		errs = append(errs, &ValidationError{Field: "classifier.api_key", Reason: "required for the llm provider"})
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		errs = append(errs, &ValidationError{Field: "classifier.threshold", Reason: "must be between 0 and 1"})
	}
	if c.Engine.MaxSteps < 1 {
		errs = append(errs, &ValidationError{Field: "engine.max_steps", Reason: "must be positive"})
	}
	return errors.Join(errs...)
}
