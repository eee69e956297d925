package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/turboresource/internal/errors"
)

const (
	// DefaultAddr is the default inspector listen address.
	DefaultAddr = ":7070"

	// DefaultTTL is the default cache entry lifetime.
	DefaultTTL = "1m"

	// DefaultFocusInterval is the default focus throttle window.
	DefaultFocusInterval = "5s"

	// DefaultHTTPTimeout is the default origin request timeout.
	DefaultHTTPTimeout = "10s"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "turbo"
)

// Fetcher kinds.
const (
	FetcherStatic = "static"
	FetcherHTTP   = "http"
	FetcherS3     = "s3"
)

// FileNames are the config files Load looks for, in order.
var FileNames = []string{"turbo.json", "turbo.yaml", "turbo.yml"}

// Config is the complete turbo configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Binding BindingConfig `json:"binding" yaml:"binding"`
	Fetcher FetcherConfig `json:"fetcher" yaml:"fetcher"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig configures the inspector server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Key is the key bound at startup. Empty means no key.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// AllowedOrigins lists browser origins allowed by CORS. Empty allows any.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// CacheConfig configures the memory cache.
type CacheConfig struct {
	// TTL is how long a fetched or mutated entry stays fresh.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// BindingConfig configures the resource binding.
type BindingConfig struct {
	RefetchOnFocus   bool   `json:"refetchOnFocus" yaml:"refetchOnFocus"`
	RefetchOnConnect bool   `json:"refetchOnConnect" yaml:"refetchOnConnect"`
	FocusInterval    string `json:"focusInterval,omitempty" yaml:"focusInterval,omitempty"`

	// Transition wraps commits in host transitions.
	Transition bool `json:"transition" yaml:"transition"`
}

// FetcherConfig selects and configures the origin loader.
type FetcherConfig struct {
	// Kind is static, http or s3.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	Static map[string]any    `json:"static,omitempty" yaml:"static,omitempty"`
	HTTP   HTTPFetcherConfig `json:"http,omitempty" yaml:"http,omitempty"`
	S3     S3FetcherConfig   `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// HTTPFetcherConfig configures the HTTP origin.
type HTTPFetcherConfig struct {
	BaseURL string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Timeout string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// S3FetcherConfig configures the object storage origin.
type S3FetcherConfig struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the service endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// PathStyle addresses buckets as endpoint/bucket.
	PathStyle bool `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{Addr: DefaultAddr},
		Log:    LogConfig{Level: "info", Format: "text"},
		Cache:  CacheConfig{TTL: DefaultTTL},
		Binding: BindingConfig{
			RefetchOnFocus:   true,
			RefetchOnConnect: true,
			FocusInterval:    DefaultFocusInterval,
			Transition:       true,
		},
		Fetcher: FetcherConfig{
			Kind: FetcherStatic,
			HTTP: HTTPFetcherConfig{Timeout: DefaultHTTPTimeout},
		},
		Metrics: MetricsConfig{Namespace: DefaultNamespace},
	}
}

// Find returns the first config file present in dir.
func Find(dir string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// Load reads configuration from the specified directory.
func Load(dir string) (*Config, error) {
	path, ok := Find(dir)
	if !ok {
		return nil, errors.New("T001").
			WithDetail("No turbo.json, turbo.yaml or turbo.yml found in " + dir).
			WithSuggestion("Create turbo.json or pass --config")
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path. The format
// follows the extension; anything but .yaml and .yml is read as JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("T001").WithSource(path).Wrap(err)
	}

	cfg := New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("T002").
			WithSource(path).
			WithSuggestion("Check the file for syntax errors").
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = DefaultTTL
	}
	if c.Binding.FocusInterval == "" {
		c.Binding.FocusInterval = DefaultFocusInterval
	}
	if c.Fetcher.Kind == "" {
		c.Fetcher.Kind = FetcherStatic
	}
	if c.Fetcher.HTTP.Timeout == "" {
		c.Fetcher.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	durations := []struct {
		field string
		value string
	}{
		{"cache.ttl", c.Cache.TTL},
		{"binding.focusInterval", c.Binding.FocusInterval},
		{"fetcher.http.timeout", c.Fetcher.HTTP.Timeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value); err != nil {
			return err
		}
	}

	switch c.Fetcher.Kind {
	case FetcherStatic:
	case FetcherHTTP:
		if c.Fetcher.HTTP.BaseURL == "" {
			return errors.New("T005").
				WithSource("fetcher.http.baseURL").
				WithSuggestion("Set fetcher.http.baseURL or TURBO_HTTP_BASE_URL")
		}
	case FetcherS3:
		if c.Fetcher.S3.Bucket == "" {
			return errors.New("T005").
				WithSource("fetcher.s3.bucket").
				WithSuggestion("Set fetcher.s3.bucket or TURBO_S3_BUCKET")
		}
	default:
		return errors.New("T004").WithSource("fetcher.kind: " + c.Fetcher.Kind)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("T006").WithSource("log.format: " + c.Log.Format)
	}
	return nil
}

// TTL returns the parsed cache TTL.
func (c *Config) TTL() time.Duration {
	d, _ := parseDuration("cache.ttl", c.Cache.TTL)
	return d
}

// FocusInterval returns the parsed focus throttle window.
func (c *Config) FocusInterval() time.Duration {
	d, _ := parseDuration("binding.focusInterval", c.Binding.FocusInterval)
	return d
}

// HTTPTimeout returns the parsed origin request timeout.
func (c *Config) HTTPTimeout() time.Duration {
	d, _ := parseDuration("fetcher.http.timeout", c.Fetcher.HTTP.Timeout)
	return d
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, errors.New("T006").WithSource("log.level: " + c.Log.Level).Wrap(err)
	}
	return level, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("T003").WithSource(field).Wrap(err)
	}
	if d < 0 {
		return 0, errors.New("T003").
			WithSource(field).
			WithDetail("Durations must not be negative.")
	}
	return d, nil
}
