package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	qerrors "github.com/vango-dev/queryguard/internal/errors"
	"github.com/vango-dev/queryguard/pkg/guard"
	"github.com/vango-dev/queryguard/pkg/permalink"
)

const (
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "QUERYGUARD"

	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Guard   GuardConfig   `mapstructure:"guard"`
	Links   LinksConfig   `mapstructure:"links"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	path string
}

// ServerConfig configures the HTTP and WebSocket server.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr"`

	// BaseURL is the page permalinks redirect to.
	BaseURL string `mapstructure:"base_url"`

	// AllowedOrigins lists origins accepted on the WebSocket endpoint.
	// Empty means same-origin only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// MaxSessions caps concurrent sessions. Zero means no limit.
	MaxSessions int `mapstructure:"max_sessions"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// PingInterval is how often the server pings idle sessions.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// GuardConfig holds the defaults used for every session guard.
type GuardConfig struct {
	UnknownPolicy string `mapstructure:"unknown_policy"`
	History       string `mapstructure:"history"`
}

// LinksConfig selects the permalink backend.
type LinksConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`

	// Format is text or json.
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.base_url", "http://localhost:8080/")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_sessions", 0)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.ping_interval", "30s")

	v.SetDefault("guard.unknown_policy", string(guard.Keep))
	v.SetDefault("guard.history", string(guard.HistoryReplace))

	v.SetDefault("links.backend", permalink.BackendMemory)
	v.SetDefault("links.path", "")
	v.SetDefault("links.bucket", "")
	v.SetDefault("links.prefix", "links/")
	v.SetDefault("links.region", "")
	v.SetDefault("links.endpoint", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "queryguard")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns the default configuration.
func New() *Config {
	cfg, err := load(viper.New(), "")
	if err != nil {
		// Defaults are static and always decode.
		panic(err)
	}
	return cfg
}

// Load reads the configuration. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				return nil, qerrors.New("Q100").
					WithDetail("No config file at " + path).
					WithSuggestion("Omit --config to run with defaults")
			}
			return nil, qerrors.New("Q100").
				WithDetail("Failed to parse " + path).
				Wrap(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, qerrors.New("Q100").Wrap(err)
	}
	cfg.path = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return qerrors.New("Q100").WithDetail(fmt.Sprintf(format, args...))
	}

	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	if _, err := url.Parse(c.Server.BaseURL); err != nil {
		return invalid("server.base_url: %v", err)
	}
	if c.Server.MaxSessions < 0 {
		return invalid("server.max_sessions must not be negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout must be positive")
	}

	switch guard.UnknownPolicy(c.Guard.UnknownPolicy) {
	case guard.Keep, guard.Drop:
	default:
		return invalid("guard.unknown_policy must be keep or drop, got %q", c.Guard.UnknownPolicy)
	}
	switch guard.HistoryMode(c.Guard.History) {
	case guard.HistoryReplace, guard.HistoryPush:
	default:
		return invalid("guard.history must be replace or push, got %q", c.Guard.History)
	}

	switch c.Links.Backend {
	case permalink.BackendMemory:
	case permalink.BackendSQLite, permalink.BackendBadger:
		if c.Links.Path == "" {
			return invalid("links.path is required for the %s backend", c.Links.Backend)
		}
	case permalink.BackendS3:
		if c.Links.Bucket == "" {
			return invalid("links.bucket is required for the s3 backend")
		}
	default:
		return invalid("unknown links.backend %q", c.Links.Backend)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Permalink returns the permalink store configuration.
func (c *Config) Permalink() permalink.Config {
	return permalink.Config{
		Backend:  c.Links.Backend,
		Path:     c.Links.Path,
		Bucket:   c.Links.Bucket,
		Prefix:   c.Links.Prefix,
		Region:   c.Links.Region,
		Endpoint: c.Links.Endpoint,
	}
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}
