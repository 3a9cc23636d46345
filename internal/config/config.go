// Package config loads and validates service configuration from file and
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/versolabs/verso/internal/llm"
)

// Validation errors.
var (
	ErrDatabaseURLRequired = errors.New("config: database url is required")
	ErrNoProviders         = errors.New("config: at least one provider credential is required")
	ErrDefaultModel        = errors.New("config: llm default provider and model are required")
	ErrPresetName          = errors.New("config: every preset needs a unique name")
)

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds PostgreSQL settings.
type Database struct {
	URL string `mapstructure:"url"`
}

// Log holds logging settings. Level is a string so it reads naturally
// from YAML and environment variables.
type Log struct {
	Level     string `mapstructure:"level"`
	JSON      bool   `mapstructure:"json"`
	AddSource bool   `mapstructure:"add_source"`
}

// SlogLevel parses the configured level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Gemini holds Gemini API credentials.
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
}

// OVHAI holds OVH AI Endpoints credentials.
type OVHAI struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// Providers groups provider credential blocks.
type Providers struct {
	Gemini Gemini `mapstructure:"gemini"`
	OVHAI  OVHAI  `mapstructure:"ovhai"`
}

// Encryption holds the at-rest message encryption settings.
type Encryption struct {
	Passphrase string `mapstructure:"passphrase"` // empty disables encryption
}

// Debug holds debug-trace retention settings.
type Debug struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Telemetry holds OpenTelemetry export settings.
type Telemetry struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// RateLimit holds per-client request limits.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Chat holds orchestration bounds.
type Chat struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	MaxToolTurns    int           `mapstructure:"max_tool_turns"`
}

// Config is the complete service configuration.
type Config struct {
	Server     Server            `mapstructure:"server"`
	Database   Database          `mapstructure:"database"`
	Log        Log               `mapstructure:"log"`
	Providers  Providers         `mapstructure:"providers"`
	LLM        llm.Defaults      `mapstructure:"llm"`
	Presets    []llm.Preset      `mapstructure:"presets"`
	Personas   map[string]string `mapstructure:"personas"`
	Encryption Encryption        `mapstructure:"encryption"`
	Debug      Debug             `mapstructure:"debug"`
	Telemetry  Telemetry         `mapstructure:"telemetry"`
	RateLimit  RateLimit         `mapstructure:"rate_limit"`
	Chat       Chat              `mapstructure:"chat"`
}

// Load reads configuration from the given file (optional), environment
// variables prefixed VERSO_, and built-in defaults, in that order of
// increasing precedence for env over file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("VERSO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/verso")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.streaming", true)
	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.ttl", 24*time.Hour)
	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("chat.provider_timeout", 2*time.Minute)
	v.SetDefault("chat.max_tool_turns", 5)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return ErrDatabaseURLRequired
	}
	if c.Providers.Gemini.APIKey == "" && c.Providers.OVHAI.APIKey == "" {
		return ErrNoProviders
	}
	if c.LLM.Provider == "" || c.LLM.Model == "" {
		return ErrDefaultModel
	}

	seen := make(map[string]bool, len(c.Presets))
	for _, preset := range c.Presets {
		if preset.Name == "" || seen[preset.Name] {
			return fmt.Errorf("%w: %q", ErrPresetName, preset.Name)
		}
		seen[preset.Name] = true
	}
	return nil
}

// PresetMap indexes presets by name.
func (c *Config) PresetMap() map[string]llm.Preset {
	out := make(map[string]llm.Preset, len(c.Presets))
	for _, preset := range c.Presets {
		out[preset.Name] = preset
	}
	return out
}

// Redacted returns a loggable copy with credentials masked.
func (c Config) Redacted() Config {
	cp := c
	cp.Providers.Gemini.APIKey = mask(c.Providers.Gemini.APIKey)
	cp.Providers.OVHAI.APIKey = mask(c.Providers.OVHAI.APIKey)
	cp.Encryption.Passphrase = mask(c.Encryption.Passphrase)
	cp.Database.URL = maskURL(c.Database.URL)
	return cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// maskURL hides the userinfo section of a connection URL.
func maskURL(s string) string {
	at := strings.LastIndex(s, "@")
	scheme := strings.Index(s, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return s
	}
	return s[:scheme+3] + "****" + s[at:]
}
