// ABOUTME: Configuration loading and parsing for fdc3-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/intents"
)

// Config represents the complete fdc3-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Directory DirectoryConfig `yaml:"directory" toml:"directory"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Agent     AgentConfig     `yaml:"agent" toml:"agent"`
	Client    ClientConfig    `yaml:"client" toml:"client"`
	Limits    LimitsConfig    `yaml:"limits" toml:"limits"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr        string   `yaml:"http_addr" toml:"http_addr" validate:"required"`
	GRPCAddr        string   `yaml:"grpc_addr" toml:"grpc_addr"` // empty disables the gRPC transport
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins"`
	MaxMessageBytes int64    `yaml:"max_message_bytes" toml:"max_message_bytes" validate:"gte=0"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// DirectoryConfig selects the App Directory. URL points at a remote
// directory service; File at a JSON array of app entries. Neither means an
// empty directory.
type DirectoryConfig struct {
	URL  string `yaml:"url" toml:"url" validate:"omitempty,url,excluded_with=File"`
	File string `yaml:"file" toml:"file"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// DatabaseConfig holds ledger database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" validate:"required"`
}

// AgentConfig holds broker behaviour
type AgentConfig struct {
	IntentResolution string   `yaml:"intent_resolution" toml:"intent_resolution" validate:"oneof=first round_robin"`
	OutboundBuffer   int      `yaml:"outbound_buffer" toml:"outbound_buffer" validate:"gte=1"`
	ReplyDedupeMax   int      `yaml:"reply_dedupe_max" toml:"reply_dedupe_max" validate:"gte=1"`
	SystemChannels   []string `yaml:"system_channels" toml:"system_channels" validate:"dive,required"`

	ReplyDedupeTTL time.Duration `yaml:"-" toml:"-"`
	HandlerTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReplyDedupeTTLRaw string `yaml:"reply_dedupe_ttl" toml:"reply_dedupe_ttl"`
	HandlerTimeoutRaw string `yaml:"handler_timeout" toml:"handler_timeout"`
}

// ClientConfig holds defaults for the bundled client library
type ClientConfig struct {
	CallTimeout    time.Duration `yaml:"-" toml:"-"`
	CallTimeoutRaw string        `yaml:"call_timeout" toml:"call_timeout"`
}

// LimitsConfig bounds inbound traffic per connection. Zero disables the limit.
type LimitsConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" toml:"messages_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" toml:"burst" validate:"gte=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration that runs without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           "127.0.0.1:8080",
			GRPCAddr:           "127.0.0.1:50051",
			MaxMessageBytes:    1 << 20,
			ShutdownTimeoutRaw: "10s",
		},
		Directory: DirectoryConfig{
			TimeoutRaw: "5s",
		},
		Database: DatabaseConfig{
			Path: ":memory:",
		},
		Agent: AgentConfig{
			IntentResolution:  intents.PolicyFirst,
			OutboundBuffer:    64,
			ReplyDedupeMax:    10000,
			ReplyDedupeTTLRaw: "5m",
			HandlerTimeoutRaw: "30s",
		},
		Client: ClientConfig{
			CallTimeoutRaw: "30s",
		},
		Limits: LimitsConfig{
			MessagesPerSecond: 100,
			Burst:             200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Values
// missing from the file keep their Default. Environment variables in the
// format ${VAR_NAME} are expanded and duration strings are parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize parses duration strings and validates the result. Load calls
// it; callers building a Config by hand (e.g. from Default) must too.
func (c *Config) Finalize() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return err
	}

	seen := make(map[string]bool, len(c.Agent.SystemChannels))
	for _, id := range c.Agent.SystemChannels {
		if seen[id] {
			return fmt.Errorf("agent.system_channels: duplicate channel %q", id)
		}
		seen[id] = true
	}

	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"directory.timeout", c.Directory.Timeout},
		{"agent.reply_dedupe_ttl", c.Agent.ReplyDedupeTTL},
		{"agent.handler_timeout", c.Agent.HandlerTimeout},
		{"client.call_timeout", c.Client.CallTimeout},
	} {
		if d.val < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	if c.Agent.ReplyDedupeTTL == 0 {
		return fmt.Errorf("agent.reply_dedupe_ttl is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"directory timeout", cfg.Directory.TimeoutRaw, &cfg.Directory.Timeout},
		{"reply_dedupe_ttl", cfg.Agent.ReplyDedupeTTLRaw, &cfg.Agent.ReplyDedupeTTL},
		{"handler_timeout", cfg.Agent.HandlerTimeoutRaw, &cfg.Agent.HandlerTimeout},
		{"call_timeout", cfg.Client.CallTimeoutRaw, &cfg.Client.CallTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			*f.dst = 0
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Channels returns the system channels to create at start. Known ids keep
// their default display metadata; unknown ids are named after themselves.
// An empty list means the default set.
func (a AgentConfig) Channels() []fdc3.Channel {
	defaults := fdc3.DefaultSystemChannels()
	if len(a.SystemChannels) == 0 {
		return defaults
	}

	byID := make(map[string]fdc3.Channel, len(defaults))
	for _, ch := range defaults {
		byID[ch.ID] = ch
	}

	out := make([]fdc3.Channel, 0, len(a.SystemChannels))
	for _, id := range a.SystemChannels {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
			continue
		}
		out = append(out, fdc3.Channel{
			ID:              id,
			Type:            fdc3.ChannelTypeSystem,
			DisplayMetadata: &fdc3.DisplayMetadata{Name: id},
		})
	}
	return out
}

// Write saves cfg as YAML to path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
