// Package config loads console configuration from defaults, an optional
// config file, environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zerostick/agent-console/internal/logger"
)

// EnvPrefix prefixes every environment variable, e.g. AGENT_CONSOLE_AGENT_URL.
const EnvPrefix = "AGENT_CONSOLE"

// Config keys.
const (
	KeyAgentURL        = "agent_url"
	KeyListenAddr      = "listen_addr"
	KeyDiagnosticsSize = "diagnostics_size"
	KeyWriteWait       = "write_wait"
	KeyPongWait        = "pong_wait"
	KeyLogLevel        = "log.level"
	KeyLogPretty       = "log.pretty"
	KeyLogFile         = "log.file"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the console configuration.
type Config struct {
	// AgentURL is the agent WebSocket endpoint. Reconnects always target it.
	AgentURL string `mapstructure:"agent_url"`

	// ListenAddr is the address of the HTTP presentation adapter.
	ListenAddr string `mapstructure:"listen_addr"`

	// DiagnosticsSize bounds the discarded-frame ring.
	DiagnosticsSize int `mapstructure:"diagnostics_size"`

	WriteWait time.Duration `mapstructure:"write_wait"`
	PongWait  time.Duration `mapstructure:"pong_wait"`

	Log logger.Config `mapstructure:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AgentURL:        "ws://localhost:8000/ws",
		ListenAddr:      ":8080",
		DiagnosticsSize: 64,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		Log:             logger.DefaultConfig(),
	}
}

// Loader handles configuration loading.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a loader reading configPath, if non-empty. The file
// format follows the extension (json, yaml, toml).
func NewLoader(configPath string) *Loader {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault(KeyAgentURL, def.AgentURL)
	v.SetDefault(KeyListenAddr, def.ListenAddr)
	v.SetDefault(KeyDiagnosticsSize, def.DiagnosticsSize)
	v.SetDefault(KeyWriteWait, def.WriteWait)
	v.SetDefault(KeyPongWait, def.PongWait)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogPretty, def.Log.Pretty)
	v.SetDefault(KeyLogFile, def.Log.File)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// BindFlag lets a command-line flag override key when it is set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag to bind for %s", key)
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
	}
	return nil
}

// Load reads and validates the configuration. A missing config file is
// not an error; defaults and the environment still apply.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err == nil {
			l.v.SetConfigFile(l.configPath)
			if err := l.v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := ValidateAgentURL(c.AgentURL); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address cannot be empty", ErrInvalidConfig)
	}
	if c.DiagnosticsSize <= 0 {
		return fmt.Errorf("%w: diagnostics size must be positive, got %d", ErrInvalidConfig, c.DiagnosticsSize)
	}
	if c.WriteWait <= 0 || c.PongWait <= 0 {
		return fmt.Errorf("%w: write and pong waits must be positive", ErrInvalidConfig)
	}
	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
		}
	}
	return nil
}

// ValidateAgentURL checks that raw is an absolute ws or wss URL.
func ValidateAgentURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: agent URL cannot be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: agent URL: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: agent URL must use ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: agent URL has no host", ErrInvalidConfig)
	}
	return nil
}
