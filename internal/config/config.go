package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
// (publish.socket_name -> PANEBUS_PUBLISH_SOCKET_NAME).
const EnvPrefix = "PANEBUS"

// Config represents the complete panebus configuration
type Config struct {
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// PublishConfig controls the connection to the event bus
type PublishConfig struct {
	// ZMQ enables publishing (default: true)
	ZMQ bool `mapstructure:"zmq" yaml:"zmq"`
	// SocketName selects a named socket in the per-user socket directory (default: "default")
	SocketName string `mapstructure:"socket_name" yaml:"socket_name"`
	// SocketPath is an explicit socket file; it takes precedence over SocketName
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	// LingerMs is how long closing waits for unsent data (default: 1000)
	LingerMs int `mapstructure:"linger_ms" yaml:"linger_ms"`
	// SettleMs is the pause after connecting before the first send (default: 100)
	SettleMs int `mapstructure:"settle_ms" yaml:"settle_ms"`
	// Include limits forwarded events to types matching these globs; empty forwards all
	Include []string `mapstructure:"include" yaml:"include"`
}

// SourceConfig overrides the source metadata attached to every event.
// Empty session fields are detected from the surrounding tmux client.
type SourceConfig struct {
	Script      string `mapstructure:"script" yaml:"script"`
	SessionID   string `mapstructure:"session_id" yaml:"session_id"`
	SessionName string `mapstructure:"session_name" yaml:"session_name"`
}

// WatchConfig controls the session watcher
type WatchConfig struct {
	// TmuxSocket selects the tmux server: "" for the default server, a name, or a path
	TmuxSocket string `mapstructure:"tmux_socket" yaml:"tmux_socket"`
	// IntervalMs is the poll period (default: 1000)
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	// EmitInitial reports sessions that exist at startup as created
	EmitInitial bool `mapstructure:"emit_initial" yaml:"emit_initial"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds panebus.log; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Publish: PublishConfig{
			ZMQ:        true,
			SocketName: "default",
			LingerMs:   1000,
			SettleMs:   100,
			Include:    []string{},
		},
		Source: SourceConfig{
			Script: "panebus",
		},
		Watch: WatchConfig{
			IntervalMs: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Linger returns the linger period as a time.Duration
func (c *PublishConfig) Linger() time.Duration {
	return time.Duration(c.LingerMs) * time.Millisecond
}

// SettleDelay returns the settle delay as a time.Duration
func (c *PublishConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// Interval returns the poll period as a time.Duration
func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Publish defaults
	viper.SetDefault("publish.zmq", defaults.Publish.ZMQ)
	viper.SetDefault("publish.socket_name", defaults.Publish.SocketName)
	viper.SetDefault("publish.socket_path", defaults.Publish.SocketPath)
	viper.SetDefault("publish.linger_ms", defaults.Publish.LingerMs)
	viper.SetDefault("publish.settle_ms", defaults.Publish.SettleMs)
	viper.SetDefault("publish.include", defaults.Publish.Include)

	// Source defaults
	viper.SetDefault("source.script", defaults.Source.Script)
	viper.SetDefault("source.session_id", defaults.Source.SessionID)
	viper.SetDefault("source.session_name", defaults.Source.SessionName)

	// Watch defaults
	viper.SetDefault("watch.tmux_socket", defaults.Watch.TmuxSocket)
	viper.SetDefault("watch.interval_ms", defaults.Watch.IntervalMs)
	viper.SetDefault("watch.emit_initial", defaults.Watch.EmitInitial)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// BindEnv makes every configuration key overridable from the environment
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "panebus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".panebus"
	}
	return filepath.Join(home, ".config", "panebus")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
