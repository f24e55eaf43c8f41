package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default publish config
	if !cfg.Publish.ZMQ {
		t.Error("Publish.ZMQ should be true by default")
	}
	if cfg.Publish.SocketName != "default" {
		t.Errorf("Publish.SocketName = %q, want %q", cfg.Publish.SocketName, "default")
	}
	if cfg.Publish.SocketPath != "" {
		t.Errorf("Publish.SocketPath = %q, want empty", cfg.Publish.SocketPath)
	}
	if cfg.Publish.LingerMs != 1000 {
		t.Errorf("Publish.LingerMs = %d, want 1000", cfg.Publish.LingerMs)
	}
	if cfg.Publish.SettleMs != 100 {
		t.Errorf("Publish.SettleMs = %d, want 100", cfg.Publish.SettleMs)
	}
	if len(cfg.Publish.Include) != 0 {
		t.Errorf("Publish.Include should be empty, got %v", cfg.Publish.Include)
	}

	// Verify default source config
	if cfg.Source.Script != "panebus" {
		t.Errorf("Source.Script = %q, want %q", cfg.Source.Script, "panebus")
	}

	// Verify default watch config
	if cfg.Watch.IntervalMs != 1000 {
		t.Errorf("Watch.IntervalMs = %d, want 1000", cfg.Watch.IntervalMs)
	}
	if cfg.Watch.EmitInitial {
		t.Error("Watch.EmitInitial should be false by default")
	}

	// Verify default logging config
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()

	if got := cfg.Publish.Linger(); got != time.Second {
		t.Errorf("Linger() = %v, want 1s", got)
	}
	if got := cfg.Publish.SettleDelay(); got != 100*time.Millisecond {
		t.Errorf("SettleDelay() = %v, want 100ms", got)
	}
	if got := cfg.Watch.Interval(); got != time.Second {
		t.Errorf("Interval() = %v, want 1s", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/panebus"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "panebus")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/panebus/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Publish.SocketName != "default" {
		t.Errorf("Get().Publish.SocketName = %q, want %q", cfg.Publish.SocketName, "default")
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `publish:
  socket_path: /run/user/1000/bus.sock
  include:
    - "session.*"
watch:
  interval_ms: 250
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Publish.SocketPath != "/run/user/1000/bus.sock" {
		t.Errorf("Publish.SocketPath = %q", cfg.Publish.SocketPath)
	}
	if len(cfg.Publish.Include) != 1 || cfg.Publish.Include[0] != "session.*" {
		t.Errorf("Publish.Include = %v", cfg.Publish.Include)
	}
	if cfg.Watch.IntervalMs != 250 {
		t.Errorf("Watch.IntervalMs = %d, want 250", cfg.Watch.IntervalMs)
	}
	// Unset keys keep their defaults
	if !cfg.Publish.ZMQ {
		t.Error("Publish.ZMQ should keep its default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	BindEnv()

	t.Setenv("PANEBUS_PUBLISH_ZMQ", "false")
	t.Setenv("PANEBUS_PUBLISH_SOCKET_NAME", "work")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Publish.ZMQ {
		t.Error("PANEBUS_PUBLISH_ZMQ=false should disable publishing")
	}
	if cfg.Publish.SocketName != "work" {
		t.Errorf("Publish.SocketName = %q, want %q", cfg.Publish.SocketName, "work")
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("watch.interval_ms", 1)

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 1 || errs[0].Field != "watch.interval_ms" {
		t.Errorf("errors = %v", errs)
	}

	// Get falls back to defaults
	if cfg := Get(); cfg.Watch.IntervalMs != 1000 {
		t.Errorf("Get().Watch.IntervalMs = %d, want default 1000", cfg.Watch.IntervalMs)
	}
}
