package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/evetools/fleetmeter/internal/core/constants"
)

// envPrefix namespaces the environment overrides, e.g.
// FLEETMETER_WINDOW_SECONDS=10.
const envPrefix = "FLEETMETER_"

// Config is the resolved runtime configuration. Precedence is
// environment > config file > defaults.
type Config struct {
	// GamelogDir is the directory holding the game's chat/combat logs.
	GamelogDir string `koanf:"gamelog_dir"`

	// WindowSeconds is the trailing aggregation window length.
	WindowSeconds int `koanf:"window_seconds"`

	// TickMillis is the sampling cadence of the live and replay loops.
	TickMillis int `koanf:"tick_millis"`

	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`
}

func defaultConfig() Config {
	return Config{
		GamelogDir:    defaultGamelogDir(),
		WindowSeconds: int(constants.DefaultWindow / time.Second),
		TickMillis:    int(constants.TickInterval / time.Millisecond),
		LogLevel:      "info",
		LogFile:       "",
	}
}

// defaultGamelogDir is the game client's documents path for the current
// platform; empty when home cannot be resolved, forcing an explicit flag.
func defaultGamelogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "Documents", "EVE", "logs", "Gamelogs")
	}
	return filepath.Join(home, "EVE", "logs", "Gamelogs")
}

// Load resolves the configuration: struct defaults, then the YAML file
// at path (skipped when empty or missing), then FLEETMETER_* environment
// variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window_seconds must be positive, got %d", c.WindowSeconds)
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("tick_millis must be positive, got %d", c.TickMillis)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Window returns the aggregation window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// Tick returns the sampling cadence as a duration.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}
