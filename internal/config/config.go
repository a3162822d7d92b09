// Package config loads the bot configuration from a YAML file. The retention
// horizon, sweep interval, and reaction policy are configuration on purpose:
// the reconciliation core never hardcodes them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okroshka/karmabot/internal/policy"
)

const defaultConfigFile = "karmabot.yaml"

// Duration wraps time.Duration so YAML values can be written as "90s", "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Server struct {
		Addr       string `yaml:"addr"`
		SocketPath string `yaml:"socket_path"`
	} `yaml:"server"`
	Telegram struct {
		Token              string `yaml:"token"`
		PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	} `yaml:"telegram"`
	Retention struct {
		Horizon       Duration `yaml:"horizon"`
		SweepInterval Duration `yaml:"sweep_interval"`
		BatchSize     int      `yaml:"batch_size"`
	} `yaml:"retention"`
	Throttle struct {
		Limit  int      `yaml:"limit"`
		Window Duration `yaml:"window"`
	} `yaml:"throttle"`
	Gate struct {
		// TopPercentile gates reactions on the reactor's leaderboard
		// position (0.3 = top 30%). Zero disables the gate.
		TopPercentile float64 `yaml:"top_percentile"`
	} `yaml:"gate"`
	Policy policy.Config `yaml:"policy"`
}

// Default returns a configuration with every knob at its stock value.
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "karmabot.db"
	cfg.Server.Addr = ":7339"
	cfg.Telegram.PollTimeoutSeconds = 60
	cfg.Retention.Horizon = Duration(90 * 24 * time.Hour)
	cfg.Retention.SweepInterval = Duration(24 * time.Hour)
	cfg.Retention.BatchSize = 500
	cfg.Throttle.Limit = 30
	cfg.Throttle.Window = Duration(time.Minute)
	cfg.Policy = policy.DefaultConfig()
	return cfg
}

// ResolvePath returns the config file path, honouring KARMABOT_CONFIG.
func ResolvePath() string {
	if v := strings.TrimSpace(os.Getenv("KARMABOT_CONFIG")); v != "" {
		return v
	}
	return filepath.Join(".", defaultConfigFile)
}

// Load reads and validates the configuration at path. A missing file means
// all defaults; missing fields take their defaults. KARMABOT_TELEGRAM_TOKEN
// overrides the file token.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("KARMABOT_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path required")
	}
	if c.Retention.Horizon <= 0 {
		return fmt.Errorf("retention.horizon must be positive")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention.sweep_interval must be positive")
	}
	if c.Retention.BatchSize <= 0 {
		return fmt.Errorf("retention.batch_size must be positive")
	}
	if c.Gate.TopPercentile < 0 || c.Gate.TopPercentile > 1 {
		return fmt.Errorf("gate.top_percentile must be in [0, 1]")
	}
	return nil
}

// WriteStarter writes a default config file, refusing to clobber an
// existing one.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
