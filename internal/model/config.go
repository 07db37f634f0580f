package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// SyncConfig holds the timing knobs of the synchronization engine. All
// intervals that drive timers are configurable so tests and constrained
// deployments can tighten them.
type SyncConfig struct {
	// PollInterval is the cadence of the background notification poll.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// QuickRetryDelay is the one-shot retry delay armed after a
	// transient poll failure.
	QuickRetryDelay time.Duration `mapstructure:"quick_retry_delay" yaml:"quick_retry_delay"`

	// OnlineSettleDelay is how long to wait after a connectivity-restored
	// signal before fetching; the network path often lags the event.
	OnlineSettleDelay time.Duration `mapstructure:"online_settle_delay" yaml:"online_settle_delay"`

	// MaxRetained caps the notification list size.
	MaxRetained int `mapstructure:"max_retained" yaml:"max_retained"`
}

// APIConfig holds the REST client settings.
type APIConfig struct {
	// BaseURL is the root of the portal REST API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// MaxAttempts bounds retries for a single logical read.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// BackoffBase is the first retry delay; each subsequent delay doubles.
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
}

// ReminderConfig holds the payment reminder derivation settings.
type ReminderConfig struct {
	// LookaheadDays is how many days before a due date the reminder
	// window opens.
	LookaheadDays int `mapstructure:"lookahead_days" yaml:"lookahead_days"`
}

// Config is the top-level client configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Reminder ReminderConfig `mapstructure:"reminder" yaml:"reminder"`

	// DBPath locates the local SQLite database used for persistent
	// key/value markers.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notisync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notisync", "config.yaml")
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			MaxAttempts: 3,
			BackoffBase: 250 * time.Millisecond,
		},
		Sync: SyncConfig{
			PollInterval:      60 * time.Second,
			QuickRetryDelay:   2 * time.Second,
			OnlineSettleDelay: 500 * time.Millisecond,
			MaxRetained:       200,
		},
		Reminder: ReminderConfig{
			LookaheadDays: 3,
		},
		DBPath: defaultDBPath(),
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "notisync.db")
	}
	return filepath.Join(home, ".config", "notisync", "notisync.db")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("api.max_attempts", 3)
	v.SetDefault("api.backoff_base", "250ms")
	v.SetDefault("sync.poll_interval", "60s")
	v.SetDefault("sync.quick_retry_delay", "2s")
	v.SetDefault("sync.online_settle_delay", "500ms")
	v.SetDefault("sync.max_retained", 200)
	v.SetDefault("reminder.lookahead_days", 3)
	v.SetDefault("db_path", defaultDBPath())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("sync", cfg.Sync)
	v.Set("reminder", cfg.Reminder)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
