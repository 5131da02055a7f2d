package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TOKEN_REPORT"

// Config represents the application configuration
type Config struct {
	Sources             SourcesConfig `mapstructure:"sources"`
	TimezoneOffsetHours float64       `mapstructure:"timezone_offset_hours"`
	Scanner             ScannerConfig `mapstructure:"scanner"`
	Refresh             RefreshConfig `mapstructure:"refresh"`
	Database            string        `mapstructure:"database"`
	Cache               CacheConfig   `mapstructure:"cache"`
	Log                 LogConfig     `mapstructure:"log"`
}

// SourcesConfig holds the log roots. An empty root skips that source.
type SourcesConfig struct {
	Claude string `mapstructure:"claude"`
	Codex  string `mapstructure:"codex"`
}

// ScannerConfig bounds a directory scan
type ScannerConfig struct {
	MaxFiles  int    `mapstructure:"max_files"`
	Extension string `mapstructure:"extension"`
}

// RefreshConfig holds the staleness rules
type RefreshConfig struct {
	TodayInterval time.Duration `mapstructure:"today_interval"`
	DailyGrace    time.Duration `mapstructure:"daily_grace"`
}

// CacheConfig controls persistence of computed reports
type CacheConfig struct {
	Persist bool `mapstructure:"persist"`
}

// LogConfig controls diagnostics
type LogConfig struct {
	Debug bool   `mapstructure:"debug"`
	File  string `mapstructure:"file"`
}

// DefaultDir returns ~/.token-report
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".token-report"
	}
	return filepath.Join(homeDir, ".token-report")
}

func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	v.SetDefault("sources.claude", filepath.Join(homeDir, ".claude", "projects"))
	v.SetDefault("sources.codex", filepath.Join(homeDir, ".codex", "sessions"))
	v.SetDefault("timezone_offset_hours", 8)
	v.SetDefault("scanner.max_files", 2000)
	v.SetDefault("scanner.extension", ".jsonl")
	v.SetDefault("refresh.today_interval", "5m")
	v.SetDefault("refresh.daily_grace", "5m")
	v.SetDefault("database", "")
	v.SetDefault("cache.persist", true)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file", "")
}

// LoadConfig loads configuration from the specified path or default location.
// A missing file is not an error; defaults and TOKEN_REPORT_* environment
// variables apply.
func LoadConfig(configPath string) (*Config, error) {
	viperInstance := viper.New()
	setDefaults(viperInstance)

	viperInstance.SetEnvPrefix(envPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	if configPath == "" {
		// Try default location: ~/.token-report/config.toml
		configPath = filepath.Join(DefaultDir(), "config.toml")
	}
	viperInstance.SetConfigFile(configPath)

	if err := viperInstance.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := viperInstance.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Sources.Claude = expandHome(cfg.Sources.Claude)
	cfg.Sources.Codex = expandHome(cfg.Sources.Codex)
	cfg.Database = expandHome(cfg.Database)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.TimezoneOffsetHours < -12 || c.TimezoneOffsetHours > 14 {
		errs = append(errs, fmt.Errorf("timezone_offset_hours %v out of range [-12, 14]", c.TimezoneOffsetHours))
	}
	if c.Scanner.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("scanner.max_files must be positive, got %d", c.Scanner.MaxFiles))
	}
	if c.Refresh.TodayInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh.today_interval must be positive, got %s", c.Refresh.TodayInterval))
	}
	if c.Refresh.DailyGrace <= 0 {
		errs = append(errs, fmt.Errorf("refresh.daily_grace must be positive, got %s", c.Refresh.DailyGrace))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Offset returns the reporting zone offset
func (c *Config) Offset() time.Duration {
	return time.Duration(c.TimezoneOffsetHours * float64(time.Hour))
}

// GetDatabasePath returns the database path, using default if not specified
func (c *Config) GetDatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	// Default: ~/.token-report/cache.db
	return filepath.Join(DefaultDir(), "cache.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
