// Package config handles configuration loading for cotscope.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/seenimoa/cotscope/internal/infra"
)

// EnvPrefix prefixes every environment override, e.g. COTSCOPE_API_PORT.
const EnvPrefix = "COTSCOPE"

// Config represents the complete application configuration.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend"     yaml:"backend"`
	CFTC        CFTCConfig        `mapstructure:"cftc"        yaml:"cftc"`
	Extremes    ExtremesConfig    `mapstructure:"extremes"    yaml:"extremes"`
	Seasonality SeasonalityConfig `mapstructure:"seasonality" yaml:"seasonality"`
	Storage     StorageConfig     `mapstructure:"storage"     yaml:"storage"`
	Curation    CurationConfig    `mapstructure:"curation"    yaml:"curation"`
	Access      AccessConfig      `mapstructure:"access"      yaml:"access"`
	API         APIConfig         `mapstructure:"api"         yaml:"api"`
	Logging     LoggingConfig     `mapstructure:"logging"     yaml:"logging"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-" yaml:"-"`
}

// BackendConfig points at the dashboard backend.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  yaml:"timeout"`
	Email   string        `mapstructure:"email"    yaml:"email"    validate:"omitempty,email"` // signed-in user for CLI calls
}

// CFTCConfig holds the public reporting API settings.
type CFTCConfig struct {
	BaseURL     string        `mapstructure:"base_url"     yaml:"base_url"     validate:"required,url"`
	AppToken    string        `mapstructure:"app_token"    yaml:"app_token"`
	ScheduleURL string        `mapstructure:"schedule_url" yaml:"schedule_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"`
}

// ExtremesConfig tunes the extremes analyzer and its refresh job.
type ExtremesConfig struct {
	BatchSize    int           `mapstructure:"batch_size"    yaml:"batch_size"    validate:"min=1"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"   yaml:"batch_delay"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit" validate:"min=1"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"     yaml:"cache_ttl"`
	CacheKey     string        `mapstructure:"cache_key"     yaml:"cache_key"     validate:"required"`
	Threshold    float64       `mapstructure:"threshold"     yaml:"threshold"     validate:"gte=0,lte=1"`
	RefreshCron  string        `mapstructure:"refresh_cron"  yaml:"refresh_cron"` // empty disables the job
}

// SeasonalityConfig holds seasonality defaults.
type SeasonalityConfig struct {
	LookbackYears  int `mapstructure:"lookback_years"   yaml:"lookback_years"   validate:"min=1"`
	MaxWindowYears int `mapstructure:"max_window_years" yaml:"max_window_years" validate:"min=1"`
	MinCandles     int `mapstructure:"min_candles"      yaml:"min_candles"      validate:"min=1"`
}

// StorageConfig selects the local cache backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=badger memory"`
	Path   string `mapstructure:"path"   yaml:"path"`
}

// CurationConfig points at an alternative curation table.
type CurationConfig struct {
	File string `mapstructure:"file" yaml:"file"` // empty uses the embedded table
}

// AccessConfig controls the subscription gate on API data routes.
type AccessConfig struct {
	Enabled  bool          `mapstructure:"enabled"   yaml:"enabled"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"         validate:"min=1,max=65535"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.cotscope/config.yaml (home directory)
//  3. /etc/cotscope/config.yaml (system)
//
// Environment variables override config file values.
// Format: COTSCOPE_<SECTION>_<KEY>, e.g., COTSCOPE_CFTC_APP_TOKEN
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".cotscope"))
	v.AddConfigPath("/etc/cotscope")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Source = v.ConfigFileUsed()

	// Override sensitive values from environment
	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := infra.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Addr returns the API listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.email", "")

	// CFTC defaults
	v.SetDefault("cftc.base_url", "https://publicreporting.cftc.gov/resource/6dca-aqww.json")
	v.SetDefault("cftc.app_token", "")
	v.SetDefault("cftc.schedule_url", "https://www.cftc.gov/MarketReports/CommitmentsofTraders/ReleaseSchedule/index.htm")
	v.SetDefault("cftc.timeout", 30*time.Second)

	// Extremes defaults
	v.SetDefault("extremes.batch_size", 50)
	v.SetDefault("extremes.batch_delay", time.Second)
	v.SetDefault("extremes.history_limit", 1000)
	v.SetDefault("extremes.cache_ttl", 24*time.Hour)
	v.SetDefault("extremes.cache_key", "commercialExtremes_v3")
	v.SetDefault("extremes.threshold", 0.05)
	v.SetDefault("extremes.refresh_cron", "@every 24h")

	// Seasonality defaults
	v.SetDefault("seasonality.lookback_years", 10)
	v.SetDefault("seasonality.max_window_years", 15)
	v.SetDefault("seasonality.min_candles", 50)

	// Storage defaults
	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.path", filepath.Join(homeDir(), ".cotscope", "cache"))

	// Curation defaults
	v.SetDefault("curation.file", "")

	// Access defaults
	v.SetDefault("access.enabled", false)
	v.SetDefault("access.cache_ttl", 5*time.Minute)

	// API defaults
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if tok := os.Getenv("COTSCOPE_CFTC_APP_TOKEN"); tok != "" {
		cfg.CFTC.AppToken = tok
	}
	if email := os.Getenv("COTSCOPE_BACKEND_EMAIL"); email != "" {
		cfg.Backend.Email = email
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
