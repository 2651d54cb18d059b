package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Markets  []MarketConfig `mapstructure:"markets"`
	Source   SourceConfig   `mapstructure:"source"`
	Filters  FiltersConfig  `mapstructure:"filters"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig describes one monitored market track.
type MarketConfig struct {
	Name           string        `mapstructure:"name"`
	Underlyings    []string      `mapstructure:"underlyings"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StartDelay     time.Duration `mapstructure:"start_delay"`
	Timezone       string        `mapstructure:"timezone"`
	Sessions       []string      `mapstructure:"sessions"` // "09:30-12:00" pairs; empty = always open
	PollWhenClosed bool          `mapstructure:"poll_when_closed"`
}

// SourceConfig holds market data source configuration
type SourceConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	PriceBandPct       float64       `mapstructure:"price_band_pct"`
	BandWidenFactor    float64       `mapstructure:"band_widen_factor"`
	SpotCacheTTL       time.Duration `mapstructure:"spot_cache_ttl"`
}

// FilterConfig holds the big-trade thresholds for one underlying.
type FilterConfig struct {
	MinVolume          int64    `mapstructure:"min_volume"`
	MinTurnover        float64  `mapstructure:"min_turnover"`
	MinPrice           float64  `mapstructure:"min_price"`
	MaxPrice           float64  `mapstructure:"max_price"` // 0 = no limit
	MinDaysToExpiry    int      `mapstructure:"min_days_to_expiry"`
	MaxDaysToExpiry    int      `mapstructure:"max_days_to_expiry"`
	Kinds              []string `mapstructure:"kinds"`
	MinImportanceScore int      `mapstructure:"min_importance_score"`
}

// FiltersConfig holds the default thresholds plus per-underlying overrides.
type FiltersConfig struct {
	Default   FilterConfig            `mapstructure:"default"`
	Overrides map[string]FilterConfig `mapstructure:"overrides"`
}

// Resolve returns the filter for an underlying, falling back to the default
// when no override exists. Viper lowercases config keys and reserves the dot
// as its key delimiter, so overrides are keyed by the bare lowercase symbol
// ("tch"), matched against the underlying code with its market prefix
// stripped.
func (f *FiltersConfig) Resolve(underlying string) FilterConfig {
	key := strings.ToLower(underlying)
	if fc, ok := f.Overrides[key]; ok {
		return fc
	}
	if i := strings.LastIndex(key, "."); i >= 0 {
		if fc, ok := f.Overrides[key[i+1:]]; ok {
			return fc
		}
	}
	return f.Default
}

// DispatchConfig holds notification dispatch configuration
type DispatchConfig struct {
	Cooldown         time.Duration `mapstructure:"cooldown"`
	RetentionDays    int           `mapstructure:"retention_days"`
	TopPerUnderlying int           `mapstructure:"top_per_underlying"`
	VolumeStateTTL   time.Duration `mapstructure:"volume_state_ttl"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// WebhookConfig holds group-chat webhook notification configuration
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Enabled bool          `mapstructure:"enabled"`
}

// ConsoleConfig holds console sink configuration
type ConsoleConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SinksConfig groups all notification sinks.
type SinksConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Console  ConsoleConfig  `mapstructure:"console"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("OPTIONWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.min_request_interval", "500ms")
	v.SetDefault("source.price_band_pct", 0.2)
	v.SetDefault("source.band_widen_factor", 1.5)
	v.SetDefault("source.spot_cache_ttl", "5m")

	// Filter defaults
	v.SetDefault("filters.default.min_volume", 20)
	v.SetDefault("filters.default.min_turnover", 50000.0)
	v.SetDefault("filters.default.min_price", 0.01)
	v.SetDefault("filters.default.max_price", 0.0)
	v.SetDefault("filters.default.min_days_to_expiry", 0)
	v.SetDefault("filters.default.max_days_to_expiry", 365)
	v.SetDefault("filters.default.kinds", []string{"Call", "Put"})
	v.SetDefault("filters.default.min_importance_score", 0)

	// Dispatch defaults
	v.SetDefault("dispatch.cooldown", "120s")
	v.SetDefault("dispatch.retention_days", 7)
	v.SetDefault("dispatch.top_per_underlying", 3)
	v.SetDefault("dispatch.volume_state_ttl", "10m")

	// Sink defaults
	v.SetDefault("sinks.console.enabled", true)
	v.SetDefault("sinks.webhook.timeout", "10s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/optionwatch.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("markets must contain at least one market")
	}
	seen := make(map[string]bool)
	for i, m := range c.Markets {
		if m.Name == "" {
			return fmt.Errorf("markets[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("markets[%d].name %q is duplicated", i, m.Name)
		}
		seen[m.Name] = true
		if len(m.Underlyings) == 0 {
			return fmt.Errorf("markets[%d].underlyings must contain at least one underlying", i)
		}
		if m.PollInterval < 10*time.Second {
			return fmt.Errorf("markets[%d].poll_interval must be at least 10 seconds", i)
		}
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.MinRequestInterval <= 0 {
		return fmt.Errorf("source.min_request_interval must be positive")
	}
	if c.Source.PriceBandPct <= 0 || c.Source.PriceBandPct > 1 {
		return fmt.Errorf("source.price_band_pct must be in (0, 1]")
	}
	if c.Source.BandWidenFactor < 1 {
		return fmt.Errorf("source.band_widen_factor must be at least 1")
	}

	if err := validateFilter("filters.default", c.Filters.Default); err != nil {
		return err
	}
	for name, fc := range c.Filters.Overrides {
		if err := validateFilter("filters.overrides."+name, fc); err != nil {
			return err
		}
	}

	if c.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown must not be negative")
	}
	if c.Dispatch.RetentionDays < 1 {
		return fmt.Errorf("dispatch.retention_days must be at least 1")
	}
	if c.Dispatch.TopPerUnderlying < 1 {
		return fmt.Errorf("dispatch.top_per_underlying must be at least 1")
	}

	if c.Sinks.Telegram.Enabled {
		if c.Sinks.Telegram.BotToken == "" {
			return fmt.Errorf("sinks.telegram.bot_token is required when telegram is enabled")
		}
		if c.Sinks.Telegram.ChatID == "" {
			return fmt.Errorf("sinks.telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Sinks.Webhook.Enabled && c.Sinks.Webhook.URL == "" {
		return fmt.Errorf("sinks.webhook.url is required when webhook is enabled")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func validateFilter(name string, f FilterConfig) error {
	if f.MinVolume < 0 {
		return fmt.Errorf("%s.min_volume must not be negative", name)
	}
	if f.MinTurnover < 0 {
		return fmt.Errorf("%s.min_turnover must not be negative", name)
	}
	if f.MinPrice < 0 {
		return fmt.Errorf("%s.min_price must not be negative", name)
	}
	if f.MaxPrice != 0 && f.MaxPrice < f.MinPrice {
		return fmt.Errorf("%s.max_price must not be below min_price", name)
	}
	if f.MinDaysToExpiry < 0 {
		return fmt.Errorf("%s.min_days_to_expiry must not be negative", name)
	}
	if f.MaxDaysToExpiry < f.MinDaysToExpiry {
		return fmt.Errorf("%s.max_days_to_expiry must not be below min_days_to_expiry", name)
	}
	if len(f.Kinds) == 0 {
		return fmt.Errorf("%s.kinds must contain at least one kind", name)
	}
	for _, k := range f.Kinds {
		if k != "Call" && k != "Put" {
			return fmt.Errorf("%s.kinds must contain only Call or Put, got %q", name, k)
		}
	}
	if f.MinImportanceScore < 0 || f.MinImportanceScore > 100 {
		return fmt.Errorf("%s.min_importance_score must be between 0 and 100", name)
	}
	return nil
}
