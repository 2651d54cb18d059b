package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
markets:
  - name: HK
    underlyings:
      - HK.TCH
      - HK.ALI
    poll_interval: 30s
    timezone: Asia/Hong_Kong
    sessions:
      - "09:30-12:00"
      - "13:00-16:00"

source:
  base_url: "https://quote.example.com"
  min_request_interval: 500ms

filters:
  default:
    min_volume: 20
    min_turnover: 50000
  overrides:
    tch:
      min_volume: 100
      min_turnover: 500000
      kinds: [Call, Put]
      max_days_to_expiry: 365

dispatch:
  cooldown: 60s

sinks:
  telegram:
    bot_token: "test_token"
    chat_id: "test_chat_id"
    enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "info"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Markets) != 1 || cfg.Markets[0].Name != "HK" {
		t.Errorf("unexpected markets: %+v", cfg.Markets)
	}
	if cfg.Markets[0].PollInterval != 30*time.Second {
		t.Errorf("unexpected poll interval: %v", cfg.Markets[0].PollInterval)
	}
	if len(cfg.Markets[0].Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(cfg.Markets[0].Sessions))
	}
	if cfg.Dispatch.Cooldown != time.Minute {
		t.Errorf("unexpected cooldown: %v", cfg.Dispatch.Cooldown)
	}
	if got := cfg.Filters.Resolve("HK.TCH"); got.MinVolume != 100 {
		t.Errorf("override not resolved from file: %+v", got)
	}
	if got := cfg.Filters.Resolve("HK.ALI"); got.MinVolume != 20 {
		t.Errorf("default not resolved: %+v", got)
	}
	// Defaults fill unset fields.
	if cfg.Source.BandWidenFactor != 1.5 {
		t.Errorf("unexpected band widen factor: %v", cfg.Source.BandWidenFactor)
	}
	if cfg.Dispatch.RetentionDays != 7 {
		t.Errorf("unexpected retention days: %d", cfg.Dispatch.RetentionDays)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestResolveFilter(t *testing.T) {
	cfg := FiltersConfig{
		Default: FilterConfig{MinVolume: 20, MinTurnover: 50000},
		Overrides: map[string]FilterConfig{
			"tch": {MinVolume: 100, MinTurnover: 500000},
		},
	}

	// Overrides are keyed by bare lowercase symbol; the market prefix on the
	// underlying code is stripped during lookup.
	if got := cfg.Resolve("HK.TCH"); got.MinVolume != 100 {
		t.Errorf("override not applied: %+v", got)
	}
	if got := cfg.Resolve("TCH"); got.MinVolume != 100 {
		t.Errorf("bare symbol lookup failed: %+v", got)
	}
	if got := cfg.Resolve("HK.BIU"); got.MinVolume != 20 {
		t.Errorf("default not applied: %+v", got)
	}
}

func validConfig() *Config {
	return &Config{
		Markets: []MarketConfig{
			{Name: "HK", Underlyings: []string{"HK.TCH"}, PollInterval: 30 * time.Second},
		},
		Source: SourceConfig{
			BaseURL:            "https://quote.example.com",
			MinRequestInterval: 500 * time.Millisecond,
			PriceBandPct:       0.2,
			BandWidenFactor:    1.5,
		},
		Filters: FiltersConfig{
			Default: FilterConfig{
				MinVolume:       20,
				MinTurnover:     50000,
				MaxDaysToExpiry: 365,
				Kinds:           []string{"Call", "Put"},
			},
		},
		Dispatch: DispatchConfig{
			Cooldown:         2 * time.Minute,
			RetentionDays:    7,
			TopPerUnderlying: 3,
		},
		Storage: StorageConfig{DBPath: "./data/test.db"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no markets", func(c *Config) { c.Markets = nil }, true},
		{"duplicate market", func(c *Config) { c.Markets = append(c.Markets, c.Markets[0]) }, true},
		{"no underlyings", func(c *Config) { c.Markets[0].Underlyings = nil }, true},
		{"poll interval too small", func(c *Config) { c.Markets[0].PollInterval = time.Second }, true},
		{"missing base url", func(c *Config) { c.Source.BaseURL = "" }, true},
		{"band pct out of range", func(c *Config) { c.Source.PriceBandPct = 1.5 }, true},
		{"negative min volume", func(c *Config) { c.Filters.Default.MinVolume = -1 }, true},
		{"bad kind", func(c *Config) { c.Filters.Default.Kinds = []string{"Straddle"} }, true},
		{"max price below min", func(c *Config) {
			c.Filters.Default.MinPrice = 5
			c.Filters.Default.MaxPrice = 1
		}, true},
		{"bad override", func(c *Config) {
			c.Filters.Overrides = map[string]FilterConfig{
				"HK.TCH": {MinVolume: -1, Kinds: []string{"Call"}},
			}
		}, true},
		{"telegram enabled without token", func(c *Config) {
			c.Sinks.Telegram = TelegramConfig{Enabled: true, ChatID: "x"}
		}, true},
		{"webhook enabled without url", func(c *Config) {
			c.Sinks.Webhook = WebhookConfig{Enabled: true}
		}, true},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
