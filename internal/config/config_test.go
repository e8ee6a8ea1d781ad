package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"ALPHA_VANTAGE_API_KEY": "demo",
		"DB_DRIVER":             "sqlite",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.CycleInterval)
	assert.Equal(t, time.Minute, cfg.PriceTTL)
	assert.Equal(t, 5, cfg.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitInterval)
	assert.Equal(t, 3, cfg.FetchMaxAttempts)
	assert.Equal(t, 4, cfg.NotifyMaxAttempts)
	assert.Equal(t, 2.0, cfg.NotifyBackoffMultiplier)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "stockpulse.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.False(t, cfg.EmailEnabled())
	assert.False(t, cfg.SMSEnabled())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockpulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cycle_interval: 45s
worker_count: 2
smtp_host: smtp.example.com
smtp_from: alerts@example.com
`), 0o600))

	env := baseEnv()
	env[configFileEnv] = path
	env["WORKER_COUNT"] = "16"

	cfg, err := load(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.CycleInterval)
	assert.Equal(t, 16, cfg.WorkerCount)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.True(t, cfg.EmailEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	env := baseEnv()
	env[configFileEnv] = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := load(context.Background(), envconfig.MapLookuper(env))
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := load(context.Background(), envconfig.MapLookuper(baseEnv()))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"interval too short", func(c *Config) { c.CycleInterval = 500 * time.Millisecond }, "CYCLE_INTERVAL"},
		{"zero ttl", func(c *Config) { c.PriceTTL = 0 }, "PRICE_TTL"},
		{"zero rate limit", func(c *Config) { c.RateLimitRequests = 0 }, "RATE_LIMIT_REQUESTS"},
		{"zero retry ceiling", func(c *Config) { c.FetchMaxAttempts = 0 }, "FETCH_MAX_ATTEMPTS"},
		{"missing api key", func(c *Config) { c.AlphaVantageAPIKey = "" }, "ALPHA_VANTAGE_API_KEY"},
		{"postgres without host", func(c *Config) { c.DBDriver = DriverPostgres }, "DB_HOST"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "unsupported DB_DRIVER"},
		{"smtp without sender", func(c *Config) { c.SMTPHost = "smtp.example.com" }, "SMTP_FROM"},
		{"twilio without token", func(c *Config) { c.TwilioAccountSID = "AC123" }, "TWILIO_AUTH_TOKEN"},
		{"telegram without chat", func(c *Config) { c.TelegramBotToken = "token" }, "TELEGRAM_OPERATOR_CHAT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
