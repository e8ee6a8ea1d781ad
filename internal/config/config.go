package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	configFileEnv = "STOCKPULSE_CONFIG_FILE"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=info" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT,default=json" yaml:"log_format"`

	CycleInterval           time.Duration `env:"CYCLE_INTERVAL,default=30s" yaml:"cycle_interval"`
	PriceTTL                time.Duration `env:"PRICE_TTL,default=60s" yaml:"price_ttl"`
	RateLimitRequests       int           `env:"RATE_LIMIT_REQUESTS,default=5" yaml:"rate_limit_requests"`
	RateLimitInterval       time.Duration `env:"RATE_LIMIT_INTERVAL,default=1m" yaml:"rate_limit_interval"`
	FetchMaxAttempts        int           `env:"FETCH_MAX_ATTEMPTS,default=3" yaml:"fetch_max_attempts"`
	FetchBackoffBase        time.Duration `env:"FETCH_BACKOFF_BASE,default=1s" yaml:"fetch_backoff_base"`
	FetchBackoffMax         time.Duration `env:"FETCH_BACKOFF_MAX,default=15s" yaml:"fetch_backoff_max"`
	NotifyMaxAttempts       int           `env:"NOTIFY_MAX_ATTEMPTS,default=4" yaml:"notify_max_attempts"`
	NotifyBackoffBase       time.Duration `env:"NOTIFY_BACKOFF_BASE,default=2s" yaml:"notify_backoff_base"`
	NotifyBackoffMax        time.Duration `env:"NOTIFY_BACKOFF_MAX,default=1m" yaml:"notify_backoff_max"`
	NotifyBackoffMultiplier float64       `env:"NOTIFY_BACKOFF_MULTIPLIER,default=2" yaml:"notify_backoff_multiplier"`
	WorkerCount             int           `env:"WORKER_COUNT,default=8" yaml:"worker_count"`

	DBDriver          string        `env:"DB_DRIVER,default=postgres" yaml:"db_driver"`
	DBHost            string        `env:"DB_HOST" yaml:"db_host"`
	DBPort            int           `env:"DB_PORT,default=5432" yaml:"db_port"`
	DBUser            string        `env:"DB_USER" yaml:"db_user"`
	DBPassword        string        `env:"DB_PASSWORD" yaml:"db_password"`
	DBName            string        `env:"DB_NAME" yaml:"db_name"`
	DBSSLMode         string        `env:"DB_SSLMODE,default=disable" yaml:"db_sslmode"`
	DBPath            string        `env:"DB_PATH,default=stockpulse.db" yaml:"db_path"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10" yaml:"db_max_idle_conns"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25" yaml:"db_max_open_conns"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m" yaml:"db_conn_max_lifetime"`
	DBAutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=false" yaml:"db_auto_migrate"`

	AlphaVantageAPIKey  string        `env:"ALPHA_VANTAGE_API_KEY" yaml:"alpha_vantage_api_key"`
	AlphaVantageBaseURL string        `env:"ALPHA_VANTAGE_BASE_URL,default=https://www.alphavantage.co/query" yaml:"alpha_vantage_base_url"`
	AlphaVantageTimeout time.Duration `env:"ALPHA_VANTAGE_TIMEOUT,default=10s" yaml:"alpha_vantage_timeout"`

	StreamURL           string        `env:"STREAM_URL" yaml:"stream_url"`
	StreamToken         string        `env:"STREAM_TOKEN" yaml:"stream_token"`
	StreamReadTimeout   time.Duration `env:"STREAM_READ_TIMEOUT,default=0s" yaml:"stream_read_timeout"`
	StreamReconnectWait time.Duration `env:"STREAM_RECONNECT_WAIT,default=5s" yaml:"stream_reconnect_wait"`

	SMTPHost     string `env:"SMTP_HOST" yaml:"smtp_host"`
	SMTPPort     int    `env:"SMTP_PORT,default=587" yaml:"smtp_port"`
	SMTPUsername string `env:"SMTP_USERNAME" yaml:"smtp_username"`
	SMTPPassword string `env:"SMTP_PASSWORD" yaml:"smtp_password"`
	SMTPFrom     string `env:"SMTP_FROM" yaml:"smtp_from"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID" yaml:"twilio_account_sid"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN" yaml:"twilio_auth_token"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER" yaml:"twilio_from_number"`

	NATSURL           string `env:"NATS_URL" yaml:"nats_url"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=alerts" yaml:"nats_subject_prefix"`

	TelegramBotToken       string `env:"TELEGRAM_BOT_TOKEN" yaml:"telegram_bot_token"`
	TelegramOperatorChatID int64  `env:"TELEGRAM_OPERATOR_CHAT_ID" yaml:"telegram_operator_chat_id"`
	TelegramPollTimeout    int    `env:"TELEGRAM_POLL_TIMEOUT,default=60" yaml:"telegram_poll_timeout"`

	HTTPAddr           string   `env:"HTTP_ADDR,default=:8080" yaml:"http_addr"`
	HTTPAllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" yaml:"http_allowed_origins"`
}

// Load reads .env, then the optional YAML file named by
// STOCKPULSE_CONFIG_FILE, then the environment. Environment variables win
// over the file; defaults fill whatever is left.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if path, ok := lookuper.Lookup(configFileEnv); ok && path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           &cfg,
		Lookuper:         lookuper,
		DefaultOverwrite: true,
	}); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.CycleInterval < time.Second {
		errs = append(errs, fmt.Errorf("CYCLE_INTERVAL must be at least 1s, got %s", c.CycleInterval))
	}
	if c.PriceTTL <= 0 {
		errs = append(errs, errors.New("PRICE_TTL must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_INTERVAL must be positive"))
	}
	if c.FetchMaxAttempts < 1 {
		errs = append(errs, errors.New("FETCH_MAX_ATTEMPTS must be at least 1"))
	}
	if c.NotifyMaxAttempts < 1 {
		errs = append(errs, errors.New("NOTIFY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.NotifyBackoffMultiplier < 1 {
		errs = append(errs, errors.New("NOTIFY_BACKOFF_MULTIPLIER must be at least 1"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}
	if c.AlphaVantageAPIKey == "" {
		errs = append(errs, errors.New("ALPHA_VANTAGE_API_KEY is required"))
	}

	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for postgres"))
		}
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}

	if c.EmailEnabled() && c.SMTPFrom == "" {
		errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
	}
	if c.SMSEnabled() && (c.TwilioAuthToken == "" || c.TwilioFromNumber == "") {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when TWILIO_ACCOUNT_SID is set"))
	}
	if c.TelegramBotToken != "" && c.TelegramOperatorChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_OPERATOR_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set"))
	}
	return errors.Join(errs...)
}

func (c Config) EmailEnabled() bool {
	return c.SMTPHost != ""
}

func (c Config) SMSEnabled() bool {
	return c.TwilioAccountSID != ""
}
