package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the settlement server and CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Payments PaymentsConfig `yaml:"payments"`
	Auth     AuthConfig     `yaml:"auth"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	Env          string        `yaml:"env"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type StripeConfig struct {
	SecretKey            string        `yaml:"secret_key"`
	BaseURL              string        `yaml:"base_url"`
	Timeout              time.Duration `yaml:"timeout"`
	WebhookSecret        string        `yaml:"webhook_secret"`
	ConnectWebhookSecret string        `yaml:"connect_webhook_secret"`
	Currency             string        `yaml:"currency"`
	Platform             string        `yaml:"platform"`
}

// WebhookSecrets returns the configured signing secrets, payments first.
func (s StripeConfig) WebhookSecrets() []string {
	var out []string
	for _, sec := range []string{s.WebhookSecret, s.ConnectWebhookSecret} {
		if sec != "" {
			out = append(out, sec)
		}
	}
	return out
}

type PaymentsConfig struct {
	PlatformFeePercent int64         `yaml:"platform_fee_percent"`
	SignatureTolerance time.Duration `yaml:"signature_tolerance"`
	EventDedupTTL      time.Duration `yaml:"event_dedup_ttl"`
}

type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration before any file or environment overrides.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Env:          "development",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Stripe: StripeConfig{
			BaseURL:  "https://api.stripe.com",
			Timeout:  30 * time.Second,
			Currency: "eur",
			Platform: "mimanitas",
		},
		Payments: PaymentsConfig{
			PlatformFeePercent: 10,
			SignatureTolerance: 300 * time.Second,
			EventDedupTTL:      24 * time.Hour,
		},
		Auth: AuthConfig{
			RequestsPerMinute: 60,
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "settlement.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// SETTLEMENT_CONFIG_FILE, and environment variables, in that order of precedence.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SETTLEMENT_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("SETTLEMENT_PORT", c.Server.Port)
	c.Server.Env = envString("SETTLEMENT_ENV", c.Server.Env)
	c.Server.ReadTimeout = envDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = envDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.Stripe.SecretKey = envString("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.BaseURL = envString("STRIPE_BASE_URL", c.Stripe.BaseURL)
	c.Stripe.Timeout = envDuration("STRIPE_TIMEOUT", c.Stripe.Timeout)
	c.Stripe.WebhookSecret = envString("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Stripe.ConnectWebhookSecret = envString("STRIPE_CONNECT_WEBHOOK_SECRET", c.Stripe.ConnectWebhookSecret)
	c.Stripe.Currency = strings.ToLower(envString("STRIPE_CURRENCY", c.Stripe.Currency))
	c.Stripe.Platform = envString("STRIPE_PLATFORM", c.Stripe.Platform)

	c.Payments.PlatformFeePercent = int64(envInt("PLATFORM_FEE_PERCENT", int(c.Payments.PlatformFeePercent)))
	c.Payments.SignatureTolerance = envDurationSecs("WEBHOOK_TOLERANCE_SECS", c.Payments.SignatureTolerance)
	c.Payments.EventDedupTTL = envDuration("EVENT_DEDUP_TTL", c.Payments.EventDedupTTL)

	c.Auth.JWTSecret = envString("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.RequestsPerMinute = envInt("RATE_LIMIT_PER_MINUTE", c.Auth.RequestsPerMinute)

	c.RabbitMQ.URL = envString("RABBITMQ_URL", c.RabbitMQ.URL)
	c.RabbitMQ.Exchange = envString("RABBITMQ_EXCHANGE", c.RabbitMQ.Exchange)

	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envString("LOG_FORMAT", c.Logging.Format)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if !strings.HasPrefix(c.Stripe.BaseURL, "http://") && !strings.HasPrefix(c.Stripe.BaseURL, "https://") {
		return fmt.Errorf("STRIPE_BASE_URL must start with http:// or https://, got %q", c.Stripe.BaseURL)
	}
	if len(c.Stripe.WebhookSecrets()) == 0 {
		return fmt.Errorf("at least one of STRIPE_WEBHOOK_SECRET or STRIPE_CONNECT_WEBHOOK_SECRET is required")
	}

	if c.Payments.PlatformFeePercent < 0 || c.Payments.PlatformFeePercent > 100 {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100, got %d", c.Payments.PlatformFeePercent)
	}
	if c.Payments.SignatureTolerance <= 0 {
		return fmt.Errorf("WEBHOOK_TOLERANCE_SECS must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of json, console; got %q", c.Logging.Format)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
