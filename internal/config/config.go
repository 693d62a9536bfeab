package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	PostgresURL    string
	DatabaseSchema string
	Port           string
	KafkaBrokers   []string
	OTLPEndpoint   string

	PaymentKeyID      string
	PaymentKeySecret  string
	PaymentGatewayURL string
	PaymentCurrency   string

	CommissionDefaultRate decimal.Decimal
	SettlementTimeout     time.Duration
	SettlementLockTimeout time.Duration

	EmailServiceURL string
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory fill in variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		DatabaseSchema:    getEnv("DATABASE_SCHEMA", "marketplace"),
		Port:              getEnv("PORT", "8080"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PaymentKeyID:      os.Getenv("PAYMENT_KEY_ID"),
		PaymentKeySecret:  os.Getenv("PAYMENT_KEY_SECRET"),
		PaymentGatewayURL: getEnv("PAYMENT_GATEWAY_URL", "https://api.razorpay.com"),
		PaymentCurrency:   getEnv("PAYMENT_CURRENCY", "INR"),
		EmailServiceURL:   os.Getenv("EMAIL_SERVICE_URL"),
	}

	var err error
	cfg.CommissionDefaultRate, err = decimal.NewFromString(getEnv("COMMISSION_DEFAULT_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("COMMISSION_DEFAULT_RATE: %w", err)
	}
	if cfg.CommissionDefaultRate.IsNegative() || cfg.CommissionDefaultRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("COMMISSION_DEFAULT_RATE must be between 0 and 1, got %s", cfg.CommissionDefaultRate)
	}

	if cfg.SettlementTimeout, err = getDuration("SETTLEMENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettlementLockTimeout, err = getDuration("SETTLEMENT_LOCK_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettlementLockTimeout > cfg.SettlementTimeout {
		return nil, fmt.Errorf("SETTLEMENT_LOCK_TIMEOUT (%s) exceeds SETTLEMENT_TIMEOUT (%s)", cfg.SettlementLockTimeout, cfg.SettlementTimeout)
	}

	return cfg, nil
}

// Require returns an error naming every listed variable that is empty.
func (c *Config) Require(names ...string) error {
	values := map[string]string{
		"POSTGRES_URL":       c.PostgresURL,
		"KAFKA_BROKERS":      strings.Join(c.KafkaBrokers, ","),
		"PAYMENT_KEY_ID":     c.PaymentKeyID,
		"PAYMENT_KEY_SECRET": c.PaymentKeySecret,
		"EMAIL_SERVICE_URL":  c.EmailServiceURL,
	}

	var missing []string
	for _, name := range names {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
