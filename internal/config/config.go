package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/storiqa/billing/internal/types"
)

type Configuration struct {
	Deployment    DeploymentConfig    `validate:"required"`
	Server        ServerConfig        `validate:"required"`
	Logging       LoggingConfig       `validate:"required"`
	Postgres      PostgresConfig      `validate:"required"`
	Payments      *PaymentsConfig     // nil disables the crypto flow
	Stripe        StripeConfig        `validate:"required"`
	Saga          SagaConfig          `validate:"required"`
	PaymentExpiry PaymentExpiryConfig `validate:"required"`
	Fee           FeeConfig           `validate:"required"`
	Subscription  SubscriptionConfig
	EventHandle   EventHandleConfig `validate:"required"`
	Sentry        SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host         string `validate:"required"`
	Port         int    `validate:"required"`
	User         string `validate:"required"`
	Password     string
	DBName       string `validate:"required"`
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// PaymentsConfig configures the crypto payments gateway integration.
type PaymentsConfig struct {
	URL                 string `mapstructure:"url" validate:"required"`
	JWTPublicKeyBase64  string `mapstructure:"jwt_public_key_base64" validate:"required"`
	UserJWT             string `mapstructure:"user_jwt" validate:"required"`
	UserPrivateKey      string `mapstructure:"user_private_key" validate:"required"`
	MaxAccounts         uint32 `mapstructure:"max_accounts" validate:"required"`
	SignPublicKey       string `mapstructure:"sign_public_key" validate:"required"`
	MainSTQAccountID    string `mapstructure:"main_stq_account_id"`
	CashbackSTQAccount  string `mapstructure:"cashback_stq_account_id"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key" validate:"required"`
	WebhookSecret string `mapstructure:"webhook_secret" validate:"required"`
}

type SagaConfig struct {
	URL string `validate:"required"`
}

// PaymentExpiryConfig sets how long an invoice waits for funds before
// the scheduled PaymentExpired event fires.
type PaymentExpiryConfig struct {
	CryptoTimeoutMin int `mapstructure:"crypto_timeout_min" validate:"required"`
	FiatTimeoutMin   int `mapstructure:"fiat_timeout_min" validate:"required"`
}

// FeeConfig drives marketplace commission calculation.
// CryptoRates maps a crypto seller currency to its FeeCurrency price per
// one super-unit, used when a crypto order's fee is billed in fiat.
type FeeConfig struct {
	OrderPercent uint64                  `mapstructure:"order_percent" validate:"required"`
	FeeCurrency  types.Currency          `mapstructure:"fee_currency"`
	CryptoRates  map[string]float64      `mapstructure:"crypto_rates"`
}

type SubscriptionConfig struct {
	TrialTimeDurationDays int `mapstructure:"trial_time_duration_days"`
}

type EventHandleConfig struct {
	TickIntervalSec int `mapstructure:"tick_interval_sec" validate:"required"`
	LeaseSec        int `mapstructure:"lease_sec" validate:"required"`
	MaxAttempts     int `mapstructure:"max_attempts"`
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billing")

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// PaymentsEnabled reports whether the crypto gateway integration is
// configured. Crypto-dependent operations fail without it.
func (c *Configuration) PaymentsEnabled() bool {
	return c.Payments != nil && c.Payments.URL != ""
}

func (c EventHandleConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

func (c EventHandleConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSec) * time.Second
}

func (c PaymentExpiryConfig) CryptoTimeout() time.Duration {
	return time.Duration(c.CryptoTimeoutMin) * time.Minute
}

func (c PaymentExpiryConfig) FiatTimeout() time.Duration {
	return time.Duration(c.FiatTimeoutMin) * time.Minute
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Server:     ServerConfig{Address: ":8080"},
		Stripe:     StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"},
		Saga:       SagaConfig{URL: "http://localhost:8081"},
		PaymentExpiry: PaymentExpiryConfig{
			CryptoTimeoutMin: 60,
			FiatTimeoutMin:   15,
		},
		Fee: FeeConfig{
			OrderPercent: 5,
			FeeCurrency:  types.CurrencyEUR,
		},
		EventHandle: EventHandleConfig{
			TickIntervalSec: 1,
			LeaseSec:        300,
			MaxAttempts:     3,
		},
	}
}

func (c PostgresConfig) GetDSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User, c.Password, c.DBName, c.Host, c.Port, sslMode,
	)
}
