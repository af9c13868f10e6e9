package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Provider ProviderConfig `mapstructure:"provider"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Payments PaymentsConfig `mapstructure:"payments"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`       // debug, release, test
	RateLimit int64  `mapstructure:"rate_limit"` // document requests per minute per key
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ProviderConfig configures the external e-invoicing provider endpoint.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PreValidate bool          `mapstructure:"pre_validate"` // schema check before real send
}

// DispatchConfig configures the document dispatch worker.
type DispatchConfig struct {
	MaxTries int             `mapstructure:"max_tries"`
	Backoff  []time.Duration `mapstructure:"backoff"`
	Workers  int             `mapstructure:"workers"`
	IDPrefix string          `mapstructure:"id_prefix"` // 3-letter provider document id prefix
}

// WebhookConfig configures the webhook delivery worker.
type WebhookConfig struct {
	MaxTries int             `mapstructure:"max_tries"`
	Backoff  []time.Duration `mapstructure:"backoff"`
	Timeout  time.Duration   `mapstructure:"timeout"`
	Workers  int             `mapstructure:"workers"`
}

// BreakerConfig configures circuit breaking for provider channels.
type BreakerConfig struct {
	FailureThreshold int64         `mapstructure:"failure_threshold"`
	OpenWindow       time.Duration `mapstructure:"open_window"`
	HalfOpenTrials   int64         `mapstructure:"half_open_trials"`
}

// CreditsConfig configures the prepaid ledger.
type CreditsConfig struct {
	DocCosts   map[string]int64 `mapstructure:"doc_costs"`   // credits per document type
	PoolOrgID  string           `mapstructure:"pool_org_id"` // platform-owned pool organization
	SweepEvery time.Duration    `mapstructure:"sweep_every"` // auto-purchase sweep interval
}

// PaymentsConfig configures the card-payment collaborator used for
// auto-purchase charges.
type PaymentsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: EDP_ (E-Dispatch).
// Nested keys use underscore: EDP_DATABASE_HOST, EDP_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "einvoice_dispatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.username", "")
	v.SetDefault("provider.password", "")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.pre_validate", false)
	v.SetDefault("dispatch.max_tries", 5)
	v.SetDefault("dispatch.backoff", []string{"30s", "60s", "120s", "300s", "600s"})
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.id_prefix", "EFT")
	v.SetDefault("webhook.max_tries", 5)
	v.SetDefault("webhook.backoff", []string{"30s", "60s", "120s", "300s", "600s"})
	v.SetDefault("webhook.timeout", "15s")
	v.SetDefault("webhook.workers", 4)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_window", "300s")
	v.SetDefault("breaker.half_open_trials", 3)
	v.SetDefault("credits.doc_costs", map[string]int64{"invoice": 1, "voucher": 1, "despatch": 1})
	v.SetDefault("credits.pool_org_id", "")
	v.SetDefault("credits.sweep_every", "1h")
	v.SetDefault("payments.base_url", "")
	v.SetDefault("payments.api_key", "")
	v.SetDefault("payments.timeout", "20s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "einvoice-dispatch")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: EDP_DATABASE_HOST -> database.host
	v.SetEnvPrefix("EDP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can carry the whole config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
