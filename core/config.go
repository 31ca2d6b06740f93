package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendSQL    = "sql"
	DedupBackendRedis  = "redis"
)

type ServerConfig struct {
	Address        string   `koanf:"address" mapstructure:"address"`
	AllowedOrigins []string `koanf:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownGrace  string   `koanf:"shutdown_grace" mapstructure:"shutdown_grace"`
}

type PaystackConfig struct {
	SecretKey   string `koanf:"secret_key" mapstructure:"secret_key"`
	BaseURL     string `koanf:"base_url" mapstructure:"base_url"`
	EmailDomain string `koanf:"email_domain" mapstructure:"email_domain"`
	Currency    string `koanf:"currency" mapstructure:"currency"`
	CallbackURL string `koanf:"callback_url" mapstructure:"callback_url"`
}

type DataMartConfig struct {
	APIURL string `koanf:"api_url" mapstructure:"api_url"`
	APIKey string `koanf:"api_key" mapstructure:"api_key"`
}

type FormspreeConfig struct {
	URL string `koanf:"url" mapstructure:"url"`
}

type HubtelConfig struct {
	BaseURL      string `koanf:"base_url" mapstructure:"base_url"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	Sender       string `koanf:"sender" mapstructure:"sender"`
}

type DispatchConfig struct {
	Async         bool     `koanf:"async" mapstructure:"async"`
	ActionTimeout string   `koanf:"action_timeout" mapstructure:"action_timeout"`
	Actions       []string `koanf:"actions" mapstructure:"actions"`
	RetryEnabled  bool     `koanf:"retry_enabled" mapstructure:"retry_enabled"`
	MaxAttempts   int      `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type DedupConfig struct {
	Backend  string `koanf:"backend" mapstructure:"backend"`
	TTL      string `koanf:"ttl" mapstructure:"ttl"`
	RedisURL string `koanf:"redis_url" mapstructure:"redis_url"`
	CacheTTL string `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Server      ServerConfig    `koanf:"server" mapstructure:"server"`
	Paystack    PaystackConfig  `koanf:"paystack" mapstructure:"paystack"`
	DataMart    DataMartConfig  `koanf:"datamart" mapstructure:"datamart"`
	Formspree   FormspreeConfig `koanf:"formspree" mapstructure:"formspree"`
	Hubtel      HubtelConfig    `koanf:"hubtel" mapstructure:"hubtel"`
	Dispatch    DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
	Dedup       DedupConfig     `koanf:"dedup" mapstructure:"dedup"`
	Database    DatabaseConfig  `koanf:"database" mapstructure:"database"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "payhooks",
		Server: ServerConfig{
			Address:        ":3000",
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
			ShutdownGrace:  "15s",
		},
		Paystack: PaystackConfig{
			BaseURL:     "https://api.paystack.co",
			EmailDomain: "payhooks.app",
			Currency:    "GHS",
		},
		DataMart: DataMartConfig{
			APIURL: "https://api.datamart.shop/buy",
		},
		Hubtel: HubtelConfig{
			BaseURL: "https://smsc.hubtel.com/v1/messages/send",
		},
		Dispatch: DispatchConfig{
			Async:         true,
			ActionTimeout: "8s",
			Actions: []string{
				string(FulfillmentActionDeliverGoods),
				string(FulfillmentActionNotifyAdmin),
				string(FulfillmentActionNotifyBuyer),
			},
			RetryEnabled: true,
			MaxAttempts:  5,
		},
		Dedup: DedupConfig{
			Backend:  DedupBackendSQL,
			TTL:      "720h",
			CacheTTL: "10m",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:payhooks.db?cache=shared&_fk=1",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("core: server.max_body_bytes must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(c.Dedup.Backend)) {
	case "", DedupBackendMemory, DedupBackendSQL:
	case DedupBackendRedis:
		if strings.TrimSpace(c.Dedup.RedisURL) == "" {
			return fmt.Errorf("core: dedup.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("core: dedup.backend %q is invalid", c.Dedup.Backend)
	}
	for _, action := range c.Dispatch.Actions {
		if _, err := ParseFulfillmentAction(action); err != nil {
			return err
		}
	}
	for name, value := range map[string]string{
		"dispatch.action_timeout": c.Dispatch.ActionTimeout,
		"dedup.ttl":               c.Dedup.TTL,
		"dedup.cache_ttl":         c.Dedup.CacheTTL,
		"server.shutdown_grace":   c.Server.ShutdownGrace,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("core: %s is invalid: %w", name, err)
		}
	}
	return nil
}

func (c Config) ActionTimeout() time.Duration {
	return parseDurationOr(c.Dispatch.ActionTimeout, 8*time.Second)
}

func (c Config) DedupTTL() time.Duration {
	return parseDurationOr(c.Dedup.TTL, 0)
}

func (c Config) DedupCacheTTL() time.Duration {
	return parseDurationOr(c.Dedup.CacheTTL, 10*time.Minute)
}

func (c Config) ShutdownGrace() time.Duration {
	return parseDurationOr(c.Server.ShutdownGrace, 15*time.Second)
}

func (c Config) EnabledActions() []FulfillmentAction {
	actions := make([]FulfillmentAction, 0, len(c.Dispatch.Actions))
	seen := map[FulfillmentAction]struct{}{}
	for _, raw := range c.Dispatch.Actions {
		action, err := ParseFulfillmentAction(raw)
		if err != nil {
			continue
		}
		if _, ok := seen[action]; ok {
			continue
		}
		seen[action] = struct{}{}
		actions = append(actions, action)
	}
	return actions
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
