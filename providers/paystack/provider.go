package paystack

import (
	"strings"
	"time"
)

const (
	ProviderID      = "paystack"
	BaseURL         = "https://api.paystack.co"
	SignatureHeader = "X-Paystack-Signature"
)

type Config struct {
	SecretKey      string
	BaseURL        string
	Currency       string
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        BaseURL,
		Currency:       "GHS",
		RequestTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = defaults.BaseURL
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = defaults.Currency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	return c
}
