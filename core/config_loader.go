package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envKeyAliases maps the bare variable names used by existing deployments
// onto config keys.
var envKeyAliases = map[string]string{
	"PORT":                 "server.address",
	"PAYSTACK_SECRET_KEY":  "paystack.secret_key",
	"DATAMART_API_URL":     "datamart.api_url",
	"DATAMART_API_KEY":     "datamart.api_key",
	"FORMSPREE_URL":        "formspree.url",
	"HUBTEL_CLIENT_ID":     "hubtel.client_id",
	"HUBTEL_CLIENT_SECRET": "hubtel.client_secret",
	"DATABASE_URL":         "database.dsn",
	"REDIS_URL":            "dedup.redis_url",
}

// EnvConfigLoader reads an optional .env file, an optional config file and
// PAYHOOKS_* environment variables into a raw map for cfgx.
type EnvConfigLoader struct {
	EnvFiles    []string
	ConfigName  string
	ConfigPaths []string
	EnvPrefix   string
	LookupEnv   func(string) (string, bool)
}

func NewEnvConfigLoader() *EnvConfigLoader {
	return &EnvConfigLoader{
		EnvFiles:    []string{".env"},
		ConfigName:  "payhooks",
		ConfigPaths: []string{".", "./config"},
		EnvPrefix:   "PAYHOOKS",
		LookupEnv:   os.LookupEnv,
	}
}

func (l *EnvConfigLoader) LoadRaw(_ context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	for _, file := range l.EnvFiles {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("core: load env file %s: %w", file, err)
		}
	}

	v := viper.New()
	if name := strings.TrimSpace(l.ConfigName); name != "" {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		for _, path := range l.ConfigPaths {
			v.AddConfigPath(path)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("core: read config file: %w", err)
			}
		}
	}
	if prefix := strings.TrimSpace(l.EnvPrefix); prefix != "" {
		v.SetEnvPrefix(prefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("core: bind env %s: %w", key, err)
		}
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for envName, key := range envKeyAliases {
		value, ok := lookup(envName)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		if _, explicit := lookup(l.prefixedEnvName(key)); explicit {
			continue
		}
		if envName == "PORT" && !strings.Contains(value, ":") {
			value = ":" + strings.TrimSpace(value)
		}
		v.Set(key, value)
	}

	settings := v.AllSettings()
	if settings == nil {
		return map[string]any{}, nil
	}
	return settings, nil
}

func (l *EnvConfigLoader) prefixedEnvName(key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix := strings.TrimSpace(l.EnvPrefix); prefix != "" {
		return strings.ToUpper(prefix) + "_" + name
	}
	return name
}

func configKeys() []string {
	layer := configToLayerMap(DefaultConfig(), true)
	keys := []string{}
	var walk func(prefix string, values map[string]any)
	walk = func(prefix string, values map[string]any) {
		for key, value := range values {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			if nested, ok := value.(map[string]any); ok {
				walk(full, nested)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", layer)
	return keys
}

var _ RawConfigLoader = (*EnvConfigLoader)(nil)
