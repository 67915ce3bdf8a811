package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Config reads .env (toml) plus environment variables, with defaults
 * for local development against a bare Redis
 */

type Config struct {
	Port          string `mapstructure:"PORT"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	WebhookTimeoutSeconds      int `mapstructure:"WEBHOOK_TIMEOUT_SECONDS"`
	WebhookMaxAttempts         int `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	WebhookRetryBackoffMinutes int `mapstructure:"WEBHOOK_RETRY_BACKOFF_MINUTES"`
	WebhookRetrySweepSeconds   int `mapstructure:"WEBHOOK_RETRY_SWEEP_SECONDS"`

	CacheTTLSeconds int `mapstructure:"CACHE_TTL_SECONDS"`

	RateLimitWindowMs     int    `mapstructure:"RATE_LIMIT_WINDOW_MS"`
	RateLimitMax          int    `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitPurgeSeconds int    `mapstructure:"RATE_LIMIT_PURGE_SECONDS"`
	RateLimitStore        string `mapstructure:"RATE_LIMIT_STORE"` // "memory" (per-instance) or "redis" (global window)
	LimitsFile            string `mapstructure:"LIMITS_FILE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("WEBHOOK_TIMEOUT_SECONDS", 10)
	viper.SetDefault("WEBHOOK_MAX_ATTEMPTS", 3)
	viper.SetDefault("WEBHOOK_RETRY_BACKOFF_MINUTES", 5)
	viper.SetDefault("WEBHOOK_RETRY_SWEEP_SECONDS", 30)
	viper.SetDefault("CACHE_TTL_SECONDS", 300)
	viper.SetDefault("RATE_LIMIT_WINDOW_MS", 60000)
	viper.SetDefault("RATE_LIMIT_MAX", 60)
	viper.SetDefault("RATE_LIMIT_PURGE_SECONDS", 60)
	viper.SetDefault("RATE_LIMIT_STORE", "memory")

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSeconds) * time.Second
}

func (c *Config) WebhookRetryBackoff() time.Duration {
	return time.Duration(c.WebhookRetryBackoffMinutes) * time.Minute
}

func (c *Config) WebhookRetrySweep() time.Duration {
	return time.Duration(c.WebhookRetrySweepSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func (c *Config) RateLimitPurge() time.Duration {
	return time.Duration(c.RateLimitPurgeSeconds) * time.Second
}
