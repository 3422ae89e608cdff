package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisURL              string `env:"REDIS_URL"`
	CredentialsDir        string `env:"CREDENTIALS_DIR" envDefault:"auth"`
	AccountID             string `env:"ACCOUNT_ID" envDefault:"primary"`
	PairingTTLSeconds     int    `env:"PAIRING_TTL_SECONDS" envDefault:"300"`
	StartTimeoutSeconds   int    `env:"START_TIMEOUT_SECONDS" envDefault:"60"`
	ReconnectDelaySeconds int    `env:"RECONNECT_DELAY_SECONDS" envDefault:"5"`
	MaxReconnectAttempts  int    `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	RateLimitPerMin       int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) PairingTTL() time.Duration {
	return time.Duration(c.PairingTTLSeconds) * time.Second
}

func (c *Config) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.PairingTTLSeconds <= 0 {
		return fmt.Errorf("PAIRING_TTL_SECONDS must be positive")
	}
	if c.StartTimeoutSeconds <= 0 {
		return fmt.Errorf("START_TIMEOUT_SECONDS must be positive")
	}
	if c.ReconnectDelaySeconds <= 0 {
		return fmt.Errorf("RECONNECT_DELAY_SECONDS must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
