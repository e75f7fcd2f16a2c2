package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/mailer"
	"github.com/MrEthical07/authflow/sqlstore"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type config struct {
	SecretKey string `env:"AUTHFLOW_SECRET_KEY"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"authflow.db"`
	DatabaseConns  int    `env:"DATABASE_MAX_CONNS" envDefault:"10"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile        string `env:"LOG_FILE"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`

	SendEmail   bool   `env:"SEND_EMAIL"`
	EchoCodes   bool   `env:"SEND_VERIFICATION_CODE_IN_RESPONSE"`
	FromEmail   string `env:"DEFAULT_FROM_EMAIL"`
	AWSRegion   string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSKeyID    string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecret   string `env:"AWS_SECRET_ACCESS_KEY"`
	MFAIssuer   string `env:"MFA_ISSUER" envDefault:"app"`
	Metrics     bool   `env:"METRICS_ENABLED" envDefault:"true"`
	OTelMetrics bool   `env:"OTEL_METRICS_ENABLED"`
}

// loadConfig reads an optional .env file, then the process environment.
func loadConfig(envFile string) (config, error) {
	if envFile != "" {
		// A missing file is fine; the environment alone may be complete.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c config) logging() logging.Config {
	return logging.Config{
		Level:       c.LogLevel,
		Development: c.LogDevelopment,
		File:        c.LogFile,
	}
}

func (c config) database() sqlstore.Config {
	return sqlstore.Config{
		Driver:   c.DatabaseDriver,
		DSN:      c.DatabaseURL,
		MaxConns: c.DatabaseConns,
	}
}

func (c config) ses() mailer.SESConfig {
	return mailer.SESConfig{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSKeyID,
		SecretAccessKey: c.AWSSecret,
		From:            c.FromEmail,
	}
}

func (c config) engine() (authflow.Config, error) {
	if len(c.SecretKey) < 32 {
		return authflow.Config{}, errors.New("AUTHFLOW_SECRET_KEY must be at least 32 bytes")
	}

	cfg := authflow.DefaultConfig()
	cfg.Token.SigningKey = []byte(c.SecretKey)
	cfg.Codes.EchoInResponse = c.EchoCodes
	cfg.MFA.Issuer = c.MFAIssuer
	cfg.Mail.Enabled = c.SendEmail
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.Metrics
	return cfg, nil
}
