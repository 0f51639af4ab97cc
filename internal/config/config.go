// Package config содержит логику чтения конфигурации сервиса greenledger.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации сервиса greenledger.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	ChainGatewayAddress string `env:"CHAIN_GATEWAY_ADDRESS"`

	EcoTokenAddress          string `env:"ECO_TOKEN_ADDRESS"`
	CarbonCreditTokenAddress string `env:"CARBON_CREDIT_TOKEN_ADDRESS"`
	DemoMode                 bool   `env:"ECO_TOKEN_DEMO_MODE"`

	ConversionRate   decimal.Decimal `env:"ECO_TOKEN_CONVERSION_RATE" envDefault:"1.0"`
	AutoThreshold    int64           `env:"ECO_TOKEN_AUTO_THRESHOLD" envDefault:"100"`
	KgPerCredit      float64         `env:"CARBON_CREDIT_KG_PER_CREDIT" envDefault:"1000"`
	PointsMultiplier float64         `env:"ECO_POINTS_MULTIPLIER" envDefault:"100"`

	AuthSecret     string  `env:"AUTH_SECRET"`
	HandleSuffix   string  `env:"PAYMENT_HANDLE_SUFFIX" envDefault:"greenpay"`
	ChainRateLimit float64 `env:"CHAIN_RATE_LIMIT" envDefault:"5"`

	ReconcileSchedule string `env:"RECONCILE_SCHEDULE" envDefault:"@every 5m"`
	CreditsSchedule   string `env:"CREDITS_SCHEDULE" envDefault:"@hourly"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envChainAddress := cfg.ChainGatewayAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store if empty")
	flag.StringVar(&cfg.ChainGatewayAddress, "c", "", "chain gateway address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envChainAddress != "" {
		cfg.ChainGatewayAddress = envChainAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет числовые параметры.
func (c *Config) Validate() error {
	var errs []error
	if !c.ConversionRate.IsPositive() {
		errs = append(errs, errors.New("ECO_TOKEN_CONVERSION_RATE must be positive"))
	}
	if c.AutoThreshold < 0 {
		errs = append(errs, errors.New("ECO_TOKEN_AUTO_THRESHOLD must not be negative"))
	}
	if c.KgPerCredit <= 0 {
		errs = append(errs, errors.New("CARBON_CREDIT_KG_PER_CREDIT must be positive"))
	}
	if c.PointsMultiplier <= 0 {
		errs = append(errs, errors.New("ECO_POINTS_MULTIPLIER must be positive"))
	}
	if c.ChainRateLimit <= 0 {
		errs = append(errs, errors.New("CHAIN_RATE_LIMIT must be positive"))
	}
	if c.HandleSuffix == "" {
		errs = append(errs, errors.New("PAYMENT_HANDLE_SUFFIX must not be empty"))
	}
	return errors.Join(errs...)
}

// UseDemoMinter сообщает, нужно ли выпускать токены без обращения к шлюзу.
func (c *Config) UseDemoMinter() bool {
	return c.DemoMode || c.ChainGatewayAddress == ""
}
