package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"TimeBank"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"timebank"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Store struct {
		Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
	}

	Auth struct {
		JWTSecret   string   `envconfig:"JWT_SECRET"`
		CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	TimeBank struct {
		MaxBalance      decimal.Decimal `envconfig:"TIMEBANK_MAX_BALANCE" default:"100"`
		StartingBalance decimal.Decimal `envconfig:"TIMEBANK_STARTING_BALANCE" default:"3"`
		CancelWindow    time.Duration   `envconfig:"SERVICE_CANCEL_WINDOW" default:"24h"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if c.TimeBank.StartingBalance.IsNegative() {
		return fmt.Errorf("TIMEBANK_STARTING_BALANCE must not be negative")
	}

	if c.TimeBank.MaxBalance.IsPositive() && c.TimeBank.StartingBalance.GreaterThan(c.TimeBank.MaxBalance) {
		return fmt.Errorf("TIMEBANK_STARTING_BALANCE must not exceed TIMEBANK_MAX_BALANCE")
	}

	if c.TimeBank.CancelWindow < 0 {
		return fmt.Errorf("SERVICE_CANCEL_WINDOW must not be negative")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
