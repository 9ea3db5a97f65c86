package main

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"ORDER_SERVICE_NAME,default=order"`
	Env         string `env:"APP_ENV,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogPretty   bool   `env:"LOG_PRETTY,default=false"`

	HTTPAddr    string `env:"ORDER_HTTP_ADDR,default=:8083"`
	DBPath      string `env:"ORDER_DB_PATH,default=./data/orders.db"`
	RabbitURL   string `env:"RABBITMQ_URL"`
	Queue       string `env:"Q_ORDERS,default=orders.ledger"`
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("order config: %w", err)
	}
	return cfg, nil
}
