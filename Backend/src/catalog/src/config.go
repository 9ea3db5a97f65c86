package main

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"CATALOG_SERVICE_NAME,default=catalog"`
	Env         string `env:"APP_ENV,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogPretty   bool   `env:"LOG_PRETTY,default=false"`

	HTTPAddr string `env:"CATALOG_HTTP_ADDR,default=:8081"`
	GRPCAddr string `env:"CATALOG_GRPC_ADDR,default=:50051"`
	DBPath   string `env:"CATALOG_DB_PATH,default=./data/catalog.db"`
	// SeedOnStart loads the embedded catalogue when the books table is empty.
	SeedOnStart bool `env:"CATALOG_SEED,default=true"`

	RabbitURL   string `env:"RABBITMQ_URL"`
	StockQueue  string `env:"Q_CATALOG_STOCK,default=catalog.stock"`
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("catalog config: %w", err)
	}
	return cfg, nil
}
