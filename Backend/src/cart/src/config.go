package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"CART_SERVICE_NAME,default=cart"`
	Env         string `env:"APP_ENV,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogPretty   bool   `env:"LOG_PRETTY,default=false"`

	HTTPAddr    string `env:"CART_HTTP_ADDR,default=:8082"`
	DBPath      string `env:"CART_DB_PATH,default=./data/cart.db"`
	CatalogAddr string `env:"CATALOG_GRPC_ADDR,default=localhost:50051"`
	RabbitURL   string `env:"RABBITMQ_URL"`
	CORSOrigins string `env:"CORS_ORIGINS,default=*"`

	// RedisAddr enables the cart view cache when set.
	RedisAddr string        `env:"REDIS_ADDR"`
	RedisDB   int           `env:"REDIS_DB,default=0"`
	CacheTTL  time.Duration `env:"CART_CACHE_TTL,default=5m"`

	BookCacheSize  int           `env:"BOOK_CACHE_SIZE,default=512"`
	BookCacheTTL   time.Duration `env:"BOOK_CACHE_TTL,default=1m"`
	CatalogTimeout time.Duration `env:"CATALOG_TIMEOUT,default=3s"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("cart config: %w", err)
	}
	return cfg, nil
}
