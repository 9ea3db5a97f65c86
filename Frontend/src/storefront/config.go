package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	CartModeLocal   = "local"
	CartModeSession = "session"
	CartModeRemote  = "remote"
)

type Config struct {
	ServiceName string `env:"STOREFRONT_SERVICE_NAME,default=storefront"`
	Env         string `env:"APP_ENV,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogPretty   bool   `env:"LOG_PRETTY,default=false"`

	Addr string `env:"STOREFRONT_ADDR,default=:3000"`

	// APIBase is the gateway in front of the backend services. The URLs below
	// default to well-known paths under it.
	APIBase      string `env:"API_BASE,default=http://localhost:8762"`
	CatalogueURL string `env:"CATALOGUE_URL"`
	BooksURL     string `env:"BOOKS_URL"`
	CartURL      string `env:"CART_URL"`
	OrdersURL    string `env:"ORDERS_URL"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=10s"`
	BookCacheSize   int           `env:"BOOK_CACHE_SIZE,default=256"`
	BookCacheTTL    time.Duration `env:"BOOK_CACHE_TTL,default=30s"`

	CartMode     string        `env:"CART_MODE,default=local"`
	CookieSecret string        `env:"COOKIE_SECRET"`
	SecureCookie bool          `env:"SECURE_COOKIES,default=false"`
	SessionSize  int           `env:"SESSION_CART_SIZE,default=10000"`
	SessionTTL   time.Duration `env:"SESSION_CART_TTL,default=24h"`

	RateLimit   float64 `env:"API_RATE_LIMIT,default=20"`
	RateBurst   int     `env:"API_RATE_BURST,default=40"`
	CORSOrigins string  `env:"CORS_ORIGINS,default=*"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("storefront config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	base := strings.TrimRight(c.APIBase, "/")
	if c.CatalogueURL == "" {
		c.CatalogueURL = base + "/ms-books-catalogue/v1/api/books"
	}
	if c.BooksURL == "" {
		c.BooksURL = base + "/v1/api/books"
	}
	if c.CartURL == "" {
		c.CartURL = base + "/ms-books-orders/v1/api/carts"
	}
	if c.OrdersURL == "" {
		c.OrdersURL = base + "/ms-books-orders/v1/api/orders"
	}
	c.OrdersURL = strings.TrimRight(c.OrdersURL, "/")
	c.CatalogueURL = strings.TrimRight(c.CatalogueURL, "/")
	c.BooksURL = strings.TrimRight(c.BooksURL, "/")
	c.CartURL = strings.TrimRight(c.CartURL, "/")
	c.CartMode = strings.ToLower(strings.TrimSpace(c.CartMode))
}

func (c *Config) validate() error {
	switch c.CartMode {
	case CartModeLocal, CartModeSession, CartModeRemote:
	default:
		return fmt.Errorf("storefront config: unknown CART_MODE %q", c.CartMode)
	}
	if c.CookieSecret != "" && len(c.CookieSecret) < 16 {
		return errors.New("storefront config: COOKIE_SECRET must be at least 16 bytes")
	}
	return nil
}
