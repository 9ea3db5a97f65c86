package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
	"github.com/ahinestrog/bookstore-storefront/pkg/logger"
	"github.com/ahinestrog/bookstore-storefront/pkg/shutdown"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().
		Str("addr", cfg.Addr).
		Str("catalogue", cfg.CatalogueURL).
		Str("books", cfg.BooksURL).
		Str("cart", cfg.CartURL).
		Str("orders", cfg.OrdersURL).
		Str("cart_mode", cfg.CartMode).
		Msg("starting storefront")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("storefront stopped")
	}
}

func newCartManagers(cfg Config, client *http.Client, log zerolog.Logger) (CartManagerFactory, error) {
	switch cfg.CartMode {
	case CartModeRemote:
		return RemoteCarts(cfg.CartURL, client), nil
	case CartModeSession:
		return StoredCarts(NewSessionStorage(cfg.SessionSize, cfg.SessionTTL), time.Now), nil
	default:
		secret := []byte(cfg.CookieSecret)
		if len(secret) == 0 {
			secret = make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return nil, fmt.Errorf("generate cookie secret: %w", err)
			}
			log.Warn().Msg("COOKIE_SECRET not set, carts will not survive a restart")
		}
		storage, err := NewCookieStorage(secret, cfg.SecureCookie)
		if err != nil {
			return nil, err
		}
		return StoredCarts(storage, time.Now), nil
	}
}

func run(cfg Config, log zerolog.Logger) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	client := &http.Client{Timeout: cfg.UpstreamTimeout}
	carts, err := newCartManagers(cfg, client, log)
	if err != nil {
		return err
	}
	catalogue := NewCatalogueClient(cfg.CatalogueURL, client, cfg.BookCacheSize, cfg.BookCacheTTL)
	// orders are only recorded when checkout goes through the cart service
	var orders OrderHistory
	if cfg.CartMode == CartModeRemote {
		orders = NewOrdersClient(cfg.OrdersURL, client)
	}
	store, err := NewStorefront(catalogue, carts, orders, cfg.UpstreamTimeout, cfg.SecureCookie)
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	limiter := httpx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, customerKeyFunc)
	stop := make(chan struct{})
	defer close(stop)
	limiter.StartCleanup(5*time.Minute, stop)

	handler := newRouter(routerDeps{
		log:         log,
		store:       store,
		books:       NewProxy("books", BooksResolver(cfg.CatalogueURL, cfg.BooksURL), client),
		cart:        NewProxy("cart", CartResolver(cfg.CartURL), client),
		limiter:     limiter,
		metrics:     httpx.NewMetrics("storefront"),
		corsOrigins: cfg.CORSOrigins,
		secure:      cfg.SecureCookie,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Warn().Msg("shutting down...")
		sctx, scancel := context.WithTimeout(context.Background(), shutdown.Grace)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
