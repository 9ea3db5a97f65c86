package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
	"github.com/ahinestrog/bookstore-storefront/pkg/logger"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
	"github.com/ahinestrog/bookstore-storefront/pkg/shutdown"
	"github.com/ahinestrog/bookstore-storefront/rpc/catalogrpc"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("db", cfg.DBPath).
		Str("catalog", cfg.CatalogAddr).
		Bool("redis", cfg.RedisAddr != "").
		Bool("rabbit", cfg.RabbitURL != "").
		Msg("starting cart service")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("cart service stopped")
	}
}

func run(cfg Config, log zerolog.Logger) error {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	db, err := openSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cc, err := DialCatalog(cfg.CatalogAddr)
	if err != nil {
		return err
	}
	defer cc.Close()
	books := NewCatalogClient(catalogrpc.NewCatalogClient(cc), cfg.BookCacheSize, cfg.BookCacheTTL, cfg.CatalogTimeout)

	var cache CartCache = noopCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, cart cache disabled")
		} else {
			cache = NewRedisCache(rdb, cfg.CacheTTL)
		}
	}

	var pub rabbit.Publisher
	if cfg.RabbitURL != "" {
		mq, err := rabbit.Dial(cfg.RabbitURL, events.Exchange, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		pub = mq
	}

	svc := NewService(NewSQLiteRepo(db), books, cache, pub, log)
	metrics := httpx.NewMetrics("cart")
	router := NewCartServer(svc).Routes()
	router.Handle("/metrics", metrics.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Api-Version"},
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.AccessLog(log)(httpx.Recover(metrics.Instrument(c.Handler(router)))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Warn().Msg("shutting down...")
		sctx, scancel := context.WithTimeout(context.Background(), shutdown.Grace)
		defer scancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
