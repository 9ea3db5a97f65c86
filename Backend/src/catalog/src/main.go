package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/httpx"
	"github.com/ahinestrog/bookstore-storefront/pkg/logger"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
	"github.com/ahinestrog/bookstore-storefront/pkg/shutdown"
	"github.com/ahinestrog/bookstore-storefront/rpc/catalogrpc"
)

func openSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("grpc", cfg.GRPCAddr).
		Str("db", cfg.DBPath).
		Bool("rabbit", cfg.RabbitURL != "").
		Msg("starting catalog service")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("catalog service stopped")
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

	repo := NewSQLiteRepo(db)
	if err := repo.Init(ctx); err != nil {
		return err
	}
	if cfg.SeedOnStart {
		n, err := Seed(ctx, repo)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if n > 0 {
			log.Info().Int("books", n).Msg("seeded catalogue")
		}
	}

	var pub rabbit.Publisher
	var mq *rabbit.Rabbit
	if cfg.RabbitURL != "" {
		mq, err = rabbit.Dial(cfg.RabbitURL, events.Exchange, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		pub = mq
	}
	svc := NewService(repo, pub, log)
	if mq != nil {
		if err := svc.StartConsumers(ctx, mq, cfg.StockQueue); err != nil {
			return err
		}
		log.Info().Str("queue", cfg.StockQueue).Msg("rabbit consumers started")
	}

	grpcSrv := grpc.NewServer()
	catalogrpc.RegisterCatalogServer(grpcSrv, NewCatalogServer(svc))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	metrics := httpx.NewMetrics("catalog")
	router := NewRouter(svc)
	router.Handle("/metrics", metrics.Handler())
	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Api-Version"},
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.AccessLog(log)(httpx.Recover(metrics.Instrument(c.Handler(router)))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC listening")
		return grpcSrv.Serve(lis)
	})
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
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
