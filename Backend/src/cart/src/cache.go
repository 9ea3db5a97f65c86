package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache keeps rendered cart views keyed by customer id and a generation.
// Delete bumps the generation, so a view read before a mutation and written
// after it lands under a key nobody reads any more.
type CartCache interface {
	// Get returns the cached view, or ErrCacheMiss with the generation to pass to Set.
	Get(ctx context.Context, customerID string) (*CartView, int64, error)
	Set(ctx context.Context, customerID string, gen int64, view *CartView) error
	Delete(ctx context.Context, customerID string) error
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) CartCache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func genKey(customerID string) string { return "cart:gen:" + customerID }

func viewKey(customerID string, gen int64) string {
	return "cart:view:" + customerID + ":" + strconv.FormatInt(gen, 10)
}

func (c *redisCache) Get(ctx context.Context, customerID string) (*CartView, int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(customerID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis get generation: %w", err)
	}
	raw, err := c.rdb.Get(ctx, viewKey(customerID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, ErrCacheMiss
	}
	if err != nil {
		return nil, gen, fmt.Errorf("redis get: %w", err)
	}
	var v CartView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, gen, fmt.Errorf("decode cached cart: %w", err)
	}
	return &v, gen, nil
}

func (c *redisCache) Set(ctx context.Context, customerID string, gen int64, view *CartView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, viewKey(customerID, gen), raw, c.ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, customerID string) error {
	return c.rdb.Incr(ctx, genKey(customerID)).Err()
}

// noopCache is used when no Redis address is configured.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*CartView, int64, error) { return nil, 0, ErrCacheMiss }
func (noopCache) Set(context.Context, string, int64, *CartView) error   { return nil }
func (noopCache) Delete(context.Context, string) error                  { return nil }
