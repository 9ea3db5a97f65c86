package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/ahinestrog/bookstore-storefront/rpc/catalogrpc"
)

var ErrBookNotFound = errors.New("book not found")

// BookLookup resolves the catalogue data a cart line needs.
type BookLookup interface {
	// Book returns the cached book unless fresh is set, in which case the catalogue is asked
	// again and the cache refreshed.
	Book(ctx context.Context, id string, fresh bool) (*catalogrpc.Book, error)
}

type CatalogClient struct {
	rpc     catalogrpc.CatalogClient
	cache   *expirable.LRU[string, *catalogrpc.Book]
	timeout time.Duration
}

func NewCatalogClient(rpc catalogrpc.CatalogClient, size int, ttl, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		rpc:     rpc,
		cache:   expirable.NewLRU[string, *catalogrpc.Book](size, nil, ttl),
		timeout: timeout,
	}
}

// DialCatalog opens the gRPC connection to the catalogue service.
func DialCatalog(addr string) (*grpc.ClientConn, error) {
	opts := append(catalogrpc.DialOptions(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial catalog %s: %w", addr, err)
	}
	return cc, nil
}

func (c *CatalogClient) Book(ctx context.Context, id string, fresh bool) (*catalogrpc.Book, error) {
	if !fresh {
		if b, ok := c.cache.Get(id); ok {
			return b, nil
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	b, err := c.rpc.GetBook(ctx, &catalogrpc.GetBookRequest{Id: id})
	if err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.InvalidArgument:
			c.cache.Remove(id)
			return nil, fmt.Errorf("%s: %w", id, ErrBookNotFound)
		}
		return nil, fmt.Errorf("catalog get book %s: %w", id, err)
	}
	c.cache.Add(id, b)
	return b, nil
}
