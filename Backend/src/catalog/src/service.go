package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
)

const (
	defaultPageSize int32 = 20
	maxPageSize     int32 = 100
	// searchLimit caps the unpaged /search results.
	searchLimit int32 = 100
)

// normalizePage applies the zero-based page defaults and clamps the size.
func normalizePage(page, size int32) (int32, int32) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

type Service struct {
	repo   Repository
	events rabbit.Publisher
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, pub rabbit.Publisher, log zerolog.Logger) *Service {
	return &Service{repo: repo, events: pub, log: log, now: time.Now}
}

func (s *Service) Get(ctx context.Context, id int64) (*Book, error) {
	return s.repo.Get(ctx, id)
}

// Page lists the books matching f one page at a time.
func (s *Service) Page(ctx context.Context, f Filter, page, size int32) ([]*Book, int64, int32, int32, error) {
	page, size = normalizePage(page, size)
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	items, err := s.repo.List(ctx, f, size, page*size)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	return items, total, page, size, nil
}

func (s *Service) Search(ctx context.Context, f Filter) ([]*Book, error) {
	return s.repo.List(ctx, f, searchLimit, 0)
}

func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	return s.repo.Categories(ctx)
}

// ApplyCheckout takes the ordered quantities off the stock and announces the new levels.
func (s *Service) ApplyCheckout(ctx context.Context, p events.CheckedOutPayload) error {
	lines := make([]StockLine, 0, len(p.Items))
	for _, it := range p.Items {
		id, err := strconv.ParseInt(it.BookID, 10, 64)
		if err != nil || it.Qty <= 0 {
			s.log.Warn().Str("order", p.OrderID).Str("book", it.BookID).Int32("qty", it.Qty).Msg("skipping invalid checkout line")
			continue
		}
		lines = append(lines, StockLine{BookID: id, Qty: it.Qty})
	}
	if len(lines) == 0 {
		return nil
	}

	levels, err := s.repo.DecrementStock(ctx, lines)
	if err != nil {
		return fmt.Errorf("order %s: %w", p.OrderID, err)
	}
	s.log.Info().Str("order", p.OrderID).Int("lines", len(lines)).Msg("stock decremented")

	if s.events == nil {
		return nil
	}
	out := events.StockDecrementedPayload{OrderID: p.OrderID, Levels: make(map[string]int32, len(levels))}
	for id, lvl := range levels {
		out.Levels[strconv.FormatInt(id, 10)] = lvl
	}
	if err := s.events.PublishJSON(ctx, events.RKStockDecremented, out); err != nil {
		// stock is already committed; a lost notification is only logged
		s.log.Error().Err(err).Str("order", p.OrderID).Msg("publish stock levels")
	}
	return nil
}
