package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidCustomer = errors.New("customer id is required")
	ErrItemNotFound    = errors.New("book is not in the cart")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrBookUnavailable = errors.New("book is not available")
)

// ErrInsufficientStock reports a line that asks for more copies than the catalogue holds.
type ErrInsufficientStock struct {
	BookID    string
	Requested int64
	Available int32
}

func (e ErrInsufficientStock) Error() string {
	return fmt.Sprintf("book %s: requested %d, only %d in stock", e.BookID, e.Requested, e.Available)
}

type Service struct {
	repo   CartRepository
	books  BookLookup
	cache  CartCache
	events rabbit.Publisher
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

func NewService(repo CartRepository, books BookLookup, cache CartCache, pub rabbit.Publisher, log zerolog.Logger) *Service {
	if cache == nil {
		cache = noopCache{}
	}
	return &Service{
		repo:   repo,
		books:  books,
		cache:  cache,
		events: pub,
		log:    log,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func validCustomer(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidCustomer
	}
	return nil
}

// Cart returns the customer's cart, creating an empty one on first use.
func (s *Service) Cart(ctx context.Context, customerID string) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	v, gen, cerr := s.cache.Get(ctx, customerID)
	if cerr == nil {
		return v, nil
	}
	miss := errors.Is(cerr, ErrCacheMiss)
	if !miss {
		s.log.Warn().Err(cerr).Str("customer", customerID).Msg("cart cache read failed")
	}

	c, err := s.repo.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	view := toCartView(c)
	if miss {
		if err := s.cache.Set(ctx, customerID, gen, view); err != nil {
			s.log.Warn().Err(err).Str("customer", customerID).Msg("cart cache write failed")
		}
	}
	return view, nil
}

// AddItem adds qty copies after checking them against fresh catalogue stock.
func (s *Service) AddItem(ctx context.Context, customerID, bookID string, qty int32) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.repo.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	already, _ := c.find(bookID)

	book, err := s.books.Book(ctx, bookID, true)
	if err != nil {
		return nil, err
	}
	if !book.Visible {
		return nil, ErrBookUnavailable
	}
	// int64 so a huge qty cannot wrap past the stock check.
	if want := int64(already.Qty) + int64(qty); want > int64(book.Stock) {
		return nil, ErrInsufficientStock{BookID: bookID, Requested: want, Available: book.Stock}
	}

	c, err = s.repo.AddItem(ctx, customerID, CartItem{
		BookID:         bookID,
		Title:          book.Title,
		CoverURL:       book.CoverImage,
		UnitPriceCents: book.Price.Cents,
		Qty:            qty,
	})
	if err != nil {
		return nil, err
	}
	return s.fresh(ctx, c), nil
}

// SetQuantity overwrites a line's quantity; zero or less removes it.
func (s *Service) SetQuantity(ctx context.Context, customerID, bookID string, qty int32) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	if qty > 0 {
		book, err := s.books.Book(ctx, bookID, true)
		if err != nil {
			return nil, err
		}
		if qty > book.Stock {
			return nil, ErrInsufficientStock{BookID: bookID, Requested: int64(qty), Available: book.Stock}
		}
	}
	c, err := s.repo.SetQty(ctx, customerID, bookID, qty)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.fresh(ctx, c), nil
}

// Decrement takes one copy off the line, removing it at zero.
func (s *Service) Decrement(ctx context.Context, customerID, bookID string) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	c, err := s.repo.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, ok := c.find(bookID); !ok {
		return nil, ErrItemNotFound
	}
	c, err = s.repo.RemoveItem(ctx, customerID, bookID, 1)
	if err != nil {
		return nil, err
	}
	return s.fresh(ctx, c), nil
}

// Remove drops the line. Removing a book that is not in the cart is not an error.
func (s *Service) Remove(ctx context.Context, customerID, bookID string) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	c, err := s.repo.RemoveItem(ctx, customerID, bookID, 0)
	if err != nil {
		return nil, err
	}
	return s.fresh(ctx, c), nil
}

func (s *Service) Clear(ctx context.Context, customerID string) (*CartView, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	c, err := s.repo.Clear(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.fresh(ctx, c), nil
}

// Checkout re-validates stock, announces the order and empties the cart.
func (s *Service) Checkout(ctx context.Context, customerID string) (*Receipt, error) {
	if err := validCustomer(customerID); err != nil {
		return nil, err
	}
	c, err := s.repo.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range c.Items {
		book, err := s.books.Book(ctx, it.BookID, true)
		if err != nil {
			return nil, err
		}
		if it.Qty > book.Stock {
			return nil, ErrInsufficientStock{BookID: it.BookID, Requested: int64(it.Qty), Available: book.Stock}
		}
	}

	view := toCartView(c)
	receipt := &Receipt{
		OrderNumber: s.newID(),
		OrderDate:   s.now().UTC(),
		CustomerID:  customerID,
		Items:       view.Items,
		Total:       view.Total,
	}

	if s.events != nil {
		payload := events.CheckedOutPayload{
			OrderID:    receipt.OrderNumber,
			CustomerID: customerID,
			TotalCents: view.Total.Cents,
			PlacedAt:   receipt.OrderDate,
		}
		for _, it := range view.Items {
			payload.Items = append(payload.Items, events.CheckedOutItem{
				BookID:    it.BookID,
				Title:     it.Title,
				Qty:       it.Quantity,
				UnitCents: it.UnitPrice.Cents,
				LineCents: it.LineTotal.Cents,
			})
		}
		if err := s.events.PublishJSON(ctx, events.RKCartCheckedOut, payload); err != nil {
			return nil, fmt.Errorf("publish checkout: %w", err)
		}
	}

	if _, err := s.Clear(ctx, customerID); err != nil {
		return nil, fmt.Errorf("clear after checkout: %w", err)
	}
	s.log.Info().Str("order", receipt.OrderNumber).Str("customer", customerID).Int64("total_cents", view.Total.Cents).Msg("order placed")
	return receipt, nil
}

// fresh renders c and drops any cached view of it.
func (s *Service) fresh(ctx context.Context, c *Cart) *CartView {
	if err := s.cache.Delete(ctx, c.CustomerID); err != nil {
		s.log.Warn().Err(err).Str("customer", c.CustomerID).Msg("cart cache invalidation failed")
	}
	return toCartView(c)
}
