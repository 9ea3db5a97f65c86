package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
)

// Ledger records placed orders from the event stream and serves them back.
type Ledger struct {
	repo *Repository
	log  zerolog.Logger
}

func NewLedger(repo *Repository, log zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, log: log}
}

func (l *Ledger) handleEvent(ctx context.Context, rk string, body []byte) error {
	switch rk {
	case events.RKCartCheckedOut:
		var p events.CheckedOutPayload
		if err := json.Unmarshal(body, &p); err != nil || p.OrderID == "" {
			l.log.Error().Err(err).Str("rk", rk).Msg("bad checkout payload")
			return nil
		}
		return l.record(ctx, p)

	case events.RKStockDecremented:
		var p events.StockDecrementedPayload
		if err := json.Unmarshal(body, &p); err != nil || p.OrderID == "" {
			l.log.Error().Err(err).Str("rk", rk).Msg("bad stock payload")
			return nil
		}
		err := l.repo.UpdateStatus(ctx, p.OrderID, OrderStatusFulfilled)
		if errors.Is(err, ErrNotFound) {
			// checkout not recorded yet; requeue once
			return fmt.Errorf("fulfil %s: %w", p.OrderID, err)
		}
		if err != nil {
			return err
		}
		l.log.Info().Str("order", p.OrderID).Msg("order fulfilled")
		return nil

	default:
		l.log.Debug().Str("rk", rk).Msg("ignored event")
		return nil
	}
}

func (l *Ledger) record(ctx context.Context, p events.CheckedOutPayload) error {
	o := &Order{
		ID:         p.OrderID,
		CustomerID: p.CustomerID,
		Status:     OrderStatusPlaced,
		TotalCents: p.TotalCents,
		PlacedAt:   p.PlacedAt,
	}
	for _, it := range p.Items {
		o.Items = append(o.Items, OrderItem{
			BookID:    it.BookID,
			Title:     it.Title,
			Qty:       it.Qty,
			UnitCents: it.UnitCents,
			LineCents: it.LineCents,
		})
	}
	created, err := l.repo.CreateOrder(ctx, o)
	if err != nil {
		return err
	}
	if !created {
		l.log.Debug().Str("order", o.ID).Msg("duplicate checkout event")
		return nil
	}
	l.log.Info().Str("order", o.ID).Str("customer", o.CustomerID).Int64("total_cents", o.TotalCents).Msg("order recorded")
	return nil
}

func (l *Ledger) StartConsumers(ctx context.Context, r *rabbit.Rabbit, queue string) error {
	keys := []string{events.RKCartCheckedOut, events.RKStockDecremented}
	if err := r.ConsumeTopic(ctx, queue, keys, 1, l.handleEvent); err != nil {
		return fmt.Errorf("order consumers: %w", err)
	}
	return nil
}
