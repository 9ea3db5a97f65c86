package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ahinestrog/bookstore-storefront/pkg/events"
	"github.com/ahinestrog/bookstore-storefront/pkg/rabbit"
)

// handleEvent is the RabbitMQ handler for the catalogue queue.
func (s *Service) handleEvent(ctx context.Context, rk string, body []byte) error {
	switch rk {
	case events.RKCartCheckedOut:
		var p events.CheckedOutPayload
		if err := json.Unmarshal(body, &p); err != nil {
			// malformed payloads are not retried
			s.log.Error().Err(err).Str("rk", rk).Msg("bad checkout payload")
			return nil
		}
		return s.ApplyCheckout(ctx, p)
	default:
		s.log.Debug().Str("rk", rk).Msg("ignored event")
		return nil
	}
}

// StartConsumers subscribes the catalogue to checkout events.
func (s *Service) StartConsumers(ctx context.Context, r *rabbit.Rabbit, queue string) error {
	if err := r.ConsumeTopic(ctx, queue, []string{events.RKCartCheckedOut}, 10, s.handleEvent); err != nil {
		return fmt.Errorf("catalog consumers: %w", err)
	}
	return nil
}
