// Package rabbit wraps a RabbitMQ topic exchange for JSON domain events.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher is what services depend on; *Rabbit satisfies it and tests swap in fakes.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
}

func Dial(url, exchange string, log zerolog.Logger) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit exchange %s: %w", exchange, err)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (r *Rabbit) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Handler processes one delivery. A non-nil error requeues the message once;
// a redelivered message that fails again is dropped.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// ConsumeTopic declares a durable queue, binds it to the given routing keys and
// dispatches deliveries to handler until ctx is done or the channel closes.
func (r *Rabbit) ConsumeTopic(ctx context.Context, queue string, bindings []string, prefetch int, handler Handler) error {
	q, err := r.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	for _, rk := range bindings {
		if err := r.ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s -> %s: %w", rk, q.Name, err)
		}
	}
	if prefetch > 0 {
		if err := r.ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("qos: %w", err)
		}
	}
	msgs, err := r.ch.ConsumeWithContext(ctx, q.Name, queue+"-worker", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for d := range msgs {
			if err := handler(ctx, d.RoutingKey, d.Body); err != nil {
				r.log.Error().Err(err).Str("rk", d.RoutingKey).Bool("redelivered", d.Redelivered).Msg("handler failed")
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
		r.log.Info().Str("queue", queue).Msg("consumer stopped")
	}()
	return nil
}
