package kitchen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cafe-pos/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of an AMQP channel the relay needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Relay mirrors every hub event onto a fanout exchange named after Topic so
// displays attached to other instances see the same stream.
type Relay struct {
	hub      *Hub
	pub      Publisher
	exchange string
	log      *logger.Logger
}

func NewRelay(hub *Hub, pub Publisher, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.Discard()
	}
	return &Relay{hub: hub, pub: pub, exchange: Topic, log: log}
}

// Run forwards events until ctx is cancelled or the hub shuts down.
// Publish failures are logged and the event is skipped.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.hub.Subscribe()
	defer r.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case body, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := r.forward(ctx, body); err != nil {
				r.log.Error("kitchen.relay", "", "failed to relay kitchen event", err,
					slog.String("exchange", r.exchange))
			}
		}
	}
}

func (r *Relay) forward(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.pub.PublishWithContext(ctx,
		r.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		})
}

// DialAMQP connects to the broker, retrying with backoff, and declares the
// fanout exchange. The caller closes the returned connection.
func DialAMQP(ctx context.Context, url string, attempts int, log *logger.Logger) (*amqp.Connection, *amqp.Channel, error) {
	if attempts <= 0 {
		attempts = 5
	}
	var (
		conn *amqp.Connection
		err  error
	)
	backoff := time.Second
	for i := 1; i <= attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("kitchen.relay", "", "broker not reachable, retrying",
			slog.Int("attempt", i), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Topic, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}
