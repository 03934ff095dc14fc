// Package notify publishes finalized run stats to a message broker.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gyeh/payrun/internal/model"
)

// Exchange receives every stats message.
const Exchange = "payrun.events"

// Publisher delivers finalized stats.
type Publisher interface {
	PublishStats(ctx context.Context, mode model.RunMode, stats *model.PaymentEventStats) error
}

// RoutingKey returns the routing key for stats of a run mode.
func RoutingKey(mode model.RunMode) string {
	return "stats." + string(mode)
}

// Message builds the broker message for stats.
func Message(stats *model.PaymentEventStats) (amqp.Publishing, error) {
	body, err := json.Marshal(stats)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal stats: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    stats.RunID,
		Timestamp:    time.Now().UTC(),
		Type:         "payment_event_stats",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}, nil
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes with publisher confirms on a topic exchange.
type AMQP struct {
	conn     *amqp.Connection
	ch       channel
	confirms <-chan amqp.Confirmation
	mu       sync.Mutex
}

// DialAMQP connects to url, declares the exchange and enables confirms.
func DialAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &AMQP{
		conn:     conn,
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// PublishStats publishes stats and waits for the broker's confirm.
func (a *AMQP) PublishStats(ctx context.Context, mode model.RunMode, stats *model.PaymentEventStats) error {
	msg, err := Message(stats)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := RoutingKey(mode)
	if err := a.ch.PublishWithContext(ctx, Exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	select {
	case confirmed := <-a.confirms:
		if !confirmed.Ack {
			return fmt.Errorf("publish %s: message not confirmed", key)
		}
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", key, ctx.Err())
	}
	return nil
}

// Close closes the channel and connection.
func (a *AMQP) Close() error {
	a.ch.Close()
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
