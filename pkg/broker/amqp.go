package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes to a durable topic exchange with publisher confirms.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

func DialAMQP(ctx context.Context, url, exchange string) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("broker/amqp: AMQP_URL is empty")
	}
	if exchange == "" {
		exchange = "resto.orders"
	}

	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("broker/amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker/amqp: channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker/amqp: declare %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broker/amqp: confirm mode: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return &AMQP{conn: conn, ch: ch, acks: acks, exchange: exchange}, nil
}

func toPublishing(msg Message, now time.Time) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		Timestamp:     now.UTC(),
		CorrelationId: msg.Key,
		Headers:       headers,
		Body:          msg.Body,
	}
}

// Publish waits for the broker's ack. Calls are serialized so confirms match
// their publishing.
func (a *AMQP) Publish(ctx context.Context, msg Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ch.PublishWithContext(ctx, a.exchange, msg.Topic, false, false, toPublishing(msg, time.Now())); err != nil {
		return fmt.Errorf("broker/amqp: publish %s: %w", msg.Topic, err)
	}
	select {
	case conf, ok := <-a.acks:
		if !ok {
			return errors.New("broker/amqp: channel closed before confirm")
		}
		if !conf.Ack {
			return fmt.Errorf("broker/amqp: publish %s: nack from broker", msg.Topic)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AMQP) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn.Close()
	}
	return nil
}
