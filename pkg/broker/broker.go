// Package broker publishes order events to an external message broker so
// kitchen displays and notification services can follow orders without
// polling the store.
//
//	pub, err := broker.New(ctx, broker.Config{Driver: "kafka", KafkaBrokers: []string{"localhost:9092"}})
//	err = pub.Publish(ctx, broker.Message{Topic: "order.placed", Key: orderID, Body: payload})
package broker

import (
	"context"
	"fmt"

	"github.com/uvci/resto/pkg/logger"
)

// Message is one event. Topic doubles as the AMQP routing key.
type Message struct {
	Topic   string
	Key     string
	Body    []byte
	Headers map[string]string
}

// Publisher delivers messages to a broker.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Config selects the driver: none, kafka or rabbitmq.
type Config struct {
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string
}

// New connects the configured driver.
func New(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case "", "none", "log":
		return LogPublisher{}, nil
	case "kafka":
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "rabbitmq", "amqp":
		return DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return nil, fmt.Errorf("broker: unsupported BROKER_DRIVER %q (supported: none, kafka, rabbitmq)", cfg.Driver)
	}
}

// LogPublisher only logs. It is the driver when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, msg Message) error {
	logger.WithCtx(ctx).Info("broker: event", "topic", msg.Topic, "key", msg.Key, "bytes", len(msg.Body))
	return nil
}

func (LogPublisher) Close() error { return nil }
