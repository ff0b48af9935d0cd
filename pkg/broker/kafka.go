package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes every event to one topic, keyed by order id so the events of
// an order stay in one partition. The event type travels in the "event"
// header.
type Kafka struct {
	w messageWriter
}

func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("broker/kafka: KAFKA_BROKERS is empty")
	}
	if topic == "" {
		return nil, errors.New("broker/kafka: KAFKA_TOPIC is empty")
	}
	return &Kafka{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

func toKafka(msg Message) kafka.Message {
	headers := []kafka.Header{{Key: "event", Value: []byte(msg.Topic)}}
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{Key: []byte(msg.Key), Value: msg.Body, Headers: headers, Time: time.Now()}
}

func (k *Kafka) Publish(ctx context.Context, msg Message) error {
	if err := k.w.WriteMessages(ctx, toKafka(msg)); err != nil {
		return fmt.Errorf("broker/kafka: publish %s: %w", msg.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }
