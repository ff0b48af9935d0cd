package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWriter struct{ mock.Mock }

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(ctx, msgs).Error(0)
}

func (m *mockWriter) Close() error { return m.Called().Error(0) }

func TestNewSelectsDriver(t *testing.T) {
	pub, err := New(context.Background(), Config{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, LogPublisher{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), Message{Topic: "order.placed"}))

	_, err = New(context.Background(), Config{Driver: "nats"})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Driver: "kafka"})
	assert.Error(t, err, "brokers are required")

	_, err = New(context.Background(), Config{Driver: "rabbitmq"})
	assert.Error(t, err, "url is required")
}

func TestKafkaPublish(t *testing.T) {
	w := new(mockWriter)
	k := &Kafka{w: w}

	w.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		m := msgs[0]
		return string(m.Key) == "order-1" &&
			string(m.Value) == `{"status":"ready"}` &&
			m.Headers[0].Key == "event" && string(m.Headers[0].Value) == "order.status_changed"
	})).Return(nil).Once()
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Once()
	w.On("Close").Return(nil)

	msg := Message{Topic: "order.status_changed", Key: "order-1", Body: []byte(`{"status":"ready"}`)}
	require.NoError(t, k.Publish(context.Background(), msg))

	err := k.Publish(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker/kafka")

	require.NoError(t, k.Close())
	w.AssertExpectations(t)
}

func TestToPublishing(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := toPublishing(Message{Topic: "order.placed", Key: "o1", Body: []byte("{}"), Headers: map[string]string{"source": "checkout"}}, now)

	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, "o1", p.CorrelationId)
	assert.Equal(t, now, p.Timestamp)
	assert.Equal(t, "checkout", p.Headers["source"])
}
