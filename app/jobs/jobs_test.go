package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/broker"
	"github.com/uvci/resto/pkg/queue"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, msg broker.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockPublisher) Close() error { return m.Called().Error(0) }

func TestOrderPlacedIsPublished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := new(mockPublisher)
	done := make(chan broker.Message, 1)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(m broker.Message) bool {
		return m.Topic == TopicOrderPlaced && m.Key == "o-1"
	})).Run(func(args mock.Arguments) { done <- args.Get(1).(broker.Message) }).Return(nil).Once()

	q := queue.New(queue.NewMemoryDriver(), queue.Options{})
	d := Register(q, pub)
	q.Start(ctx, 1)

	require.NoError(t, d.OrderPlaced(ctx, models.Order{
		ID: "o-1", UserID: "u-1", TotalPrice: 4500, PaymentMethod: models.PaymentWave,
		OrderItems: []models.OrderItem{{ID: "i-1"}, {ID: "i-2"}},
	}))

	select {
	case msg := <-done:
		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Body, &body))
		assert.Equal(t, "u-1", body["user_id"])
		assert.EqualValues(t, 4500, body["total_price"])
		assert.EqualValues(t, 2, body["items"])
		assert.Equal(t, "application/json", msg.Headers["content-type"])
	case <-time.After(2 * time.Second):
		t.Fatal("order.placed not published")
	}
	pub.AssertExpectations(t)
}

func TestOrderStatusChangedRetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	q := queue.New(queue.NewMemoryDriver(), queue.Options{MaxRetry: 2, Backoff: time.Millisecond})
	d := Register(q, pub)
	q.Start(ctx, 1)

	require.NoError(t, d.OrderStatusChanged(ctx, "o-1", models.StatusPending, models.StatusReady))

	require.Eventually(t, func() bool { return len(q.FailedJobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	failed := q.FailedJobs()[0]
	assert.Equal(t, TopicOrderStatusChanged, failed.JobType)
	assert.Contains(t, failed.Payload, `"to":"ready"`)
	pub.AssertNumberOfCalls(t, "Publish", 2)
}

func TestHandleWithoutPublisher(t *testing.T) {
	err := (&OrderPlaced{OrderID: "o-1"}).Handle(context.Background())
	assert.Error(t, err)
}
