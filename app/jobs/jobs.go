// Package jobs holds the queued order events. Each job publishes one message
// to the configured broker; a failing broker is retried by the queue and the
// job lands in failed_jobs once retries run out.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/broker"
	"github.com/uvci/resto/pkg/queue"
)

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status_changed"
)

// OrderPlaced announces a new order.
type OrderPlaced struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Total         int       `json:"total_price"`
	PaymentMethod string    `json:"payment_method"`
	Items         int       `json:"items"`
	PlacedAt      time.Time `json:"placed_at"`

	pub broker.Publisher
}

func (OrderPlaced) JobName() string { return TopicOrderPlaced }

func (j *OrderPlaced) Handle(ctx context.Context) error {
	return publish(ctx, j.pub, TopicOrderPlaced, j.OrderID, j)
}

// OrderStatusChanged announces a kitchen status change.
type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`

	pub broker.Publisher
}

func (OrderStatusChanged) JobName() string { return TopicOrderStatusChanged }

func (j *OrderStatusChanged) Handle(ctx context.Context) error {
	return publish(ctx, j.pub, TopicOrderStatusChanged, j.OrderID, j)
}

func publish(ctx context.Context, pub broker.Publisher, topic, key string, v any) error {
	if pub == nil {
		return fmt.Errorf("jobs: %s: no publisher", topic)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jobs: %s: %w", topic, err)
	}
	return pub.Publish(ctx, broker.Message{
		Topic:   topic,
		Key:     key,
		Body:    body,
		Headers: map[string]string{"content-type": "application/json"},
	})
}

// Dispatcher queues order events. It satisfies services.OrderEvents.
type Dispatcher struct {
	q   *queue.Manager
	now func() time.Time
}

// Register installs the job factories on q, bound to pub, and returns the
// dispatcher for them.
func Register(q *queue.Manager, pub broker.Publisher) *Dispatcher {
	q.Register(TopicOrderPlaced, func() queue.Job { return &OrderPlaced{pub: pub} })
	q.Register(TopicOrderStatusChanged, func() queue.Job { return &OrderStatusChanged{pub: pub} })
	return &Dispatcher{q: q, now: time.Now}
}

func (d *Dispatcher) OrderPlaced(ctx context.Context, o models.Order) error {
	return d.q.Dispatch(ctx, &OrderPlaced{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Total:         o.TotalPrice,
		PaymentMethod: string(o.PaymentMethod),
		Items:         len(o.OrderItems),
		PlacedAt:      d.now().UTC(),
	})
}

func (d *Dispatcher) OrderStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	return d.q.Dispatch(ctx, &OrderStatusChanged{
		OrderID:   orderID,
		From:      string(from),
		To:        string(to),
		ChangedAt: d.now().UTC(),
	})
}
