package event

import (
	"context"
	"strings"
	"time"
)

// ChangeType is the kind of row change a notification reports.
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
	// Any matches every change type in a subscription mask.
	Any ChangeType = "*"
)

// Change is a realtime notification for one row of one table.
type Change struct {
	Table string     `json:"table"`
	Type  ChangeType `json:"type"`
	ID    string     `json:"id,omitempty"`
	At    time.Time  `json:"at"`
}

// TableTopic is the bus topic carrying changes of table.
func TableTopic(table string) string { return "db." + table }

// Publisher emits change notifications.
type Publisher interface {
	PublishChange(ctx context.Context, c Change)
}

// PublishChange delivers c synchronously to local subscribers of its table.
func (b *Bus) PublishChange(ctx context.Context, c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.Publish(ctx, TableTopic(c.Table), c)
}

// Matches reports whether t passes the mask. An empty mask matches everything.
func Matches(mask []ChangeType, t ChangeType) bool {
	if len(mask) == 0 {
		return true
	}
	for _, m := range mask {
		if m == Any || strings.EqualFold(string(m), string(t)) {
			return true
		}
	}
	return false
}

// SubscribeTable registers fn for changes of table whose type is in mask.
func (b *Bus) SubscribeTable(table string, mask []ChangeType, fn func(ctx context.Context, c Change)) *Subscription {
	return b.Subscribe(TableTopic(table), func(ctx context.Context, payload interface{}) {
		c, ok := payload.(Change)
		if !ok || !Matches(mask, c.Type) {
			return
		}
		fn(ctx, c)
	})
}
