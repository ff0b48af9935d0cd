package services

import (
	"context"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/logger"
)

// OrderView is an order with the label shown in the client history.
type OrderView struct {
	models.Order
	StatusLabel string `json:"status_label"`
}

// History lists the orders of one client.
type History struct {
	orders repositories.OrderRepository
}

func NewHistory(orders repositories.OrderRepository) *History {
	return &History{orders: orders}
}

// List returns the user's orders newest first. A failed read yields an empty
// list.
func (h *History) List(ctx context.Context, userID string) []OrderView {
	orders, err := h.orders.ListOrders(ctx, repositories.OrderFilter{UserID: userID})
	if err != nil {
		logger.WithCtx(ctx).Warn("history: orders unavailable, showing none", "user_id", userID, "error", err)
		return []OrderView{}
	}
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		if o.OrderItems == nil {
			o.OrderItems = []models.OrderItem{}
		}
		out[i] = OrderView{Order: o, StatusLabel: o.Status.Label()}
	}
	return out
}
