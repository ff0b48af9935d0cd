package rest

import (
	"context"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
)

// orderSelect embeds the lines and their item names in one read.
const orderSelect = "*,order_items(*,menu_items(name))"

type orderRow struct {
	ID            string               `json:"id"`
	UserID        string               `json:"user_id"`
	ClientPhone   string               `json:"client_phone"`
	Status        models.OrderStatus   `json:"status"`
	TotalPrice    int                  `json:"total_price"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CreatedAt     time.Time            `json:"created_at"`
}

type orderItemRow struct {
	ID             string   `json:"id"`
	OrderID        string   `json:"order_id"`
	MenuItemID     string   `json:"menu_item_id"`
	Quantity       int      `json:"quantity"`
	PriceAtOrder   int      `json:"price_at_order"`
	SelectedOption []string `json:"selected_option"`
	Notes          string   `json:"notes"`
}

type OrderRepository struct{ s *store }

func (r *OrderRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	if o.ID == "" {
		o.ID = models.NewID()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	row := orderRow{
		ID:            o.ID,
		UserID:        o.UserID,
		ClientPhone:   o.ClientPhone,
		Status:        o.Status,
		TotalPrice:    o.TotalPrice,
		PaymentMethod: o.PaymentMethod,
		CreatedAt:     o.CreatedAt,
	}
	if err := r.s.send(ctx, "create order", r.s.post("orders").Body(row), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "orders", event.Insert, o.ID)
	return nil
}

func (r *OrderRepository) InsertItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]orderItemRow, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = models.NewID()
		}
		it := items[i]
		rows[i] = orderItemRow{
			ID:             it.ID,
			OrderID:        it.OrderID,
			MenuItemID:     it.MenuItemID,
			Quantity:       it.Quantity,
			PriceAtOrder:   it.PriceAtOrder,
			SelectedOption: it.SelectedOption,
			Notes:          it.Notes,
		}
	}
	if err := r.s.send(ctx, "insert order items", r.s.post("order_items").Body(rows), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "order_items", event.Insert, items[0].OrderID)
	return nil
}

// DeleteOrder removes the lines first so it works without a cascading
// foreign key. Both deletes are idempotent and retried.
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) error {
	items := r.s.delete("order_items").Query("order_id", eq(id)).Retry(readAttempts, retryWait)
	if err := r.s.send(ctx, "delete order items", items, nil); err != nil {
		return err
	}
	var removed []orderRow
	header := r.s.delete("orders").Query("id", eq(id)).Retry(readAttempts, retryWait)
	if err := r.s.send(ctx, "delete order", header, &removed); err != nil {
		return err
	}
	if len(removed) > 0 {
		repositories.Notify(ctx, r.s.changes, "orders", event.Delete, id)
	}
	return nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, f repositories.OrderFilter) ([]models.Order, error) {
	req := r.s.get("orders").Query("select", orderSelect).Query("order", "created_at.desc")
	if f.UserID != "" {
		req = req.Query("user_id", eq(f.UserID))
	}
	var orders []models.Order
	return orders, r.s.send(ctx, "list orders", req, &orders)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	var updated []orderRow
	req := r.s.patch("orders").Query("id", eq(id)).Body(map[string]any{"status": status})
	if err := r.s.send(ctx, "update order status", req, &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return apperr.ErrNotFound
	}
	repositories.Notify(ctx, r.s.changes, "orders", event.Update, id)
	return nil
}

func (r *OrderRepository) Orphans(ctx context.Context, before time.Time) ([]string, error) {
	var rows []struct {
		ID         string `json:"id"`
		OrderItems []struct {
			ID string `json:"id"`
		} `json:"order_items"`
	}
	req := r.s.get("orders").
		Query("select", "id,order_items(id)").
		Query("created_at", "lt."+before.UTC().Format(time.RFC3339))
	if err := r.s.send(ctx, "find orphan orders", req, &rows); err != nil {
		return nil, err
	}
	var ids []string
	for _, row := range rows {
		if len(row.OrderItems) == 0 {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}
