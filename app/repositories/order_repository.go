package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/event"
)

const (
	tableOrders     = "orders"
	tableOrderItems = "order_items"
)

// SQLOrderRepository is the gorm OrderRepository. It also implements
// OrderTransactor.
type SQLOrderRepository struct {
	db      *gorm.DB
	changes event.Publisher
}

func NewOrderRepository(db *gorm.DB, changes event.Publisher) *SQLOrderRepository {
	return &SQLOrderRepository{db: db, changes: Publisher(changes)}
}

func (r *SQLOrderRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(o).Error; err != nil {
		return translate("create order", err)
	}
	Notify(ctx, r.changes, tableOrders, event.Insert, o.ID)
	return nil
}

func (r *SQLOrderRepository) InsertItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&items).Error; err != nil {
		return translate("insert order items", err)
	}
	Notify(ctx, r.changes, tableOrderItems, event.Insert, items[0].OrderID)
	return nil
}

// CreateOrderWithItems writes the header and its lines in one transaction.
func (r *SQLOrderRepository) CreateOrderWithItems(ctx context.Context, o *models.Order, items []models.OrderItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = o.ID
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Omit(clause.Associations).Create(&items).Error
	})
	if err != nil {
		return translate("create order with items", err)
	}
	Notify(ctx, r.changes, tableOrders, event.Insert, o.ID)
	Notify(ctx, r.changes, tableOrderItems, event.Insert, o.ID)
	return nil
}

func (r *SQLOrderRepository) DeleteOrder(ctx context.Context, id string) error {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Order{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return translate("delete order", err)
	}
	if removed > 0 {
		Notify(ctx, r.changes, tableOrders, event.Delete, id)
	}
	return nil
}

func (r *SQLOrderRepository) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q := r.db.WithContext(ctx).
		Preload("OrderItems", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("OrderItems.MenuItem").
		Order("created_at desc").Order("id desc")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, translate("list orders", err)
	}
	return orders, nil
}

func (r *SQLOrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return translate("update order status", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update order status", gorm.ErrRecordNotFound)
	}
	Notify(ctx, r.changes, tableOrders, event.Update, id)
	return nil
}

func (r *SQLOrderRepository) Orphans(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("created_at < ?", before).
		Where("NOT EXISTS (SELECT 1 FROM order_items WHERE order_items.order_id = orders.id)").
		Pluck("id", &ids).Error
	return ids, translate("find orphan orders", err)
}
