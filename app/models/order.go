package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the canonical order lifecycle: pending, ready, delivered.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
)

// NormalizeStatus maps legacy and mixed-case spellings to the canonical
// status. Unknown values are reported as pending with ok false.
func NormalizeStatus(raw string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "awaiting payment":
		return StatusPending, true
	case "ready":
		return StatusReady, true
	case "delivered":
		return StatusDelivered, true
	}
	return StatusPending, false
}

// Next returns the only status this one may move to.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case StatusPending:
		return StatusReady, true
	case StatusReady:
		return StatusDelivered, true
	}
	return "", false
}

// CanTransitionTo allows exactly pending→ready and ready→delivered.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

// Label is the wording shown in the client order history.
func (s OrderStatus) Label() string {
	switch s {
	case StatusReady:
		return "Disponible au retrait"
	case StatusDelivered:
		return "Terminée"
	}
	return "En préparation"
}

// AdminLabel is the wording shown on the admin board.
func (s OrderStatus) AdminLabel() string {
	switch s {
	case StatusReady:
		return "Prête"
	case StatusDelivered:
		return "Livrée"
	}
	return "En attente"
}

func (s OrderStatus) Value() (driver.Value, error) { return string(s), nil }

// Scan normalizes the stored spelling on read.
func (s *OrderStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*s, _ = NormalizeStatus(v)
	case []byte:
		*s, _ = NormalizeStatus(string(v))
	case nil:
		*s = StatusPending
	default:
		return fmt.Errorf("models: cannot scan %T into OrderStatus", src)
	}
	return nil
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s, _ = NormalizeStatus(raw)
	return nil
}

// PaymentMethod is how the client settles the order.
type PaymentMethod string

const (
	PaymentWave PaymentMethod = "wave"
	PaymentCash PaymentMethod = "cash"
)

func (p PaymentMethod) Valid() bool { return p == PaymentWave || p == PaymentCash }

// Order is a placed order with its line items.
type Order struct {
	ID            string        `gorm:"primaryKey;size:64" json:"id"`
	UserID        string        `gorm:"size:64;not null;index" json:"user_id"`
	ClientPhone   string        `gorm:"size:32" json:"client_phone"`
	Status        OrderStatus   `gorm:"size:32;not null;default:pending" json:"status"`
	TotalPrice    int           `gorm:"not null;default:0" json:"total_price"`
	PaymentMethod PaymentMethod `gorm:"size:16;not null" json:"payment_method"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
	User          *User         `gorm:"foreignKey:UserID" json:"-"`
	OrderItems    []OrderItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"order_items"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	return nil
}

// IsDemo reports whether the order is a placeholder that exists only in memory.
func (o Order) IsDemo() bool { return strings.HasPrefix(o.ID, "cmd-demo") }

// OrderItem is one line of an order. Quantity and price are snapshots taken
// when the order was placed.
type OrderItem struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	OrderID        string     `gorm:"size:64;not null;index" json:"order_id"`
	MenuItemID     string     `gorm:"size:64;not null;index" json:"menu_item_id"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	PriceAtOrder   int        `gorm:"not null" json:"price_at_order"`
	SelectedOption StringList `gorm:"type:text" json:"selected_option"`
	Notes          string     `gorm:"type:text" json:"notes,omitempty"`
	MenuItem       *ItemName  `gorm:"foreignKey:MenuItemID" json:"menu_items,omitempty"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = NewID()
	}
	return nil
}

// Name returns the joined menu item name, empty when the item is gone.
func (i OrderItem) Name() string {
	if i.MenuItem == nil {
		return ""
	}
	return i.MenuItem.Name
}

// ItemName is the slice of menu_items joined onto order lines.
type ItemName struct {
	ID   string `gorm:"primaryKey;size:64" json:"-"`
	Name string `gorm:"size:255;not null;index" json:"name"`
}

func (ItemName) TableName() string { return "menu_items" }
