// Package repositories is the data gateway of the app: typed reads and
// writes over menu_items, meal_options, orders, order_items, users and
// profiles. The sql driver lives here on gorm; the rest driver in
// repositories/rest talks to a PostgREST-compatible backend. Both publish a
// change event after every successful write.
package repositories

import (
	"context"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
)

// Re-exported so callers can match gateway errors without importing apperr.
var (
	ErrNotFound  = apperr.ErrNotFound
	ErrDuplicate = apperr.ErrDuplicate
)

// MenuRepository reads and edits the catalog.
type MenuRepository interface {
	// ListItems returns every menu item ordered by name, without options.
	ListItems(ctx context.Context) ([]models.MenuItem, error)
	ListOptions(ctx context.Context) ([]models.MealOption, error)
	CreateItem(ctx context.Context, item *models.MenuItem) error
	UpdateItem(ctx context.Context, item *models.MenuItem) error
	DeleteItem(ctx context.Context, id string) error
	DeleteOptions(ctx context.Context, mealID string) error
	InsertOptions(ctx context.Context, opts []models.MealOption) error
}

// OrderFilter narrows ListOrders. The zero value lists every order.
type OrderFilter struct {
	UserID string
}

// OrderRepository reads and writes orders with their line items.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	InsertItems(ctx context.Context, items []models.OrderItem) error
	// DeleteOrder removes the order and its items. Deleting a missing order
	// is not an error.
	DeleteOrder(ctx context.Context, id string) error
	// ListOrders returns orders newest first with their items and the joined
	// item names.
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	// Orphans returns ids of orders created before the cutoff that have no
	// items.
	Orphans(ctx context.Context, before time.Time) ([]string, error)
}

// OrderTransactor is implemented by drivers that can write an order and its
// items atomically.
type OrderTransactor interface {
	CreateOrderWithItems(ctx context.Context, o *models.Order, items []models.OrderItem) error
}

// UserRepository manages identities and their profiles.
type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	// UpsertUser writes {id, email} and leaves the password hash alone.
	UpsertUser(ctx context.Context, u models.User) error
	FindProfile(ctx context.Context, id string) (models.Profile, error)
	InsertProfile(ctx context.Context, p models.Profile) error
	UpdateProfileRole(ctx context.Context, id string, role models.Role) error
	// UpsertProfileEmail creates a client profile or updates the email of an
	// existing one without touching its role.
	UpsertProfileEmail(ctx context.Context, id, email string) error
}

// Gateway bundles one driver's repositories with the change publisher its
// writes report to.
type Gateway struct {
	Name    string
	Menu    MenuRepository
	Orders  OrderRepository
	Users   UserRepository
	Changes event.Publisher
}

// Transactor returns the atomic order writer when the driver has one.
func (g Gateway) Transactor() (OrderTransactor, bool) {
	t, ok := g.Orders.(OrderTransactor)
	return t, ok
}

type nopPublisher struct{}

func (nopPublisher) PublishChange(context.Context, event.Change) {}

// Publisher returns p, or a publisher that drops changes when p is nil.
func Publisher(p event.Publisher) event.Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// Notify publishes one change per id.
func Notify(ctx context.Context, p event.Publisher, table string, typ event.ChangeType, ids ...string) {
	if len(ids) == 0 {
		p.PublishChange(ctx, event.Change{Table: table, Type: typ})
		return
	}
	for _, id := range ids {
		p.PublishChange(ctx, event.Change{Table: table, Type: typ, ID: id})
	}
}
