package repositories_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	_ "github.com/uvci/resto/database/migrations"
	"github.com/uvci/resto/pkg/database"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/migration"
)

type recorder struct {
	mu      sync.Mutex
	changes []event.Change
}

func (r *recorder) PublishChange(_ context.Context, c event.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Table + ":" + string(c.Type)
	}
	return out
}

func setup(t *testing.T) (*gorm.DB, repositories.Gateway, *recorder) {
	t.Helper()
	db, err := database.Open("sqlite", "file::memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	_, err = migration.New(db, nil).Run()
	require.NoError(t, err)

	rec := &recorder{}
	return db, repositories.NewSQLGateway(db, rec), rec
}

func TestMenuItemsAndOptions(t *testing.T) {
	_, gw, rec := setup(t)
	ctx := context.Background()

	pizza := &models.MenuItem{Name: "Pizza", Price: 3000, Category: models.CategoryMain, IsAvailable: true}
	alloco := &models.MenuItem{Name: "Alloco", Price: 2000, Category: models.CategoryMain}
	require.NoError(t, gw.Menu.CreateItem(ctx, pizza))
	require.NoError(t, gw.Menu.CreateItem(ctx, alloco))
	assert.NotEmpty(t, pizza.ID)

	require.NoError(t, gw.Menu.InsertOptions(ctx, []models.MealOption{
		{MealID: alloco.ID, Name: "Riz Blanc", IsMandatory: true},
		{MealID: alloco.ID, Name: "Attiéké", IsMandatory: true},
	}))

	items, err := gw.Menu.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alloco", items[0].Name, "ordered by name")

	opts, err := gw.Menu.ListOptions(ctx)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	alloco.Price = 2500
	alloco.IsAvailable = false
	require.NoError(t, gw.Menu.UpdateItem(ctx, alloco))
	items, _ = gw.Menu.ListItems(ctx)
	assert.Equal(t, 2500, items[0].Price)

	require.NoError(t, gw.Menu.DeleteOptions(ctx, alloco.ID))
	require.NoError(t, gw.Menu.DeleteItem(ctx, alloco.ID))
	opts, _ = gw.Menu.ListOptions(ctx)
	assert.Empty(t, opts)

	assert.Contains(t, rec.tables(), "menu_items:INSERT")
	assert.Contains(t, rec.tables(), "meal_options:DELETE")
	assert.Contains(t, rec.tables(), "menu_items:DELETE")
}

func seedUserAndItem(t *testing.T, gw repositories.Gateway) (models.User, *models.MenuItem) {
	t.Helper()
	ctx := context.Background()
	u := models.User{ID: models.NewID(), Email: "awa@uvci.edu.ci"}
	require.NoError(t, gw.Users.UpsertUser(ctx, u))
	item := &models.MenuItem{Name: "Tiep", Price: 1500, Category: models.CategoryMain}
	require.NoError(t, gw.Menu.CreateItem(ctx, item))
	return u, item
}

func TestOrderLifecycle(t *testing.T) {
	_, gw, rec := setup(t)
	ctx := context.Background()
	u, item := seedUserAndItem(t, gw)

	tx, ok := gw.Transactor()
	require.True(t, ok, "sql driver writes orders atomically")

	order := &models.Order{UserID: u.ID, ClientPhone: "0707070707", Status: models.StatusPending, TotalPrice: 3000, PaymentMethod: models.PaymentCash}
	lines := []models.OrderItem{{MenuItemID: item.ID, Quantity: 2, PriceAtOrder: 1500, SelectedOption: models.StringList{"opt-1"}, Notes: "sans piment"}}
	require.NoError(t, tx.CreateOrderWithItems(ctx, order, lines))

	orders, err := gw.Orders.ListOrders(ctx, repositories.OrderFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].OrderItems, 1)
	assert.Equal(t, "Tiep", orders[0].OrderItems[0].Name())
	assert.Equal(t, models.StringList{"opt-1"}, orders[0].OrderItems[0].SelectedOption)
	assert.Equal(t, "sans piment", orders[0].OrderItems[0].Notes)

	require.NoError(t, gw.Orders.UpdateStatus(ctx, order.ID, models.StatusReady))
	orders, _ = gw.Orders.ListOrders(ctx, repositories.OrderFilter{})
	assert.Equal(t, models.StatusReady, orders[0].Status)

	err = gw.Orders.UpdateStatus(ctx, "missing", models.StatusReady)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.Contains(t, rec.tables(), "orders:UPDATE")
}

func TestListOrdersNewestFirstAndNormalized(t *testing.T) {
	db, gw, _ := setup(t)
	ctx := context.Background()
	u, _ := seedUserAndItem(t, gw)

	older := time.Now().Add(-time.Hour)
	require.NoError(t, db.Exec(
		"INSERT INTO orders (id, user_id, client_phone, status, total_price, payment_method, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"legacy", u.ID, "0102030405", "Awaiting Payment", 500, "wave", older).Error)
	require.NoError(t, gw.Orders.CreateOrder(ctx, &models.Order{UserID: u.ID, Status: models.StatusPending, PaymentMethod: models.PaymentWave}))

	orders, err := gw.Orders.ListOrders(ctx, repositories.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "legacy", orders[1].ID)
	assert.Equal(t, models.StatusPending, orders[1].Status)
}

func TestDeleteOrderIsIdempotentAndOrphansAreFound(t *testing.T) {
	_, gw, rec := setup(t)
	ctx := context.Background()
	u, item := seedUserAndItem(t, gw)

	orphan := &models.Order{UserID: u.ID, Status: models.StatusPending, PaymentMethod: models.PaymentCash}
	require.NoError(t, gw.Orders.CreateOrder(ctx, orphan))

	full := &models.Order{UserID: u.ID, Status: models.StatusPending, PaymentMethod: models.PaymentCash}
	require.NoError(t, gw.Orders.CreateOrder(ctx, full))
	require.NoError(t, gw.Orders.InsertItems(ctx, []models.OrderItem{{OrderID: full.ID, MenuItemID: item.ID, Quantity: 1, PriceAtOrder: 1500}}))

	ids, err := gw.Orders.Orphans(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{orphan.ID}, ids)

	require.NoError(t, gw.Orders.DeleteOrder(ctx, full.ID))
	before := len(rec.tables())
	require.NoError(t, gw.Orders.DeleteOrder(ctx, full.ID), "second delete is a no-op")
	assert.Len(t, rec.tables(), before, "no change reported for a missing order")

	orders, _ := gw.Orders.ListOrders(ctx, repositories.OrderFilter{})
	assert.Len(t, orders, 1)
}

func TestUsersAndProfiles(t *testing.T) {
	_, gw, _ := setup(t)
	ctx := context.Background()

	u := &models.User{ID: models.NewID(), Email: "kone@uvci.edu.ci", PasswordHash: "hash"}
	require.NoError(t, gw.Users.CreateUser(ctx, u))
	err := gw.Users.CreateUser(ctx, &models.User{ID: models.NewID(), Email: "kone@uvci.edu.ci"})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	require.NoError(t, gw.Users.UpsertUser(ctx, models.User{ID: u.ID, Email: "kone@uvci.edu.ci"}))
	found, err := gw.Users.FindUserByEmail(ctx, "kone@uvci.edu.ci")
	require.NoError(t, err)
	assert.Equal(t, "hash", found.PasswordHash, "upsert keeps the password hash")

	_, err = gw.Users.FindUserByEmail(ctx, "nobody@uvci.edu.ci")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, gw.Users.InsertProfile(ctx, models.Profile{ID: u.ID, Email: u.Email, Role: models.RoleAdmin}))
	err = gw.Users.InsertProfile(ctx, models.Profile{ID: u.ID, Email: u.Email})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	require.NoError(t, gw.Users.UpsertProfileEmail(ctx, u.ID, "kone@uvci.edu.ci"))
	p, err := gw.Users.FindProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role, "email upsert never downgrades the role")

	require.NoError(t, gw.Users.UpsertProfileEmail(ctx, "new-id", "new@uvci.edu.ci"))
	p, err = gw.Users.FindProfile(ctx, "new-id")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, p.Role)

	require.NoError(t, gw.Users.UpdateProfileRole(ctx, "new-id", models.RoleAdmin))
	p, _ = gw.Users.FindProfile(ctx, "new-id")
	assert.Equal(t, models.RoleAdmin, p.Role)
}
