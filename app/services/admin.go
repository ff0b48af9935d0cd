package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/storage"
	"github.com/uvci/resto/pkg/validate"
)

// UnknownOption is shown for an option id missing from the option map.
const UnknownOption = "Option inconnue"

// BoardLine is an order line as the kitchen reads it.
type BoardLine struct {
	models.OrderItem
	ItemName    string   `json:"item_name"`
	OptionNames []string `json:"option_names"`
}

// BoardOrder is an order on the admin board.
type BoardOrder struct {
	models.Order
	StatusLabel string      `json:"status_label"`
	Lines       []BoardLine `json:"lines"`
}

type Stats struct {
	Date         string `json:"date"`
	Pending      int    `json:"pending"`
	DailyRevenue int    `json:"daily_revenue"`
}

// OptionInput is one option row of the menu editor. Rows with an empty name
// are dropped on save.
type OptionInput struct {
	Name          string `json:"name"`
	PriceModifier int    `json:"price_modifier"`
	IsMandatory   bool   `json:"is_mandatory"`
}

// MenuItemInput is the menu editor form.
type MenuItemInput struct {
	ID            string        `json:"id"`
	Name          string        `json:"name" validate:"required,max=255"`
	Description   string        `json:"description"`
	Price         int           `json:"price" validate:"required,min=1"`
	Category      string        `json:"category"`
	ImageURL      string        `json:"image_url"`
	Allergens     []string      `json:"allergens"`
	StockQuantity int           `json:"stock_quantity" validate:"gte=0"`
	IsAvailable   bool          `json:"is_available"`
	Options       []OptionInput `json:"meal_options"`
}

// Admin is the kitchen console: order board, status changes and menu editor.
type Admin struct {
	gw      repositories.Gateway
	catalog *Catalog
	disk    storage.Disk
	events  OrderEvents
	allow   map[string]bool
	now     func() time.Time

	mu      sync.Mutex
	board   []models.Order
	loaded  bool
	options map[string]string
}

func NewAdmin(gw repositories.Gateway, catalog *Catalog, disk storage.Disk, events OrderEvents, adminEmails []string) *Admin {
	allow := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allow[e] = true
		}
	}
	return &Admin{gw: gw, catalog: catalog, disk: disk, events: events, allow: allow, now: time.Now}
}

// Authorize admits principals whose profile role is admin. When the profile
// cannot be read, only allow-listed emails pass.
func (a *Admin) Authorize(ctx context.Context, p middleware.Principal) error {
	profile, err := a.gw.Users.FindProfile(ctx, p.UserID)
	if err == nil {
		if profile.Role == models.RoleAdmin {
			return nil
		}
		return apperr.ErrForbidden
	}
	if a.allow[strings.ToLower(strings.TrimSpace(p.Email))] {
		logger.WithCtx(ctx).Warn("admin: profile unavailable, admitted by allow-list", "user_id", p.UserID, "error", err)
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrForbidden, err)
}

// Board returns every order newest first. A failed fetch shows the demo
// order instead.
func (a *Admin) Board(ctx context.Context) []BoardOrder {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()
	if !loaded {
		a.Reload(ctx)
	}
	names := a.OptionNames(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]BoardOrder, len(a.board))
	for i, o := range a.board {
		out[i] = boardOrder(o, names)
	}
	return out
}

// Reload re-fetches the board.
func (a *Admin) Reload(ctx context.Context) {
	orders, err := a.gw.Orders.ListOrders(ctx, repositories.OrderFilter{})
	if err != nil {
		logger.WithCtx(ctx).Warn("admin: orders unavailable, showing demo order", "error", err)
		orders = DemoOrders(a.now())
	}
	a.mu.Lock()
	a.board = orders
	a.loaded = true
	a.mu.Unlock()
}

func boardOrder(o models.Order, names map[string]string) BoardOrder {
	lines := make([]BoardLine, len(o.OrderItems))
	for i, it := range o.OrderItems {
		opts := make([]string, 0, len(it.SelectedOption))
		for _, id := range it.SelectedOption {
			name, ok := names[id]
			if !ok {
				name = UnknownOption
			}
			opts = append(opts, name)
		}
		lines[i] = BoardLine{OrderItem: it, ItemName: it.Name(), OptionNames: opts}
	}
	return BoardOrder{Order: o, StatusLabel: o.Status.AdminLabel(), Lines: lines}
}

// OptionNames returns the option id to name map, loading it once per board.
func (a *Admin) OptionNames(ctx context.Context) map[string]string {
	a.mu.Lock()
	if a.options != nil {
		names := a.options
		a.mu.Unlock()
		return names
	}
	a.mu.Unlock()

	names := map[string]string{}
	opts, err := a.gw.Menu.ListOptions(ctx)
	if err != nil {
		logger.WithCtx(ctx).Warn("admin: options unavailable, names will show as unknown", "error", err)
		return names
	}
	for _, o := range opts {
		names[o.ID] = o.Name
	}
	a.mu.Lock()
	a.options = names
	a.mu.Unlock()
	return names
}

// AdvanceStatus moves an order to to, or to its next status when to is
// empty. The board is updated before the write and reverted if it fails.
// Demo orders change on the board only.
func (a *Admin) AdvanceStatus(ctx context.Context, orderID string, to models.OrderStatus) (BoardOrder, error) {
	a.mu.Lock()
	loaded := a.loaded
	a.mu.Unlock()
	if !loaded {
		a.Reload(ctx)
	}

	a.mu.Lock()
	idx := -1
	for i := range a.board {
		if a.board[i].ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		a.mu.Unlock()
		return BoardOrder{}, apperr.ErrNotFound
	}
	from := a.board[idx].Status
	if to == "" {
		next, ok := from.Next()
		if !ok {
			a.mu.Unlock()
			return BoardOrder{}, fmt.Errorf("%w: %s is final", apperr.ErrInvalidTransition, from)
		}
		to = next
	}
	if !from.CanTransitionTo(to) {
		a.mu.Unlock()
		return BoardOrder{}, fmt.Errorf("%w: %s to %s", apperr.ErrInvalidTransition, from, to)
	}
	a.board[idx].Status = to
	order := a.board[idx]
	a.mu.Unlock()

	names := a.OptionNames(ctx)
	if order.IsDemo() {
		return boardOrder(order, names), nil
	}

	if err := a.gw.Orders.UpdateStatus(ctx, orderID, to); err != nil {
		a.revert(orderID, from, to)
		logger.WithCtx(ctx).Error("admin: status update failed, reverted", "order_id", orderID, "from", from, "to", to, "error", err)
		return BoardOrder{}, err
	}
	if a.events != nil {
		if err := a.events.OrderStatusChanged(ctx, orderID, from, to); err != nil {
			logger.WithCtx(ctx).Warn("admin: order.status_changed not dispatched", "order_id", orderID, "error", err)
		}
	}
	logger.WithCtx(ctx).Info("admin: order status changed", "order_id", orderID, "from", from, "to", to)
	return boardOrder(order, names), nil
}

// revert restores from unless the board moved on since the optimistic write.
func (a *Admin) revert(orderID string, from, to models.OrderStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.board {
		if a.board[i].ID == orderID && a.board[i].Status == to {
			a.board[i].Status = from
		}
	}
}

// Stats counts pending orders and sums today's orders.
func (a *Admin) Stats(ctx context.Context) Stats {
	board := a.Board(ctx)
	now := a.now()
	y, m, d := now.Date()
	st := Stats{Date: now.Format("2006-01-02")}
	for _, o := range board {
		if o.Status == models.StatusPending {
			st.Pending++
		}
		oy, om, od := o.CreatedAt.In(now.Location()).Date()
		if oy == y && om == m && od == d {
			st.DailyRevenue += o.TotalPrice
		}
	}
	return st
}

// Watch re-fetches the board on order changes and drops the option map on
// option changes.
func (a *Admin) Watch(bus *event.Bus) []*event.Subscription {
	return []*event.Subscription{
		bus.SubscribeTable("orders", nil, func(ctx context.Context, _ event.Change) {
			a.Reload(ctx)
		}),
		bus.SubscribeTable("meal_options", nil, func(context.Context, event.Change) {
			a.mu.Lock()
			a.options = nil
			a.mu.Unlock()
		}),
	}
}

// Menu lists the store's menu with options. When the store is unreachable it
// shows the catalog snapshot.
func (a *Admin) Menu(ctx context.Context) []models.MenuItem {
	items, err := NewLiveSource(a.gw.Menu).Load(ctx)
	if err != nil {
		logger.WithCtx(ctx).Warn("admin: menu unavailable, showing catalog snapshot", "error", err)
		return a.catalog.Current(ctx).Items
	}
	return items
}

// SaveItem creates the item when in.ID is empty, else updates it. The item's
// options are replaced by the named rows of in.Options.
func (a *Admin) SaveItem(ctx context.Context, in MenuItemInput) (models.MenuItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	fields := validate.Struct(&in)
	if in.Category != "" && !models.Category(in.Category).Valid() {
		fields["category"] = "The selected category is invalid."
	}
	if strings.HasPrefix(in.ID, "demo") {
		fields["id"] = "Les plats de démonstration ne peuvent pas être enregistrés"
	}
	if len(fields) > 0 {
		return models.MenuItem{}, apperr.Invalid(fields)
	}

	item := models.MenuItem{
		ID:            in.ID,
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		Category:      models.Category(in.Category),
		ImageURL:      in.ImageURL,
		Allergens:     models.StringList(in.Allergens),
		StockQuantity: in.StockQuantity,
		IsAvailable:   in.IsAvailable,
	}
	item.Normalize()

	var err error
	if item.ID == "" {
		item.ID = models.NewID()
		err = a.gw.Menu.CreateItem(ctx, &item)
	} else {
		err = a.gw.Menu.UpdateItem(ctx, &item)
	}
	if err != nil {
		logger.WithCtx(ctx).Error("admin: menu item not saved", "id", item.ID, "error", err)
		return models.MenuItem{}, err
	}

	if err := a.gw.Menu.DeleteOptions(ctx, item.ID); err != nil {
		logger.WithCtx(ctx).Error("admin: options not cleared", "id", item.ID, "error", err)
		return models.MenuItem{}, err
	}
	opts := make([]models.MealOption, 0, len(in.Options))
	for _, o := range in.Options {
		name := strings.TrimSpace(o.Name)
		if name == "" {
			continue
		}
		opts = append(opts, models.MealOption{
			ID: models.NewID(), MealID: item.ID, Name: name,
			PriceModifier: o.PriceModifier, IsMandatory: o.IsMandatory,
		})
	}
	if len(opts) > 0 {
		if err := a.gw.Menu.InsertOptions(ctx, opts); err != nil {
			logger.WithCtx(ctx).Error("admin: options not saved", "id", item.ID, "error", err)
			return models.MenuItem{}, err
		}
	}
	item.MealOptions = opts

	a.catalog.Refresh()
	logger.WithCtx(ctx).Info("admin: menu item saved", "id", item.ID, "options", len(opts))
	return item, nil
}

// DeleteItem removes the item and its options. The catalog drops it first; a
// failed delete re-fetches the catalog to bring it back.
func (a *Admin) DeleteItem(ctx context.Context, id string) error {
	a.catalog.RemoveLocal(id)
	if strings.HasPrefix(id, "demo") {
		return nil
	}
	err := a.gw.Menu.DeleteOptions(ctx, id)
	if err == nil {
		err = a.gw.Menu.DeleteItem(ctx, id)
	}
	if err != nil {
		logger.WithCtx(ctx).Error("admin: menu item not deleted, restoring", "id", id, "error", err)
		a.catalog.Refresh()
		return err
	}
	logger.WithCtx(ctx).Info("admin: menu item deleted", "id", id)
	return nil
}

// UploadImage stores an image for the item on the disk and points the item
// at it.
func (a *Admin) UploadImage(ctx context.Context, id, filename, contentType string, r io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperr.Invalid(map[string]string{"image": "The image must be an image file."})
	}
	if strings.HasPrefix(id, "demo") {
		return "", apperr.Invalid(map[string]string{"id": "Les plats de démonstration ne peuvent pas être enregistrés"})
	}
	if a.disk == nil {
		return "", fmt.Errorf("admin: upload: %w", apperr.ErrUnavailable)
	}
	item, ok := a.catalog.Item(ctx, id)
	if !ok {
		return "", apperr.ErrNotFound
	}

	key := path.Join("menu", id, models.NewID()+strings.ToLower(path.Ext(filename)))
	url, err := a.disk.Put(ctx, key, r, contentType)
	if err != nil {
		return "", fmt.Errorf("admin: upload: %w", err)
	}
	item.ImageURL = url
	if err := a.gw.Menu.UpdateItem(ctx, &item); err != nil {
		if derr := a.disk.Delete(ctx, key); derr != nil {
			err = errors.Join(err, derr)
		}
		return "", err
	}
	a.catalog.Refresh()
	return url, nil
}

// DemoOrders is the board shown when orders cannot be fetched. Its ids start
// with "cmd-demo" and are never written.
func DemoOrders(now time.Time) []models.Order {
	return []models.Order{{
		ID:            "cmd-demo-1",
		UserID:        "demo-user",
		ClientPhone:   "0700000000",
		Status:        models.StatusPending,
		TotalPrice:    3500,
		PaymentMethod: models.PaymentWave,
		CreatedAt:     now,
		OrderItems: []models.OrderItem{
			{
				ID: "cmd-demo-1-1", OrderID: "cmd-demo-1", MenuItemID: "demo-1",
				Quantity: 1, PriceAtOrder: 1500,
				SelectedOption: models.StringList{},
				MenuItem:       &models.ItemName{ID: "demo-1", Name: "Tiep Boulet (Démo)"},
			},
			{
				ID: "cmd-demo-1-2", OrderID: "cmd-demo-1", MenuItemID: "demo-2",
				Quantity: 1, PriceAtOrder: 2000,
				SelectedOption: models.StringList{"opt-1"},
				MenuItem:       &models.ItemName{ID: "demo-2", Name: "Alloco Poulet (Démo)"},
			},
		},
	}}
}
