package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/validate"
)

// CheckoutState is the outcome of one submission attempt.
type CheckoutState string

const (
	CheckoutIdle         CheckoutState = "idle"
	CheckoutProcessing   CheckoutState = "processing"
	CheckoutSuccess      CheckoutState = "success"
	CheckoutFailed       CheckoutState = "failed"
	CheckoutUnauthorized CheckoutState = "unauthorized"
)

// OrderEvents receives order lifecycle events. app/jobs implements it on
// the queue.
type OrderEvents interface {
	OrderPlaced(ctx context.Context, o models.Order) error
	OrderStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus) error
}

// IdentitySource resolves the caller at submission time.
type IdentitySource interface {
	Resolve(ctx context.Context, token string) Identity
}

type CheckoutRequest struct {
	SessionID     string
	Token         string
	Phone         string
	PaymentMethod models.PaymentMethod
}

type CheckoutResult struct {
	State         CheckoutState        `json:"state"`
	OrderID       string               `json:"order_id,omitempty"`
	Total         int                  `json:"total"`
	PaymentMethod models.PaymentMethod `json:"payment_method,omitempty"`
	Redirect      string               `json:"redirect,omitempty"`
	QRCode        string               `json:"qr_code,omitempty"`
}

// Checkout turns a session cart into an order.
type Checkout struct {
	identity IdentitySource
	gw       repositories.Gateway
	catalog  *Catalog
	carts    *CartStore
	payment  *Payment
	events   OrderEvents

	compensateAttempts int
	compensateWait     time.Duration
	sleep              func(time.Duration)
}

func NewCheckout(identity IdentitySource, gw repositories.Gateway, catalog *Catalog, carts *CartStore, payment *Payment, events OrderEvents) *Checkout {
	return &Checkout{
		identity:           identity,
		gw:                 gw,
		catalog:            catalog,
		carts:              carts,
		payment:            payment,
		events:             events,
		compensateAttempts: 3,
		compensateWait:     100 * time.Millisecond,
		sleep:              time.Sleep,
	}
}

// Submit runs the pipeline. The returned error is nil only on success; the
// result carries the state in every case.
func (c *Checkout) Submit(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	log := logger.WithCtx(ctx)

	id := c.identity.Resolve(ctx, req.Token)
	if !id.Authenticated {
		c.count(CheckoutUnauthorized, req.PaymentMethod)
		return CheckoutResult{State: CheckoutUnauthorized, Redirect: string(ViewLogin)}, apperr.ErrUnauthorized
	}

	cart, err := c.carts.Load(ctx, req.SessionID)
	if err != nil {
		return CheckoutResult{State: CheckoutIdle}, err
	}
	if req.PaymentMethod != "" {
		if err := cart.SetPaymentMethod(req.PaymentMethod); err != nil {
			return CheckoutResult{State: CheckoutIdle}, err
		}
	}
	if fields := validateCheckout(cart, req.Phone); len(fields) > 0 {
		c.count(CheckoutIdle, cart.PaymentMethod)
		return CheckoutResult{State: CheckoutIdle, Total: cart.Total()}, apperr.Invalid(fields)
	}

	// processing: every path below ends in success or failed.
	c.refreshPrices(ctx, cart)
	order, items := buildOrder(id.UserID, validate.StripSpaces(req.Phone), cart)
	fail := func(err error) (CheckoutResult, error) {
		c.count(CheckoutFailed, cart.PaymentMethod)
		log.Error("checkout: order failed", "user_id", id.UserID, "error", err)
		return CheckoutResult{State: CheckoutFailed, Total: order.TotalPrice, PaymentMethod: order.PaymentMethod}, err
	}

	if err := c.gw.Users.UpsertUser(ctx, models.User{ID: id.UserID, Email: id.Email}); err != nil {
		return fail(err)
	}
	if err := c.gw.Users.UpsertProfileEmail(ctx, id.UserID, id.Email); err != nil {
		return fail(err)
	}
	if err := c.write(ctx, order, items); err != nil {
		return fail(err)
	}

	res := CheckoutResult{State: CheckoutSuccess, OrderID: order.ID, Total: order.TotalPrice, PaymentMethod: order.PaymentMethod}
	if order.PaymentMethod == models.PaymentWave {
		res.Redirect = c.payment.WaveLink(order.TotalPrice)
		if qr, err := c.payment.WaveQRDataURI(order.TotalPrice); err == nil {
			res.QRCode = qr
		} else {
			log.Warn("checkout: qr code unavailable", "error", err)
		}
	}

	cart.Clear()
	if err := c.carts.Save(ctx, req.SessionID, cart); err != nil {
		log.Error("checkout: cart not cleared", "order_id", order.ID, "error", err)
	}
	order.OrderItems = items
	if c.events != nil {
		if err := c.events.OrderPlaced(ctx, *order); err != nil {
			log.Warn("checkout: order.placed not dispatched", "order_id", order.ID, "error", err)
		}
	}
	c.count(CheckoutSuccess, order.PaymentMethod)
	log.Info("checkout: order placed", "order_id", order.ID, "total", order.TotalPrice, "payment_method", order.PaymentMethod)
	return res, nil
}

func validateCheckout(cart *Cart, phone string) map[string]string {
	fields := map[string]string{}
	if len(cart.Items) == 0 {
		fields["cart"] = "Votre panier est vide"
	}
	for _, line := range cart.Items {
		if line.MenuItem.IsDemo() {
			fields["cart"] = "Le menu de démonstration ne peut pas être commandé"
			break
		}
	}
	if !validate.Phone(phone) {
		fields["client_phone"] = "Numéro de téléphone invalide (10 chiffres minimum)"
	}
	return fields
}

// refreshPrices snapshots the current catalog price and option modifiers on
// every line so the total and price_at_order agree.
func (c *Checkout) refreshPrices(ctx context.Context, cart *Cart) {
	if c.catalog == nil {
		return
	}
	for i := range cart.Items {
		current, ok := c.catalog.Item(ctx, cart.Items[i].MenuItem.ID)
		if !ok {
			logger.WithCtx(ctx).Warn("checkout: item missing from catalog, keeping cart price", "menu_item_id", cart.Items[i].MenuItem.ID)
			continue
		}
		cart.Items[i].MenuItem.Price = current.Price
		for j, o := range cart.Items[i].SelectedOptions {
			if o.ID == "" || o.Type == models.OptionManual {
				continue
			}
			if opt, ok := current.Option(o.ID); ok {
				cart.Items[i].SelectedOptions[j].PriceModifier = opt.PriceModifier
			}
		}
	}
}

func buildOrder(userID, phone string, cart *Cart) (*models.Order, []models.OrderItem) {
	order := &models.Order{
		ID:            models.NewID(),
		UserID:        userID,
		ClientPhone:   phone,
		Status:        models.StatusPending,
		TotalPrice:    cart.Total(),
		PaymentMethod: cart.PaymentMethod,
	}
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		var ids models.StringList
		var notes []string
		for _, o := range line.SelectedOptions {
			switch {
			case o.Type == models.OptionManual:
				notes = append(notes, o.NoteText())
			case o.ID != "":
				ids = append(ids, o.ID)
			}
		}
		items = append(items, models.OrderItem{
			ID:             models.NewID(),
			OrderID:        order.ID,
			MenuItemID:     line.MenuItem.ID,
			Quantity:       line.Quantity,
			PriceAtOrder:   line.MenuItem.Price,
			SelectedOption: ids,
			Notes:          strings.Join(notes, "; "),
		})
	}
	return order, items
}

// write stores the order atomically when the driver can, else header then
// items with a compensating delete of the header.
func (c *Checkout) write(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if tx, ok := c.gw.Transactor(); ok {
		return tx.CreateOrderWithItems(ctx, order, items)
	}
	if err := c.gw.Orders.CreateOrder(ctx, order); err != nil {
		return err
	}
	if err := c.gw.Orders.InsertItems(ctx, items); err != nil {
		if cerr := c.compensate(ctx, order.ID); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	return nil
}

// compensate deletes the header of a failed order. DeleteOrder is
// idempotent, so retrying is safe; a header left behind is picked up by
// SweepOrphans.
func (c *Checkout) compensate(ctx context.Context, orderID string) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= c.compensateAttempts; attempt++ {
		if err = c.gw.Orders.DeleteOrder(ctx, orderID); err == nil {
			metrics.OrderCompensations.WithLabelValues("ok").Inc()
			logger.WithCtx(ctx).Warn("checkout: order header rolled back", "order_id", orderID, "attempt", attempt)
			return nil
		}
		if attempt < c.compensateAttempts {
			c.sleep(c.compensateWait * time.Duration(attempt))
		}
	}
	metrics.OrderCompensations.WithLabelValues("error").Inc()
	logger.WithCtx(ctx).Error("checkout: rollback failed, leaving header to the sweeper", "order_id", orderID, "error", err)
	return err
}

// SweepOrphans deletes order headers older than age that have no items.
func (c *Checkout) SweepOrphans(ctx context.Context, age time.Duration) (int, error) {
	ids, err := c.gw.Orders.Orphans(ctx, time.Now().Add(-age))
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, id := range ids {
		if err := c.gw.Orders.DeleteOrder(ctx, id); err != nil {
			logger.WithCtx(ctx).Warn("checkout: orphan not swept", "order_id", id, "error", err)
			continue
		}
		metrics.OrderCompensations.WithLabelValues("swept").Inc()
		swept++
	}
	return swept, nil
}

func (c *Checkout) count(state CheckoutState, pm models.PaymentMethod) {
	outcome := string(state)
	if state == CheckoutIdle {
		outcome = "invalid"
	}
	metrics.OrdersSubmitted.WithLabelValues(outcome, string(pm)).Inc()
}
