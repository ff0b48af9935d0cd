package services

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/cache"
)

// CartItem is one cart line. ID is local to the cart so the same dish with
// different options can sit on two lines.
type CartItem struct {
	ID              string                  `json:"id"`
	MenuItem        models.MenuItem         `json:"menu_item"`
	Quantity        int                     `json:"quantity"`
	SelectedOptions []models.SelectedOption `json:"selected_options"`
}

// UnitPrice is the item price plus every option modifier.
func (l CartItem) UnitPrice() int {
	p := l.MenuItem.Price
	for _, o := range l.SelectedOptions {
		p += o.PriceModifier
	}
	return p
}

func (l CartItem) LineTotal() int { return l.UnitPrice() * l.Quantity }

// Cart is the per-session basket.
type Cart struct {
	Items         []CartItem           `json:"items"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

func NewCart() *Cart {
	return &Cart{Items: []CartItem{}, PaymentMethod: models.PaymentWave}
}

// Add merges into a line with the same item and option set, or appends a new
// line with quantity 1.
func (c *Cart) Add(item models.MenuItem, opts []models.SelectedOption) CartItem {
	for i := range c.Items {
		if c.Items[i].MenuItem.ID == item.ID && sameOptions(c.Items[i].SelectedOptions, opts) {
			c.Items[i].Quantity++
			return c.Items[i]
		}
	}
	if opts == nil {
		opts = []models.SelectedOption{}
	}
	line := CartItem{ID: models.NewID(), MenuItem: item, Quantity: 1, SelectedOptions: opts}
	c.Items = append(c.Items, line)
	return line
}

// Has reports whether the cart holds a line with that id.
func (c *Cart) Has(lineID string) bool {
	for _, l := range c.Items {
		if l.ID == lineID {
			return true
		}
	}
	return false
}

// Remove drops the line unconditionally.
func (c *Cart) Remove(lineID string) bool {
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateQuantity adds delta to the line. A result below 1 leaves the line
// unchanged; removal goes through Remove.
func (c *Cart) UpdateQuantity(lineID string, delta int) bool {
	for i := range c.Items {
		if c.Items[i].ID != lineID {
			continue
		}
		if c.Items[i].Quantity+delta < 1 {
			return false
		}
		c.Items[i].Quantity += delta
		return true
	}
	return false
}

func (c *Cart) Clear() { c.Items = []CartItem{} }

func (c *Cart) Total() int {
	total := 0
	for _, l := range c.Items {
		total += l.LineTotal()
	}
	return total
}

// Count is the number of units, not lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

func (c *Cart) SetPaymentMethod(m models.PaymentMethod) error {
	if !m.Valid() {
		return apperr.Invalid(map[string]string{"payment_method": "payment_method must be wave or cash"})
	}
	c.PaymentMethod = m
	return nil
}

func sortedByName(opts []models.SelectedOption) []models.SelectedOption {
	out := append([]models.SelectedOption{}, opts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sameOptions(a, b []models.SelectedOption) bool {
	return reflect.DeepEqual(sortedByName(a), sortedByName(b))
}

// CartView is the cart as returned to clients, totals included.
type CartView struct {
	Items         []CartItem           `json:"items"`
	Total         int                  `json:"total"`
	Count         int                  `json:"count"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

func (c *Cart) View() CartView {
	items := c.Items
	if items == nil {
		items = []CartItem{}
	}
	return CartView{Items: items, Total: c.Total(), Count: c.Count(), PaymentMethod: c.PaymentMethod}
}

// CartStore keeps one cart per session in a cache.Store.
type CartStore struct {
	store cache.Store
	ttl   time.Duration
}

func NewCartStore(store cache.Store, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CartStore{store: store, ttl: ttl}
}

func cartKey(sessionID string) string { return "cart:" + sessionID }

// Load returns the session cart, or a new one.
func (s *CartStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	c := NewCart()
	found, err := s.store.Get(ctx, cartKey(sessionID), c)
	if err != nil {
		return NewCart(), fmt.Errorf("cart: load: %w", err)
	}
	if !found {
		return NewCart(), nil
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	if !c.PaymentMethod.Valid() {
		c.PaymentMethod = models.PaymentWave
	}
	return c, nil
}

func (s *CartStore) Save(ctx context.Context, sessionID string, c *Cart) error {
	if err := s.store.Set(ctx, cartKey(sessionID), c, s.ttl); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

// Update loads the cart, applies fn and saves it.
func (s *CartStore) Update(ctx context.Context, sessionID string, fn func(c *Cart) error) (*Cart, error) {
	c, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return c, err
	}
	return c, s.Save(ctx, sessionID, c)
}
