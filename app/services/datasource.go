package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/logger"
)

// Catalog source names, as reported to clients and in metrics.
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// DataSource loads the full menu with options attached.
type DataSource interface {
	Name() string
	Load(ctx context.Context) ([]models.MenuItem, error)
}

// LiveSource reads the gateway: items first, then options, joined in memory
// on meal_id.
type LiveSource struct {
	menu repositories.MenuRepository
}

func NewLiveSource(menu repositories.MenuRepository) *LiveSource {
	return &LiveSource{menu: menu}
}

func (LiveSource) Name() string { return SourceLive }

// Load fails only when the items cannot be read. A failed options read
// leaves every item without options.
func (s *LiveSource) Load(ctx context.Context) ([]models.MenuItem, error) {
	items, err := s.menu.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load items: %w", err)
	}
	opts, err := s.menu.ListOptions(ctx)
	if err != nil {
		logger.WithCtx(ctx).Warn("catalog: options unavailable, serving items without options", "error", err)
		opts = nil
	}
	return JoinOptions(items, opts), nil
}

// JoinOptions attaches each option to the item whose id equals its meal_id
// and fills the defaults of missing columns. Options without an item are
// dropped.
func JoinOptions(items []models.MenuItem, opts []models.MealOption) []models.MenuItem {
	byMeal := make(map[string][]models.MealOption, len(items))
	for _, o := range opts {
		byMeal[o.MealID] = append(byMeal[o.MealID], o)
	}
	out := make([]models.MenuItem, len(items))
	for i, item := range items {
		item.MealOptions = byMeal[item.ID]
		item.Normalize()
		out[i] = item
	}
	return out
}

// FallbackSource serves the built-in demo menu.
type FallbackSource struct{}

func (FallbackSource) Name() string { return SourceFallback }

func (FallbackSource) Load(context.Context) ([]models.MenuItem, error) { return DemoMenu(), nil }

// DemoMenu is the fixed catalog shown when the live store is unreachable.
// Demo ids start with "demo" and are never written to the store.
func DemoMenu() []models.MenuItem {
	items := []models.MenuItem{
		{
			ID:            "demo-1",
			Name:          "Tiep Boulet (Démo)",
			Description:   "Riz rouge sénégalais accompagné de boulettes de poisson et légumes frais. (Donnée de démo)",
			Price:         1500,
			Category:      models.CategoryMain,
			ImageURL:      "https://images.unsplash.com/photo-1604329760661-e71dc831ddee?auto=format&fit=crop&q=80&w=800",
			StockQuantity: 20,
			IsAvailable:   true,
			Allergens:     models.StringList{"Poisson"},
		},
		{
			ID:            "demo-2",
			Name:          "Alloco Poulet (Démo)",
			Description:   "Bananes plantains frites avec du poulet braisé croustillant. (Donnée de démo)",
			Price:         2000,
			Category:      models.CategoryMain,
			ImageURL:      "https://images.unsplash.com/photo-1627308595229-7830a5c91f9f?auto=format&fit=crop&q=80&w=800",
			StockQuantity: 15,
			IsAvailable:   true,
			MealOptions: []models.MealOption{
				{ID: "opt-1", MealID: "demo-2", Name: "Riz Blanc", IsMandatory: true},
				{ID: "opt-2", MealID: "demo-2", Name: "Attiéké", IsMandatory: true},
			},
		},
		{
			ID:            "demo-3",
			Name:          "Jus de Bissap",
			Description:   "Boisson rafraîchissante aux fleurs d'hibiscus et à la menthe.",
			Price:         500,
			Category:      models.CategoryDrink,
			ImageURL:      "https://images.unsplash.com/photo-1595981267035-7b04ca84a82d?auto=format&fit=crop&q=80&w=800",
			StockQuantity: 50,
			IsAvailable:   true,
		},
		{
			ID:            "demo-4",
			Name:          "Croissant au Beurre",
			Description:   "Viennoiserie pur beurre pour bien commencer la journée.",
			Price:         500,
			Category:      models.CategoryBreakfast,
			ImageURL:      "https://images.unsplash.com/photo-1555507036-ab1f40388085?auto=format&fit=crop&q=80&w=800",
			StockQuantity: 30,
			IsAvailable:   true,
			Allergens:     models.StringList{"Gluten", "Lait"},
		},
	}
	for i := range items {
		items[i].Normalize()
	}
	return items
}

// BreakerState is the state of a Breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// Breaker opens after threshold consecutive failures. While open, Allow
// refuses until the cool-down has elapsed; the next call is a half-open
// probe that closes the breaker on success and reopens it on failure.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{state: BreakerClosed, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
	}
	return b.state != BreakerOpen
}

func (b *Breaker) Success() {
	b.mu.Lock()
	b.state = BreakerClosed
	b.failures = 0
	b.mu.Unlock()
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
