package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	_ "github.com/uvci/resto/database/migrations"
	"github.com/uvci/resto/pkg/database"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/migration"
)

const waveBase = "https://pay.wave.com/m/M_ci_test/c/ci/"

func newGateway(t *testing.T) (repositories.Gateway, *event.Bus) {
	t.Helper()
	db, err := database.Open("sqlite", "file::memory:", database.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	_, err = migration.New(db, nil).Run()
	require.NoError(t, err)

	bus := event.New()
	return repositories.NewSQLGateway(db, bus), bus
}

// seedMenu stores Alloco (2000, mandatory Riz/Attiéké, optional piment +100)
// and Bissap (500).
func seedMenu(t *testing.T, gw repositories.Gateway) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, gw.Menu.CreateItem(ctx, &models.MenuItem{
		ID: "alloco", Name: "Alloco Poulet", Price: 2000, Category: models.CategoryMain, IsAvailable: true, StockQuantity: 10,
	}))
	require.NoError(t, gw.Menu.CreateItem(ctx, &models.MenuItem{
		ID: "bissap", Name: "Jus de Bissap", Price: 500, Category: models.CategoryDrink, IsAvailable: true, StockQuantity: 10,
	}))
	require.NoError(t, gw.Menu.InsertOptions(ctx, []models.MealOption{
		{ID: "opt-riz", MealID: "alloco", Name: "Riz Blanc", IsMandatory: true},
		{ID: "opt-attieke", MealID: "alloco", Name: "Attiéké", IsMandatory: true},
		{ID: "opt-piment", MealID: "alloco", Name: "Piment", PriceModifier: 100},
	}))
}

type staticIdentity Identity

func (s staticIdentity) Resolve(context.Context, string) Identity { return Identity(s) }

var student = staticIdentity{
	Authenticated: true, UserID: "u-kone", Email: "kone@uvci.edu.ci",
	Role: models.RoleClient, DisplayRole: "student",
}

type eventLog struct {
	mu      sync.Mutex
	placed  []models.Order
	changed []string
}

func (l *eventLog) OrderPlaced(_ context.Context, o models.Order) error {
	l.mu.Lock()
	l.placed = append(l.placed, o)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) OrderStatusChanged(_ context.Context, id string, from, to models.OrderStatus) error {
	l.mu.Lock()
	l.changed = append(l.changed, id+":"+string(from)+"->"+string(to))
	l.mu.Unlock()
	return nil
}

// flakyOrders hides the transactor of the wrapped repository and fails the
// writes it is told to.
type flakyOrders struct {
	repositories.OrderRepository
	failItems   bool
	failDeletes int
	failList    bool
	failStatus  bool
	deletes     int
}

func (f *flakyOrders) InsertItems(ctx context.Context, items []models.OrderItem) error {
	if f.failItems {
		return errors.New("insert order_items: connection reset")
	}
	return f.OrderRepository.InsertItems(ctx, items)
}

func (f *flakyOrders) DeleteOrder(ctx context.Context, id string) error {
	f.deletes++
	if f.deletes <= f.failDeletes {
		return errors.New("delete orders: timeout")
	}
	return f.OrderRepository.DeleteOrder(ctx, id)
}

func (f *flakyOrders) ListOrders(ctx context.Context, filter repositories.OrderFilter) ([]models.Order, error) {
	if f.failList {
		return nil, errors.New("select orders: connection refused")
	}
	return f.OrderRepository.ListOrders(ctx, filter)
}

func (f *flakyOrders) UpdateStatus(ctx context.Context, id string, s models.OrderStatus) error {
	if f.failStatus {
		return errors.New("update orders: connection refused")
	}
	return f.OrderRepository.UpdateStatus(ctx, id, s)
}

type stubSource struct {
	items []models.MenuItem
	err   error
	calls int
}

func (s *stubSource) Name() string { return SourceLive }

func (s *stubSource) Load(context.Context) ([]models.MenuItem, error) {
	s.calls++
	return s.items, s.err
}

// gatedSource hands out one result per Load; a result with a gate blocks
// until the gate is closed.
type gatedSource struct {
	mu      sync.Mutex
	results []gatedResult
}

type gatedResult struct {
	items   []models.MenuItem
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedSource) Name() string { return SourceLive }

func (s *gatedSource) Load(context.Context) ([]models.MenuItem, error) {
	s.mu.Lock()
	r := s.results[0]
	s.results = s.results[1:]
	s.mu.Unlock()
	if r.entered != nil {
		close(r.entered)
	}
	if r.gate != nil {
		<-r.gate
	}
	return r.items, nil
}

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)} }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
