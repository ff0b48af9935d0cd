package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/event"
)

type captured struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

type backend struct {
	mu       sync.Mutex
	requests []captured
	reply    func(c captured) (int, string)
	url      string
}

func (b *backend) last() captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[len(b.requests)-1]
}

func newBackend(t *testing.T, reply func(c captured) (int, string)) (*backend, repositories.Gateway) {
	t.Helper()
	b := &backend{reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c := captured{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Header: r.Header.Clone(), Body: string(raw)}
		b.mu.Lock()
		b.requests = append(b.requests, c)
		b.mu.Unlock()

		status, body := b.reply(c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	b.url = srv.URL
	return b, NewGateway(srv.URL, "anon-key", nil)
}

func TestRequestsCarryKeyHeaders(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) {
		return 200, `[{"id":"m1","name":"Alloco","price":2000,"category":"Plat"}]`
	})

	items, err := gw.Menu.ListItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Alloco", items[0].Name)
	assert.Nil(t, items[0].Allergens, "missing columns decode to zero values")

	req := b.last()
	assert.Equal(t, "/rest/v1/menu_items", req.Path)
	assert.Equal(t, "anon-key", req.Header.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", req.Header.Get("Authorization"))
	assert.Equal(t, []string{"name.asc"}, req.Query["order"])
}

func TestListOrdersEmbedsItems(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) {
		return 200, `[{"id":"o1","user_id":"u1","status":"Ready","total_price":4000,"payment_method":"wave",
			"created_at":"2026-03-01T10:00:00Z",
			"order_items":[{"id":"i1","order_id":"o1","menu_item_id":"m1","quantity":2,"price_at_order":2000,
			"selected_option":["opt-1"],"menu_items":{"name":"Alloco Poulet"}}]}]`
	})

	orders, err := gw.Orders.ListOrders(context.Background(), repositories.OrderFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusReady, orders[0].Status)
	assert.Equal(t, "Alloco Poulet", orders[0].OrderItems[0].Name())

	req := b.last()
	assert.Equal(t, []string{"*,order_items(*,menu_items(name))"}, req.Query["select"])
	assert.Equal(t, []string{"eq.u1"}, req.Query["user_id"])
	assert.Equal(t, []string{"created_at.desc"}, req.Query["order"])
}

func TestUpsertProfileEmailSendsOnlyEmail(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) { return 201, `[]` })

	require.NoError(t, gw.Users.UpsertProfileEmail(context.Background(), "u1", "awa@uvci.edu.ci"))

	req := b.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/rest/v1/profiles", req.Path)
	assert.Equal(t, []string{"id"}, req.Query["on_conflict"])
	assert.Contains(t, req.Header.Get("Prefer"), "resolution=merge-duplicates")

	var body []map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	assert.Equal(t, []map[string]any{{"id": "u1", "email": "awa@uvci.edu.ci"}}, body)
}

func TestConflictMapsToDuplicate(t *testing.T) {
	_, gw := newBackend(t, func(captured) (int, string) {
		return 409, `{"code":"23505","message":"duplicate key value violates unique constraint"}`
	})
	err := gw.Users.InsertProfile(context.Background(), models.Profile{ID: "u1", Role: models.RoleClient})
	assert.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestCreateOrderOmitsItemsAndPublishes(t *testing.T) {
	b, _ := newBackend(t, func(captured) (int, string) { return 201, `[]` })
	bus := event.New()
	var got []event.Change
	bus.SubscribeTable("orders", nil, func(_ context.Context, c event.Change) { got = append(got, c) })

	gw := NewGateway(b.url, "anon-key", bus)
	_, isTx := gw.Transactor()
	assert.False(t, isTx, "the rest driver has no transactions")

	o := &models.Order{UserID: "u1", Status: models.StatusPending, TotalPrice: 1500, PaymentMethod: models.PaymentCash,
		OrderItems: []models.OrderItem{{MenuItemID: "m1"}}}
	require.NoError(t, gw.Orders.CreateOrder(context.Background(), o))
	assert.NotEmpty(t, o.ID)

	req := b.last()
	assert.Equal(t, "return=representation", req.Header.Get("Prefer"))
	assert.NotContains(t, req.Body, "order_items")
	assert.Contains(t, req.Body, `"status":"pending"`)
	require.Len(t, got, 1)
	assert.Equal(t, event.Insert, got[0].Type)
}

func TestInsertItemsRowsShareKeys(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) { return 201, `[]` })

	items := []models.OrderItem{
		{OrderID: "o1", MenuItemID: "m1", Quantity: 1, PriceAtOrder: 2000, Notes: "Note: sans oignons"},
		{OrderID: "o1", MenuItemID: "m2", Quantity: 2, PriceAtOrder: 500},
	}
	require.NoError(t, gw.Orders.InsertItems(context.Background(), items))

	var rows []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(b.last().Body), &rows))
	require.Len(t, rows, 2)
	keys := func(m map[string]json.RawMessage) []string {
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	assert.ElementsMatch(t, keys(rows[0]), keys(rows[1]))
	assert.JSONEq(t, `""`, string(rows[1]["notes"]))
}

func TestDeleteOrderRemovesItemsFirst(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) { return 200, `[]` })

	require.NoError(t, gw.Orders.DeleteOrder(context.Background(), "o1"))

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.requests, 2)
	assert.Equal(t, "/rest/v1/order_items", b.requests[0].Path)
	assert.Equal(t, []string{"eq.o1"}, b.requests[0].Query["order_id"])
	assert.Equal(t, "/rest/v1/orders", b.requests[1].Path)
	assert.Equal(t, http.MethodDelete, b.requests[1].Method)
}

func TestUpdateStatusMissingOrder(t *testing.T) {
	_, gw := newBackend(t, func(captured) (int, string) { return 200, `[]` })
	err := gw.Orders.UpdateStatus(context.Background(), "nope", models.StatusReady)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestOrphansFiltersOrdersWithItems(t *testing.T) {
	b, gw := newBackend(t, func(captured) (int, string) {
		return 200, `[{"id":"o1","order_items":[]},{"id":"o2","order_items":[{"id":"i1"}]}]`
	})
	cutoff := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ids, err := gw.Orders.Orphans(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, ids)
	assert.Equal(t, []string{"lt.2026-03-01T12:00:00Z"}, b.last().Query["created_at"])
}

func TestReadsRetryServerErrors(t *testing.T) {
	calls := 0
	_, gw := newBackend(t, func(captured) (int, string) {
		calls++
		if calls < 3 {
			return 503, `{"message":"upstream"}`
		}
		return 200, `[]`
	})
	_, err := gw.Menu.ListOptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
