package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(body)) }
}

func header(key, value string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add(key, value)
			next.ServeHTTP(w, r)
		})
	}
}

func TestGroupsJoinPrefixesAndMiddleware(t *testing.T) {
	r := New()
	api := r.Group("/api", header("X-Layer", "api"))
	admin := api.Group("admin", header("X-Layer", "admin"))
	admin.Patch("/orders/{id}/status", "admin.orders.status", ok("patched"))

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/orders/o-1/status", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "patched", rec.Body.String())
	assert.Equal(t, []string{"api", "admin"}, rec.Header().Values("X-Layer"))
}

func TestURLSubstitutesParams(t *testing.T) {
	r := New()
	r.Delete("/api/cart/items/{id}", "cart.remove", ok(""))

	url, err := r.URL("cart.remove", map[string]string{"id": "line-1"})
	require.NoError(t, err)
	assert.Equal(t, "/api/cart/items/line-1", url)

	_, err = r.URL("cart.remove", nil)
	assert.Error(t, err)

	_, err = r.URL("missing", nil)
	assert.Error(t, err)
}

func TestRoutesAreSorted(t *testing.T) {
	r := New()
	r.Post("/api/orders", "orders.submit", ok(""))
	r.Get("/api/orders", "orders.index", ok(""))
	r.Get("/api/menu", "menu.index", ok(""))
	r.Handle("/metrics", "metrics", ok(""))

	routes := r.Routes()
	require.Len(t, routes, 4)
	assert.Equal(t, RouteInfo{Method: "GET", Path: "/api/menu", Name: "menu.index"}, routes[0])
	assert.Equal(t, "GET", routes[1].Method)
	assert.Equal(t, "POST", routes[2].Method)
	assert.Equal(t, "/metrics", routes[3].Path)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "/", joinPath("", "/"))
	assert.Equal(t, "/api/menu", joinPath("/api/", "/menu/"))
}
