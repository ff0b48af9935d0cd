package app_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/pkg/app"
	"github.com/uvci/resto/pkg/cache"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/migration"
	"github.com/uvci/resto/pkg/reqid"
	"github.com/uvci/resto/pkg/router"
	"github.com/uvci/resto/pkg/session"
)

func routes(r *router.Router) error {
	r.Get("/ping", "ping", func(w http.ResponseWriter, r *http.Request) {
		s := session.FromCtx(r)
		s.Put("seen", true)
		w.Header().Set("X-Seen-Request", reqid.FromCtx(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/panic", "panic", func(http.ResponseWriter, *http.Request) { panic("boom") })
	return nil
}

func TestHandlerStack(t *testing.T) {
	h, err := app.New().
		Sessions(session.NewManager(cache.NewMemory(), session.DefaultOptions())).
		Routes(routes).
		Handler()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	id := rec.Header().Get(reqid.Header)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, rec.Header().Get("X-Seen-Request"))
	assert.NotEmpty(t, rec.Header().Get(session.Header))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(reqid.Header))
}

func TestCORSPreflight(t *testing.T) {
	h, err := app.New().CORS([]string{"https://resto.uvci.edu.ci"}).Routes(routes).Handler()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://resto.uvci.edu.ci")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://resto.uvci.edu.ci", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h, err := app.New().RateLimit(middleware.NewLimiter(2, time.Minute)).Routes(routes).Handler()
	require.NoError(t, err)

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRouteErrorsStopTheBuild(t *testing.T) {
	_, err := app.New().Routes(func(*router.Router) error { return errors.New("schema") }).Handler()
	assert.ErrorContains(t, err, "schema")
}

func TestPrintRoutes(t *testing.T) {
	infos, err := app.New().Routes(routes).RouteList()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	var buf bytes.Buffer
	require.NoError(t, app.PrintRoutes(&buf, infos))
	assert.Contains(t, buf.String(), "METHOD")
	assert.Contains(t, buf.String(), "/panic")
	assert.Regexp(t, `GET\s+/ping\s+ping`, buf.String())

	buf.Reset()
	require.NoError(t, app.PrintRoutes(&buf, nil))
	assert.Equal(t, "No named routes registered.\n", buf.String())
}

func TestPrintMigrations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, app.PrintMigrations(&buf, []migration.Status{
		{Name: "2024_01_01_create_users_table", Ran: true, Batch: 1},
		{Name: "2024_01_02_create_orders_table"},
	}))
	assert.Regexp(t, `create_users_table\s+yes\s+1`, buf.String())
	assert.Regexp(t, `create_orders_table\s+no\s+-`, buf.String())
}
