package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/pkg/cache"
)

type navState struct {
	History []string `json:"history"`
}

func newManager(t *testing.T) *Manager {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(cache.NewRedis(rdb, "resto:"), DefaultOptions())
}

func TestSessionPersistsAcrossRequests(t *testing.T) {
	mgr := newManager(t)

	h := mgr.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := FromCtx(r)
		var nav navState
		_, err := sess.Decode("nav", &nav)
		require.NoError(t, err)
		nav.History = append(nav.History, r.URL.Path)
		require.NoError(t, sess.Put("nav", nav))
		_, _ = w.Write([]byte(sess.ID()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	id := cookies[0].Value
	assert.Equal(t, id, rec.Header().Get(Header))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies(), "known session must not be re-issued")
	assert.Equal(t, id, rec.Body.String())

	sess, err := mgr.Load(context.Background(), id)
	require.NoError(t, err)
	var nav navState
	ok, err := sess.Decode("nav", &nav)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"/menu", "/orders"}, nav.History)
}

func TestHeaderCarriesSessionID(t *testing.T) {
	mgr := newManager(t)
	sess, _ := mgr.Load(context.Background(), "")
	require.NoError(t, sess.Put("payment_method", "cash"))
	require.NoError(t, sess.Save(context.Background()))

	var got string
	h := mgr.Middleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = FromCtx(r).GetString("payment_method")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, sess.ID())
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "cash", got)
}

func TestGarbageIDStartsFreshSession(t *testing.T) {
	mgr := newManager(t)
	h := mgr.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(FromCtx(r).ID()))
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "../../etc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "../../etc", rec.Body.String())
	assert.Len(t, rec.Result().Cookies(), 1)
}

func TestInvalidateAndDelete(t *testing.T) {
	sess, _ := NewManager(cache.NewMemory(), DefaultOptions()).Load(context.Background(), "")
	require.NoError(t, sess.Put("a", 1))
	require.NoError(t, sess.Put("b", 2))
	sess.Delete("a")
	ok, _ := sess.Decode("a", new(int))
	assert.False(t, ok)

	sess.Invalidate()
	ok, _ = sess.Decode("b", new(int))
	assert.False(t, ok)
}

func TestReloadPicksUpWritesFromOtherHandles(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()

	held, err := mgr.Load(ctx, "")
	require.NoError(t, err)
	require.NoError(t, held.Put("nav", navState{History: []string{"/"}}))
	require.NoError(t, held.Save(ctx))

	other, err := mgr.Load(ctx, held.ID())
	require.NoError(t, err)
	require.NoError(t, other.Put("nav", navState{History: []string{"/", "/menu", "/orders"}}))
	require.NoError(t, other.Save(ctx))

	require.NoError(t, held.Reload(ctx))
	var got navState
	ok, err := held.Decode("nav", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"/", "/menu", "/orders"}, got.History)
}
