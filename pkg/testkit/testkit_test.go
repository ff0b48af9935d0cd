package testkit_test

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/pkg/testkit"
)

func write(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "data": data}) //nolint:errcheck
}

func counterHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ User string }
		json.NewDecoder(r.Body).Decode(&in) //nolint:errcheck
		write(w, http.StatusOK, map[string]any{"user": in.User, "token": "t-" + in.User})
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t-awa" {
			write(w, http.StatusUnauthorized, nil)
			return
		}
		visits := 1
		if c, err := r.Cookie("visits"); err == nil {
			n, _ := strconv.Atoi(c.Value)
			visits = n + 1
		}
		http.SetCookie(w, &http.Cookie{Name: "visits", Value: strconv.Itoa(visits)})
		write(w, http.StatusOK, map[string]any{"visits": visits, "tags": []string{"a", "b"}})
	})
	return mux
}

func TestRunDir(t *testing.T) {
	testkit.RunDir(t, "testdata", func(*testing.T) http.Handler { return counterHandler() })
}

func TestLookup(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"b":[{"c":1},{"c":2}]}}`), &doc))

	v, ok := testkit.Lookup(doc, "a.b.1.c")
	assert.True(t, ok)
	assert.Equal(t, float64(2), v)

	v, ok = testkit.Lookup(doc, "a.b.#")
	assert.True(t, ok)
	assert.Equal(t, float64(2), v)

	_, ok = testkit.Lookup(doc, "a.b.5.c")
	assert.False(t, ok)
	_, ok = testkit.Lookup(doc, "a.x")
	assert.False(t, ok)
}

func TestLoadFlowValidates(t *testing.T) {
	_, err := testkit.LoadFlow("testdata/missing.json")
	assert.Error(t, err)

	f, err := testkit.LoadFlow("testdata/counter.json")
	require.NoError(t, err)
	assert.Equal(t, "GET", f.Steps[1].Method)
	assert.Equal(t, 200, f.Steps[1].Status)
	assert.Equal(t, 401, f.Steps[3].Status)
}

func TestMockTransport(t *testing.T) {
	mt := testkit.NewMockTransport(
		testkit.Stub{Method: "GET", Prefix: "https://backend.test/rest/v1/menu_items", Body: []map[string]any{{"id": "m1"}}},
		testkit.Stub{Prefix: "https://backend.test/fail", Status: http.StatusServiceUnavailable},
	)
	hc := mt.Client()

	resp, err := hc.Get("https://backend.test/rest/v1/menu_items?select=*")
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	resp.Body.Close()
	assert.Equal(t, "m1", items[0]["id"])

	resp, err = hc.Get("https://backend.test/fail")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = hc.Post("https://backend.test/other", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Len(t, mt.Calls(), 3)
	assert.Equal(t, []string{"POST https://backend.test/other"}, mt.Misses())
}
