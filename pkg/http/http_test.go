package http

import (
	"context"
	"io"
	gohttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBuildsRequest(t *testing.T) {
	var seen *gohttp.Request
	var body string
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		seen = r
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithHeader("apikey", "anon"))
	resp, err := c.Post("/rest/v1/orders").
		Query("select", "*").
		Bearer("tok").
		Header("Prefer", "return=representation").
		Body(map[string]any{"status": "pending"}).
		Send(context.Background())
	require.NoError(t, err)
	require.True(t, resp.OK())

	assert.Equal(t, "/rest/v1/orders", seen.URL.Path)
	assert.Equal(t, "*", seen.URL.Query().Get("select"))
	assert.Equal(t, "anon", seen.Header.Get("apikey"))
	assert.Equal(t, "Bearer tok", seen.Header.Get("Authorization"))
	assert.Equal(t, "return=representation", seen.Header.Get("Prefer"))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"status":"pending"}`, body)

	var rows []map[string]string
	require.NoError(t, resp.JSON(&rows))
	assert.Equal(t, "1", rows[0]["id"])
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(gohttp.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Get("/").Retry(3, time.Millisecond).Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		calls.Add(1)
		w.WriteHeader(gohttp.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Post("/").Retry(3, time.Millisecond).Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	err = resp.Throw()
	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, gohttp.StatusConflict, code)
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Get("/").Timeout(20 * time.Millisecond).Send(context.Background())
	assert.Error(t, err)
}
