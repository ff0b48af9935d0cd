package testkit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDir runs every flow in dir as a subtest. newHandler is called once per
// flow so flows never share state.
func RunDir(t *testing.T, dir string, newHandler func(t *testing.T) http.Handler) {
	t.Helper()
	flows, err := LoadDir(dir)
	require.NoError(t, err)
	for _, f := range flows {
		t.Run(f.Name, func(t *testing.T) {
			Run(t, newHandler(t), f)
		})
	}
}

// Run executes the steps of f in order against h.
func Run(t *testing.T, h http.Handler, f *Flow) {
	t.Helper()
	c := &client{h: h, vars: map[string]string{}, cookies: map[string]*http.Cookie{}}
	for i, s := range f.Steps {
		if !t.Run(s.Label(i), func(t *testing.T) { c.step(t, s) }) {
			return
		}
	}
}

// client is one browser: a cookie jar plus captured variables.
type client struct {
	h       http.Handler
	vars    map[string]string
	cookies map[string]*http.Cookie
}

func (c *client) expand(s string) string {
	for k, v := range c.vars {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}

func (c *client) step(t *testing.T, s Step) {
	var body io.Reader
	if len(s.Body) > 0 {
		body = strings.NewReader(c.expand(string(s.Body)))
	}
	req := httptest.NewRequest(strings.ToUpper(s.Method), c.expand(s.URL), body)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range s.Headers {
		req.Header.Set(k, c.expand(v))
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}

	assert.Equal(t, s.Status, rec.Code, "status\nbody: %s", rec.Body.String())
	if len(s.Expect) == 0 && len(s.Absent) == 0 && len(s.Capture) == 0 {
		return
	}

	var doc any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&doc),
		"response is not JSON: %s", rec.Body.String())
	AssertPaths(t, doc, s.Expect)
	for _, p := range s.Absent {
		_, ok := Lookup(doc, p)
		assert.False(t, ok, "%s should be absent", p)
	}
	for name, p := range s.Capture {
		v, ok := Lookup(doc, p)
		require.True(t, ok, "capture %s: %s not found in %s", name, p, rec.Body.String())
		c.vars[name] = scalar(v)
	}
}
