// Package session keeps per-visitor state (cart, navigation history) in a
// cache.Store keyed by a random id carried in a cookie or X-Session-ID header.
//
//	sess := session.FromCtx(r)
//	var cart services.Cart
//	_, _ = sess.Decode("cart", &cart)
//	sess.Put("cart", cart)
//	_ = sess.Save(r.Context())
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uvci/resto/pkg/cache"
)

// Header lets non-browser clients carry the session id without cookies.
const Header = "X-Session-ID"

type Options struct {
	CookieName string
	TTL        time.Duration
	HTTPOnly   bool
	Secure     bool
	SameSite   http.SameSite
	Path       string
}

func DefaultOptions() Options {
	return Options{
		CookieName: "resto_session",
		TTL:        12 * time.Hour,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
		Path:       "/",
	}
}

// Manager loads and persists sessions.
type Manager struct {
	store cache.Store
	opts  Options
}

func NewManager(store cache.Store, opts Options) *Manager {
	return &Manager{store: store, opts: opts}
}

func storeKey(id string) string { return "session:" + id }

// Session is the per-request handle. Values are kept as raw JSON so typed
// reads decode straight into the caller's struct.
type Session struct {
	mu      sync.Mutex
	id      string
	data    map[string]json.RawMessage
	changed bool
	mgr     *Manager
}

// Load returns the session for id, or a new empty one if id is unknown.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	s := &Session{id: id, data: map[string]json.RawMessage{}, mgr: m}
	if id == "" {
		s.id = uuid.NewString()
		return s, nil
	}
	if _, err := m.store.Get(ctx, storeKey(id), &s.data); err != nil {
		return s, fmt.Errorf("session: load: %w", err)
	}
	if s.data == nil {
		s.data = map[string]json.RawMessage{}
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Put stores v under key.
func (s *Session) Put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.changed = true
	s.mu.Unlock()
	return nil
}

// Decode reads key into dest and reports whether it was present.
func (s *Session) Decode(key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("session: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Session) GetString(key string) string {
	var v string
	_, _ = s.Decode(key, &v)
	return v
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.changed = true
	}
	s.mu.Unlock()
}

// Invalidate drops every value.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.data = map[string]json.RawMessage{}
	s.changed = true
	s.mu.Unlock()
}

// Reload replaces the values with the stored ones, dropping unsaved
// changes. Long-lived connections call it before writing.
func (s *Session) Reload(ctx context.Context) error {
	data := map[string]json.RawMessage{}
	if _, err := s.mgr.store.Get(ctx, storeKey(s.id), &data); err != nil {
		return fmt.Errorf("session: reload: %w", err)
	}
	if data == nil {
		data = map[string]json.RawMessage{}
	}
	s.mu.Lock()
	s.data = data
	s.changed = false
	s.mu.Unlock()
	return nil
}

// Save persists pending changes. A no-op when nothing changed.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.changed {
		return nil
	}
	if err := s.mgr.store.Set(ctx, storeKey(s.id), s.data, s.mgr.opts.TTL); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.changed = false
	return nil
}

type ctxKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Middleware loads the session, sets the cookie for new visitors, and
// flushes unsaved changes once the handler returns.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if id == "" {
				if c, err := r.Cookie(m.opts.CookieName); err == nil {
					id = c.Value
				}
			}
			if _, err := uuid.Parse(id); err != nil {
				id = ""
			}

			sess, _ := m.Load(r.Context(), id)
			if sess.id != id {
				http.SetCookie(w, &http.Cookie{
					Name:     m.opts.CookieName,
					Value:    sess.id,
					Path:     m.opts.Path,
					MaxAge:   int(m.opts.TTL.Seconds()),
					HttpOnly: m.opts.HTTPOnly,
					Secure:   m.opts.Secure,
					SameSite: m.opts.SameSite,
				})
			}
			w.Header().Set(Header, sess.id)

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
			_ = sess.Save(context.WithoutCancel(r.Context()))
		})
	}
}

// FromCtx returns the request session, or a detached empty one backed by an
// in-memory store when the middleware did not run.
func FromCtx(r *http.Request) *Session {
	if s, ok := r.Context().Value(ctxKey{}).(*Session); ok {
		return s
	}
	s, _ := NewManager(cache.NewMemory(), DefaultOptions()).Load(r.Context(), "")
	return s
}
