package services

import (
	"strings"
	"sync"
)

// View is one of the fixed navigable views, identified by its path.
type View string

const (
	ViewHome   View = "/"
	ViewMenu   View = "/menu"
	ViewOrders View = "/orders"
	ViewAdmin  View = "/admin"
	ViewAbout  View = "/about"
	ViewLogin  View = "/auth/login"
)

var views = map[View]bool{
	ViewHome: true, ViewMenu: true, ViewOrders: true,
	ViewAdmin: true, ViewAbout: true, ViewLogin: true,
}

// protected views send an anonymous visitor to the login view.
var protected = map[View]bool{
	ViewHome: true, ViewMenu: true, ViewAdmin: true, ViewAbout: true,
}

const maxHistory = 50

// ResolveView maps an opaque location ("#/menu", "/menu?x=1", "menu", "")
// to a view. Empty and unknown locations resolve to the home view.
func ResolveView(location string) View {
	loc := strings.TrimSpace(location)
	loc = strings.TrimPrefix(loc, "#")
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	loc = strings.Trim(loc, "/")
	if loc == "" {
		return ViewHome
	}
	v := View("/" + strings.ToLower(loc))
	if views[v] {
		return v
	}
	return ViewHome
}

// Guard returns where a caller asking for v ends up, and whether that is a
// redirect.
func Guard(v View, authenticated bool) (View, bool) {
	switch {
	case !authenticated && protected[v]:
		return ViewLogin, true
	case authenticated && v == ViewLogin:
		return ViewHome, true
	}
	return v, false
}

// NavState is the persisted form of a Navigator.
type NavState struct {
	History []View `json:"history"`
}

// Navigator is the single source of truth for the current view of one
// session.
type Navigator struct {
	mu        sync.Mutex
	history   []View
	listeners map[int]func(View)
	next      int
}

func NewNavigator(state NavState) *Navigator {
	h := make([]View, 0, len(state.History)+1)
	for _, v := range state.History {
		if views[v] {
			h = append(h, v)
		}
	}
	if len(h) == 0 {
		h = append(h, ViewHome)
	}
	return &Navigator{history: h, listeners: map[int]func(View){}}
}

func (n *Navigator) Pathname() View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history[len(n.history)-1]
}

// Push navigates to target and adds a history entry.
func (n *Navigator) Push(target string) View {
	v := ResolveView(target)
	n.mu.Lock()
	n.history = append(n.history, v)
	if len(n.history) > maxHistory {
		n.history = n.history[len(n.history)-maxHistory:]
	}
	n.mu.Unlock()
	n.emit(v)
	return v
}

// Replace swaps the current entry.
func (n *Navigator) Replace(target string) View {
	v := ResolveView(target)
	n.mu.Lock()
	n.history[len(n.history)-1] = v
	n.mu.Unlock()
	n.emit(v)
	return v
}

// Back drops the current entry. The first entry is never dropped.
func (n *Navigator) Back() View {
	n.mu.Lock()
	if len(n.history) > 1 {
		n.history = n.history[:len(n.history)-1]
	}
	v := n.history[len(n.history)-1]
	n.mu.Unlock()
	n.emit(v)
	return v
}

// Sync re-derives the current view from a location that changed outside
// Push, such as the browser's back and forward buttons. Landing on the
// previous entry counts as going back.
func (n *Navigator) Sync(location string) View {
	v := ResolveView(location)
	n.mu.Lock()
	cur := n.history[len(n.history)-1]
	switch {
	case v == cur:
		n.mu.Unlock()
		return v
	case len(n.history) > 1 && n.history[len(n.history)-2] == v:
		n.history = n.history[:len(n.history)-1]
	default:
		n.history = append(n.history, v)
	}
	n.mu.Unlock()
	n.emit(v)
	return v
}

// OnChange registers fn for every view change and returns its cancel func.
func (n *Navigator) OnChange(fn func(View)) func() {
	n.mu.Lock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *Navigator) State() NavState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NavState{History: append([]View(nil), n.history...)}
}

func (n *Navigator) emit(v View) {
	n.mu.Lock()
	fns := make([]func(View), 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
