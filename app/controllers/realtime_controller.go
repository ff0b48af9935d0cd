package controllers

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/sse"
	"github.com/uvci/resto/pkg/ws"
)

// RealtimeTables are the tables clients may subscribe to.
var RealtimeTables = []string{"menu_items", "meal_options", "orders", "order_items"}

const sseHeartbeat = 25 * time.Second

// RealtimeController streams table changes over a websocket or SSE. An
// authenticated connection also receives its own sign-out, after which the
// session navigator sits on the login view.
type RealtimeController struct {
	hub      *ws.Hub
	bus      *event.Bus
	identity *services.IdentityResolver
}

func NewRealtimeController(hub *ws.Hub, bus *event.Bus, identity *services.IdentityResolver) *RealtimeController {
	return &RealtimeController{hub: hub, bus: bus, identity: identity}
}

// Forward relays bus changes of every realtime table to the websocket hub.
func (h *RealtimeController) Forward() []*event.Subscription {
	subs := make([]*event.Subscription, 0, len(RealtimeTables))
	for _, table := range RealtimeTables {
		table := table
		subs = append(subs, h.bus.SubscribeTable(table, nil, func(_ context.Context, c event.Change) {
			raw, err := json.Marshal(realtimeMessage{Type: "change", Change: &c})
			if err != nil {
				return
			}
			h.hub.Publish(table, raw)
		}))
	}
	return subs
}

type realtimeMessage struct {
	Type   string              `json:"type"`
	Change *event.Change       `json:"change,omitempty"`
	Auth   *services.AuthEvent `json:"auth,omitempty"`
}

// tables parses ?tables=a,b. Unknown names are ignored; none means all.
func tables(raw string) []string {
	known := make(map[string]bool, len(RealtimeTables))
	for _, t := range RealtimeTables {
		known[t] = true
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if known[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return RealtimeTables
	}
	return out
}

func mask(raw string) []event.ChangeType {
	var out []event.ChangeType
	for _, m := range strings.Split(raw, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			out = append(out, event.ChangeType(m))
		}
	}
	return out
}

// token reads the bearer header, or ?access_token= for browsers that cannot
// set headers on a websocket handshake.
func token(c *ctx.Context) string {
	if t := c.BearerToken(); t != "" {
		return t
	}
	return c.Query("access_token")
}

// mount subscribes the connection to its user's sign-out. It returns nil
// for anonymous callers.
func (h *RealtimeController) mount(c *ctx.Context, sink func(services.AuthEvent)) *services.Mount {
	id := h.identity.Resolve(c.Context(), token(c))
	if !id.Authenticated {
		return nil
	}
	sess := sessionOf(c)
	return h.identity.Mount(id.UserID, nil, func(ev services.AuthEvent) {
		redirectToLogin(context.Background(), sess)
		sink(ev)
	})
}

func (h *RealtimeController) WebSocket(c *ctx.Context) {
	var client atomic.Pointer[ws.Client]
	m := h.mount(c, func(ev services.AuthEvent) {
		if cl := client.Load(); cl != nil {
			raw, _ := json.Marshal(realtimeMessage{Type: "auth", Auth: &ev})
			cl.Send(raw)
		}
	})
	closeMount := func() {
		if m != nil {
			m.Close()
		}
	}

	cl, err := ws.Upgrade(c.W, c.R, h.hub, tables(c.Query("tables")), closeMount)
	if err != nil {
		closeMount()
		logger.WithCtx(c.Context()).Warn("realtime: websocket upgrade failed", "error", err)
		return
	}
	client.Store(cl)
}

// Stream is the SSE transport. ?events= narrows the change types.
func (h *RealtimeController) Stream(c *ctx.Context) {
	stream := sse.New(c.W, c.R)
	if stream == nil {
		return
	}

	out := make(chan sse.Message, 64)
	push := func(msg sse.Message) {
		select {
		case out <- msg:
		default:
			logger.WithCtx(c.Context()).Warn("realtime: sse client too slow, dropping event", "event", msg.Event)
		}
	}

	evMask := mask(c.Query("events"))
	for _, table := range tables(c.Query("tables")) {
		sub := h.bus.SubscribeTable(table, evMask, func(_ context.Context, ch event.Change) {
			push(sse.Message{Event: "change", Data: ch})
		})
		defer sub.Unsubscribe()
	}
	if m := h.mount(c, func(ev services.AuthEvent) {
		push(sse.Message{Event: "auth", Data: ev})
	}); m != nil {
		defer m.Close()
	}

	metrics.RealtimeSubscribers.WithLabelValues("sse").Inc()
	defer metrics.RealtimeSubscribers.WithLabelValues("sse").Dec()

	if err := stream.Serve(c.Context(), out, sseHeartbeat); err != nil {
		logger.WithCtx(c.Context()).Debug("realtime: sse stream closed", "error", err)
	}
}
