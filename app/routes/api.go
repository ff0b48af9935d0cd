package routes

import (
	"context"
	"fmt"

	"github.com/uvci/resto/app/controllers"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/graphql"
	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/rbac"
	"github.com/uvci/resto/pkg/router"
	"github.com/uvci/resto/pkg/ws"
)

// Deps are the services the HTTP API is built on.
type Deps struct {
	Auth     *services.AuthService
	Identity *services.IdentityResolver
	Catalog  *services.Catalog
	Carts    *services.CartStore
	Checkout *services.Checkout
	History  *services.History
	Admin    *services.Admin
	Hub      *ws.Hub
	Bus      *event.Bus
	Health   func(ctx context.Context) error
}

// RegisterAPI mounts every route. It returns the bus subscriptions feeding
// the websocket hub.
func RegisterAPI(r *router.Router, d Deps) ([]*event.Subscription, error) {
	authCtl := controllers.NewAuthController(d.Auth)
	sessionCtl := controllers.NewSessionController(d.Identity)
	menuCtl := controllers.NewMenuController(d.Catalog)
	cartCtl := controllers.NewCartController(d.Carts, d.Catalog)
	orderCtl := controllers.NewOrderController(d.Checkout, d.History)
	adminCtl := controllers.NewAdminController(d.Admin)
	realtimeCtl := controllers.NewRealtimeController(d.Hub, d.Bus, d.Identity)
	healthCtl := controllers.NewHealthController(d.Health, d.Catalog, d.Hub)

	schema, err := controllers.NewMenuSchema(d.Catalog)
	if err != nil {
		return nil, fmt.Errorf("routes: graphql schema: %w", err)
	}

	r.Handle("/metrics", "metrics", metrics.Handler())
	r.Get("/health", "health", ctx.Wrap(healthCtl.Show))
	r.Handle("/graphql", "graphql", graphql.Handler(schema))

	api := r.Group("/api", middleware.Authenticate(d.Identity))

	api.Post("/auth/signup", "auth.signup", ctx.Wrap(authCtl.SignUp))
	api.Post("/auth/login", "auth.login", ctx.Wrap(authCtl.Login))
	api.Post("/auth/logout", "auth.logout", ctx.Wrap(authCtl.Logout), middleware.RequireAuth)

	api.Get("/session", "session.show", ctx.Wrap(sessionCtl.Show))
	api.Get("/navigation", "navigation.show", ctx.Wrap(sessionCtl.Navigation))
	api.Post("/navigation", "navigation.update", ctx.Wrap(sessionCtl.Navigate))

	api.Get("/menu", "menu.index", ctx.Wrap(menuCtl.Index))

	api.Get("/cart", "cart.show", ctx.Wrap(cartCtl.Show))
	api.Delete("/cart", "cart.clear", ctx.Wrap(cartCtl.Clear))
	api.Post("/cart/items", "cart.add", ctx.Wrap(cartCtl.Add), middleware.RequireAuth)
	api.Patch("/cart/items/{id}", "cart.quantity", ctx.Wrap(cartCtl.UpdateQuantity))
	api.Delete("/cart/items/{id}", "cart.remove", ctx.Wrap(cartCtl.Remove))
	api.Put("/cart/payment-method", "cart.payment", ctx.Wrap(cartCtl.SetPaymentMethod))

	api.Post("/orders", "orders.submit", ctx.Wrap(orderCtl.Submit))
	api.Get("/orders", "orders.index", ctx.Wrap(orderCtl.Index), middleware.RequireAuth)

	admin := api.Group("/admin", rbac.Gate(d.Admin))
	admin.Get("/orders", "admin.orders", ctx.Wrap(adminCtl.Orders))
	admin.Patch("/orders/{id}/status", "admin.orders.status", ctx.Wrap(adminCtl.AdvanceStatus))
	admin.Get("/options", "admin.options", ctx.Wrap(adminCtl.Options))
	admin.Get("/stats", "admin.stats", ctx.Wrap(adminCtl.Stats))
	admin.Get("/menu", "admin.menu.index", ctx.Wrap(adminCtl.Menu))
	admin.Post("/menu", "admin.menu.store", ctx.Wrap(adminCtl.CreateItem))
	admin.Put("/menu/{id}", "admin.menu.update", ctx.Wrap(adminCtl.UpdateItem))
	admin.Delete("/menu/{id}", "admin.menu.destroy", ctx.Wrap(adminCtl.DeleteItem))
	admin.Post("/menu/{id}/image", "admin.menu.image", ctx.Wrap(adminCtl.UploadImage))

	api.Get("/realtime/ws", "realtime.ws", ctx.Wrap(realtimeCtl.WebSocket))
	api.Get("/realtime/stream", "realtime.stream", ctx.Wrap(realtimeCtl.Stream))

	return realtimeCtl.Forward(), nil
}
