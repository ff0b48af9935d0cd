// Package app assembles the HTTP kernel: the global middleware stack, the
// route callbacks and the serve lifecycle. It holds no project code; routes
// and services are injected through the builder.
//
//	app.New().
//	    Sessions(session.NewManager(store, session.DefaultOptions())).
//	    RateLimit(middleware.NewLimiter(200, time.Minute)).
//	    Routes(func(r *router.Router) error { ... }).
//	    Serve(ctx, server.Config{Addr: ":8080"})
package app

import (
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/router"
	"github.com/uvci/resto/pkg/session"
)

// RouteFunc registers routes on the kernel router.
type RouteFunc func(r *router.Router) error

// Application is the kernel configuration. Build one with New().
type Application struct {
	routesFns []RouteFunc
	sessions  *session.Manager
	limiter   *middleware.Limiter
	cors      middleware.CORSOptions
	extra     []router.Middleware
}

func New() *Application {
	return &Application{cors: middleware.DefaultCORSOptions()}
}

// Routes adds a route-registration callback. Callbacks run in order.
func (a *Application) Routes(fn RouteFunc) *Application {
	a.routesFns = append(a.routesFns, fn)
	return a
}

// Sessions enables the session middleware.
func (a *Application) Sessions(m *session.Manager) *Application {
	a.sessions = m
	return a
}

// RateLimit enables per-IP rate limiting.
func (a *Application) RateLimit(l *middleware.Limiter) *Application {
	a.limiter = l
	return a
}

// CORS restricts the allowed origins. Other CORS settings keep their defaults.
func (a *Application) CORS(origins []string) *Application {
	if len(origins) > 0 {
		a.cors.AllowedOrigins = origins
	}
	return a
}

// Use appends middleware after the built-in stack.
func (a *Application) Use(mws ...router.Middleware) *Application {
	a.extra = append(a.extra, mws...)
	return a
}
