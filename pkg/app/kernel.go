package app

import (
	"fmt"
	"net/http"

	"github.com/uvci/resto/pkg/metrics"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/reqid"
	"github.com/uvci/resto/pkg/router"
)

// Handler builds the HTTP handler. Global middleware, outermost first:
//
//  1. Prometheus metrics, for total latency
//  2. Recovery
//  3. Request ID, before anything logs
//  4. Logger
//  5. Session
//  6. CORS
//  7. Rate limiter
func (a *Application) Handler() (http.Handler, error) {
	r, err := a.router()
	if err != nil {
		return nil, err
	}
	return r.Handler(), nil
}

// router applies the middleware before any route, as chi requires.
func (a *Application) router() (*router.Router, error) {
	r := router.New()

	r.Use(metrics.Middleware())
	r.Use(middleware.Recovery)
	r.Use(reqid.Middleware())
	r.Use(middleware.Logger)
	if a.sessions != nil {
		r.Use(a.sessions.Middleware())
	}
	r.Use(middleware.CORS(a.cors))
	if a.limiter != nil {
		r.Use(middleware.RateLimit(a.limiter))
	}
	r.Use(a.extra...)

	for _, fn := range a.routesFns {
		if err := fn(r); err != nil {
			return nil, fmt.Errorf("app: register routes: %w", err)
		}
	}
	return r, nil
}
