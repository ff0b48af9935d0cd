package controllers

import (
	"context"
	"net/http"

	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
	"github.com/uvci/resto/pkg/ws"
)

// HealthController answers /health with the database and catalog state.
type HealthController struct {
	check   func(ctx context.Context) error
	catalog *services.Catalog
	hub     *ws.Hub
}

func NewHealthController(check func(ctx context.Context) error, catalog *services.Catalog, hub *ws.Hub) *HealthController {
	return &HealthController{check: check, catalog: catalog, hub: hub}
}

func (h *HealthController) Show(c *ctx.Context) {
	status, code := "ok", http.StatusOK
	var dbErr string
	if h.check != nil {
		if err := h.check(c.Context()); err != nil {
			status, code, dbErr = "degraded", http.StatusServiceUnavailable, err.Error()
		}
	}
	body := map[string]any{
		"status":  status,
		"catalog": h.catalog.BreakerState(),
	}
	if dbErr != "" {
		body["database"] = dbErr
	}
	if h.hub != nil {
		body["realtime_clients"] = h.hub.ClientCount()
	}
	c.JSON(code, body)
}
