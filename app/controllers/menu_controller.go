package controllers

import (
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
)

type MenuController struct {
	catalog *services.Catalog
}

func NewMenuController(catalog *services.Catalog) *MenuController {
	return &MenuController{catalog: catalog}
}

// Index lists the menu filtered by ?category= and ?q=. The snapshot carries
// the data source that produced it.
func (h *MenuController) Index(c *ctx.Context) {
	c.Success(h.catalog.Menu(c.Context(), services.MenuQuery{
		Category: c.Query("category"),
		Search:   c.Query("q"),
	}))
}
