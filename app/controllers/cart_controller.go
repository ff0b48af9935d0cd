package controllers

import (
	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/ctx"
)

// CartController edits the cart of the visitor session.
type CartController struct {
	carts   *services.CartStore
	catalog *services.Catalog
}

func NewCartController(carts *services.CartStore, catalog *services.Catalog) *CartController {
	return &CartController{carts: carts, catalog: catalog}
}

func (h *CartController) Show(c *ctx.Context) {
	cart, err := h.carts.Load(c.Context(), sessionOf(c).ID())
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(cart.View())
}

type addItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	services.OptionChoice
}

type addItemResponse struct {
	Line services.CartItem `json:"line"`
	Cart services.CartView `json:"cart"`
}

// Add validates the option choice against the current menu and merges the
// line into the cart.
func (h *CartController) Add(c *ctx.Context) {
	var body addItemRequest
	if !c.BindJSON(&body) {
		return
	}
	item, ok := h.catalog.Item(c.Context(), body.MenuItemID)
	if !ok {
		c.Fail(apperr.Invalid(map[string]string{"menu_item_id": "Ce plat n'existe pas"}))
		return
	}
	opts, err := services.BuildSelection(item, body.OptionChoice)
	if err != nil {
		c.Fail(err)
		return
	}

	var line services.CartItem
	cart, err := h.carts.Update(c.Context(), sessionOf(c).ID(), func(cart *services.Cart) error {
		line = cart.Add(item, opts)
		return nil
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(addItemResponse{Line: line, Cart: cart.View()})
}

type quantityRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// UpdateQuantity applies a delta. A result below one leaves the line as is;
// an unknown line is a 404.
func (h *CartController) UpdateQuantity(c *ctx.Context) {
	var body quantityRequest
	if !c.BindJSON(&body) {
		return
	}
	cart, err := h.carts.Update(c.Context(), sessionOf(c).ID(), func(cart *services.Cart) error {
		if !cart.Has(c.Param("id")) {
			return apperr.ErrNotFound
		}
		cart.UpdateQuantity(c.Param("id"), body.Delta)
		return nil
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(cart.View())
}

func (h *CartController) Remove(c *ctx.Context) {
	cart, err := h.carts.Update(c.Context(), sessionOf(c).ID(), func(cart *services.Cart) error {
		if !cart.Remove(c.Param("id")) {
			return apperr.ErrNotFound
		}
		return nil
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(cart.View())
}

func (h *CartController) Clear(c *ctx.Context) {
	cart, err := h.carts.Update(c.Context(), sessionOf(c).ID(), func(cart *services.Cart) error {
		cart.Clear()
		return nil
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(cart.View())
}

type paymentRequest struct {
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,in=wave,cash"`
}

func (h *CartController) SetPaymentMethod(c *ctx.Context) {
	var body paymentRequest
	if !c.BindJSON(&body) {
		return
	}
	cart, err := h.carts.Update(c.Context(), sessionOf(c).ID(), func(cart *services.Cart) error {
		return cart.SetPaymentMethod(body.PaymentMethod)
	})
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(cart.View())
}
