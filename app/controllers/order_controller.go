package controllers

import (
	"errors"
	"net/http"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/ctx"
	"github.com/uvci/resto/pkg/response"
)

type OrderController struct {
	checkout *services.Checkout
	history  *services.History
}

func NewOrderController(checkout *services.Checkout, history *services.History) *OrderController {
	return &OrderController{checkout: checkout, history: history}
}

type submitRequest struct {
	ClientPhone   string               `json:"client_phone"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"nullable,in=wave,cash"`
}

// Submit places the session cart as an order. The caller is re-resolved
// from the bearer token; an anonymous caller gets 401 with the login view.
func (h *OrderController) Submit(c *ctx.Context) {
	var body submitRequest
	if !c.BindJSON(&body) {
		return
	}

	res, err := h.checkout.Submit(c.Context(), services.CheckoutRequest{
		SessionID:     sessionOf(c).ID(),
		Token:         c.BearerToken(),
		Phone:         body.ClientPhone,
		PaymentMethod: body.PaymentMethod,
	})

	var verr *apperr.ValidationError
	switch {
	case err == nil:
		c.Created(res)
	case errors.As(err, &verr):
		c.ValidationError(verr.Fields)
	case res.State == services.CheckoutUnauthorized:
		c.JSON(http.StatusUnauthorized, response.Envelope{
			Status:  http.StatusUnauthorized,
			Message: "Veuillez vous connecter pour commander",
			Data:    res,
		})
	case res.State == services.CheckoutFailed:
		c.JSON(http.StatusBadGateway, response.Envelope{
			Status:  http.StatusBadGateway,
			Message: "La commande n'a pas pu être enregistrée",
			Data:    res,
		})
	default:
		c.Fail(err)
	}
}

// Index lists the caller's own orders, newest first.
func (h *OrderController) Index(c *ctx.Context) {
	p, _ := principal(c)
	c.Success(h.history.List(c.Context(), p.UserID))
}
