package controllers

import (
	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/ctx"
)

const maxImageBytes = 5 << 20

// AdminController serves the admin console. Routes sit behind the admin gate.
type AdminController struct {
	admin *services.Admin
}

func NewAdminController(admin *services.Admin) *AdminController {
	return &AdminController{admin: admin}
}

func (h *AdminController) Orders(c *ctx.Context) {
	c.Success(h.admin.Board(c.Context()))
}

type statusRequest struct {
	Status string `json:"status"`
}

// AdvanceStatus moves the order to the given status, or to the next one
// when the body names none.
func (h *AdminController) AdvanceStatus(c *ctx.Context) {
	var body statusRequest
	if !c.BindJSON(&body) {
		return
	}
	var to models.OrderStatus
	if body.Status != "" {
		s, ok := models.NormalizeStatus(body.Status)
		if !ok {
			c.ValidationError(map[string]string{"status": "The selected status is invalid."})
			return
		}
		to = s
	}

	order, err := h.admin.AdvanceStatus(c.Context(), c.Param("id"), to)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(order)
}

func (h *AdminController) Options(c *ctx.Context) {
	c.Success(h.admin.OptionNames(c.Context()))
}

func (h *AdminController) Stats(c *ctx.Context) {
	c.Success(h.admin.Stats(c.Context()))
}

func (h *AdminController) Menu(c *ctx.Context) {
	c.Success(h.admin.Menu(c.Context()))
}

func (h *AdminController) CreateItem(c *ctx.Context) {
	var body services.MenuItemInput
	if !c.BindJSON(&body) {
		return
	}
	body.ID = ""
	item, err := h.admin.SaveItem(c.Context(), body)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(item)
}

func (h *AdminController) UpdateItem(c *ctx.Context) {
	var body services.MenuItemInput
	if !c.BindJSON(&body) {
		return
	}
	body.ID = c.Param("id")
	item, err := h.admin.SaveItem(c.Context(), body)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(item)
}

func (h *AdminController) DeleteItem(c *ctx.Context) {
	if err := h.admin.DeleteItem(c.Context(), c.Param("id")); err != nil {
		c.Fail(err)
		return
	}
	c.Success(map[string]string{"id": c.Param("id")})
}

// UploadImage reads the multipart field "image".
func (h *AdminController) UploadImage(c *ctx.Context) {
	file, header, err := c.FormFile("image", maxImageBytes)
	if err != nil {
		c.Fail(apperr.Invalid(map[string]string{"image": "The image field is required."}))
		return
	}
	defer file.Close()

	url, err := h.admin.UploadImage(c.Context(), c.Param("id"), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Success(map[string]string{"image_url": url})
}
