package controllers

import (
	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// SignUp creates the account. It does not sign the user in.
func (h *AuthController) SignUp(c *ctx.Context) {
	var body credentials
	if !c.BindJSON(&body) {
		return
	}
	role, err := h.auth.SignUp(c.Context(), body.Email, body.Password)
	if err != nil {
		c.Fail(err)
		return
	}
	c.Created(map[string]string{"role": string(role)})
}

// Login answers with the token and sends the session navigator to the menu.
func (h *AuthController) Login(c *ctx.Context) {
	var body credentials
	if !c.BindJSON(&body) {
		return
	}
	res, err := h.auth.SignIn(c.Context(), body.Email, body.Password)
	if err != nil {
		c.Fail(err)
		return
	}

	nav, stop := loadNavigator(sessionOf(c))
	defer stop()
	nav.Push(res.Redirect)

	c.Success(res)
}

func (h *AuthController) Logout(c *ctx.Context) {
	p, _ := principal(c)
	if err := h.auth.SignOut(c.Context(), p.Token); err != nil {
		c.Fail(err)
		return
	}

	nav, stop := loadNavigator(sessionOf(c))
	defer stop()
	nav.Push(string(services.ViewLogin))

	c.Success(map[string]string{"redirect": string(services.ViewLogin)})
}
