package controllers

import (
	"net/http"

	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
)

// SessionController exposes the resolved identity and the navigation state
// of the visitor session.
type SessionController struct {
	identity *services.IdentityResolver
}

func NewSessionController(identity *services.IdentityResolver) *SessionController {
	return &SessionController{identity: identity}
}

type sessionView struct {
	Identity services.Identity `json:"identity"`
	Pathname services.View     `json:"pathname"`
}

type navigationView struct {
	Pathname   services.View `json:"pathname"`
	Redirected bool          `json:"redirected"`
}

// Show never waits longer than the session timeout; a slow or failed
// lookup yields an anonymous identity.
func (h *SessionController) Show(c *ctx.Context) {
	id := h.identity.Resolve(c.Context(), c.BearerToken())
	nav, stop := loadNavigator(sessionOf(c))
	defer stop()

	view, _ := h.guard(nav, id.Authenticated)
	c.Success(sessionView{Identity: id, Pathname: view})
}

func (h *SessionController) Navigation(c *ctx.Context) {
	id := h.identity.Resolve(c.Context(), c.BearerToken())
	nav, stop := loadNavigator(sessionOf(c))
	defer stop()

	view, redirected := h.guard(nav, id.Authenticated)
	c.Success(navigationView{Pathname: view, Redirected: redirected})
}

type navigateRequest struct {
	Action string `json:"action" validate:"required,in=push,replace,back,sync"`
	Target string `json:"target"`
}

// Navigate applies one history operation then the route guard.
func (h *SessionController) Navigate(c *ctx.Context) {
	var body navigateRequest
	if !c.BindJSON(&body) {
		return
	}
	id := h.identity.Resolve(c.Context(), c.BearerToken())
	nav, stop := loadNavigator(sessionOf(c))
	defer stop()

	switch body.Action {
	case "push":
		nav.Push(body.Target)
	case "replace":
		nav.Replace(body.Target)
	case "back":
		nav.Back()
	case "sync":
		nav.Sync(body.Target)
	default:
		c.Error(http.StatusBadRequest, "unknown navigation action")
		return
	}

	view, redirected := h.guard(nav, id.Authenticated)
	c.Success(navigationView{Pathname: view, Redirected: redirected})
}

// guard replaces the current entry when the caller may not stay on it.
func (h *SessionController) guard(nav *services.Navigator, authenticated bool) (services.View, bool) {
	view, redirect := services.Guard(nav.Pathname(), authenticated)
	if redirect {
		nav.Replace(string(view))
	}
	return view, redirect
}
