// Package controllers adapts the ordering services to HTTP. Handlers take a
// *ctx.Context and answer with the JSON envelope of pkg/response.
package controllers

import (
	"context"

	"github.com/uvci/resto/app/services"
	"github.com/uvci/resto/pkg/ctx"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/session"
)

// navKey holds the navigation history in the visitor session.
const navKey = "nav"

func principal(c *ctx.Context) (middleware.Principal, bool) {
	return middleware.PrincipalFromCtx(c.Context())
}

func sessionOf(c *ctx.Context) *session.Session {
	return session.FromCtx(c.R)
}

// loadNavigator rebuilds the session navigator. Every change is written back
// to the session; the session middleware saves it after the handler.
func loadNavigator(sess *session.Session) (*services.Navigator, func()) {
	var state services.NavState
	if _, err := sess.Decode(navKey, &state); err != nil {
		logger.Warn("navigation: stored history unreadable, starting over", "session", sess.ID(), "error", err)
	}
	nav := services.NewNavigator(state)
	stop := nav.OnChange(func(services.View) {
		_ = sess.Put(navKey, nav.State())
	})
	return nav, stop
}

// redirectToLogin moves a session to the login view from outside the
// request lifecycle. The session is reloaded first so history recorded by
// other requests since the connection opened is kept.
func redirectToLogin(ctx context.Context, sess *session.Session) {
	if err := sess.Reload(ctx); err != nil {
		logger.Warn("navigation: session not reloaded", "session", sess.ID(), "error", err)
	}
	nav, stop := loadNavigator(sess)
	defer stop()
	nav.Push(string(services.ViewLogin))
	if err := sess.Save(ctx); err != nil {
		logger.Warn("navigation: session not saved", "session", sess.ID(), "error", err)
	}
}
