// Package rbac gates routes on the caller's privileges.
package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/middleware"
	"github.com/uvci/resto/pkg/response"
)

// Authorizer decides whether the principal may pass.
type Authorizer interface {
	Authorize(ctx context.Context, p middleware.Principal) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p middleware.Principal) error

func (f AuthorizerFunc) Authorize(ctx context.Context, p middleware.Principal) error { return f(ctx, p) }

// Gate answers 401 without a principal and 403 when the authorizer refuses.
func Gate(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := middleware.PrincipalFromCtx(r.Context())
			if !ok {
				response.Unauthorized(w)
				return
			}
			if err := a.Authorize(r.Context(), p); err != nil {
				if !errors.Is(err, apperr.ErrForbidden) {
					logger.WithCtx(r.Context()).Error("rbac: authorize", "user_id", p.UserID, "error", err)
				}
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasRole admits principals whose token carries one of roles.
func HasRole(roles ...string) Authorizer {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return AuthorizerFunc(func(_ context.Context, p middleware.Principal) error {
		if allowed[p.Role] {
			return nil
		}
		return apperr.ErrForbidden
	})
}
