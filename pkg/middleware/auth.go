package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/uvci/resto/pkg/response"
)

// Principal is the caller attached to the request by Authenticate.
type Principal struct {
	UserID string
	Email  string
	Role   string
	Token  string
}

// Authenticator turns a bearer token into a principal. ok is false for an
// anonymous caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (p Principal, ok bool)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromCtx(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromCtx returns the authenticated user id.
func UserIDFromCtx(r *http.Request) (string, bool) {
	p, ok := PrincipalFromCtx(r.Context())
	return p.UserID, ok
}

// RoleFromCtx returns the role carried by the token.
func RoleFromCtx(r *http.Request) (string, bool) {
	p, ok := PrincipalFromCtx(r.Context())
	return p.Role, ok
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate attaches the principal for a valid bearer token and lets
// anonymous requests through untouched.
func Authenticate(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, ok := a.Authenticate(r.Context(), token)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p.Token = token
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAuth answers 401 unless Authenticate attached a principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromCtx(r.Context()); !ok {
			response.Write(w, http.StatusUnauthorized, response.Envelope{
				Status:  http.StatusUnauthorized,
				Message: "Unauthorized",
				Data:    map[string]string{"redirect": "/auth/login"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
