package services

import (
	"context"
	"sync"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/auth"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/logger"
	"github.com/uvci/resto/pkg/middleware"
)

// Identity is the resolved caller.
type Identity struct {
	Authenticated bool        `json:"authenticated"`
	UserID        string      `json:"user_id,omitempty"`
	Email         string      `json:"email,omitempty"`
	Role          models.Role `json:"role"`
	DisplayRole   string      `json:"display_role"`
	BalancePoints int         `json:"balance_points"`
}

// Anonymous is the identity of a caller without a usable session.
func Anonymous() Identity {
	return Identity{Role: models.RoleClient, DisplayRole: models.DisplayRole(models.RoleClient)}
}

// SessionLookup validates a token. AuthService implements it.
type SessionLookup interface {
	Session(ctx context.Context, token string) (*auth.Claims, error)
}

// IdentityResolver turns a bearer token into an Identity without ever
// blocking longer than its session timeout.
type IdentityResolver struct {
	sessions    SessionLookup
	profiles    repositories.UserRepository
	bus         *event.Bus
	timeout     time.Duration
	roleTimeout time.Duration
}

func NewIdentityResolver(sessions SessionLookup, profiles repositories.UserRepository, bus *event.Bus, timeout, roleTimeout time.Duration) *IdentityResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if roleTimeout <= 0 {
		roleTimeout = time.Second
	}
	return &IdentityResolver{sessions: sessions, profiles: profiles, bus: bus, timeout: timeout, roleTimeout: roleTimeout}
}

type sessionResult struct {
	claims *auth.Claims
	err    error
}

// Resolve races the session lookup against the timeout. A slow or failing
// lookup yields the anonymous identity. The role is read best effort and
// defaults to client.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) Identity {
	if token == "" {
		return Anonymous()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan sessionResult, 1)
	go func() {
		claims, err := r.sessions.Session(lookupCtx, token)
		done <- sessionResult{claims, err}
	}()

	var res sessionResult
	select {
	case res = <-done:
	case <-lookupCtx.Done():
		logger.WithCtx(ctx).Warn("identity: session lookup timed out, treating caller as anonymous", "timeout", r.timeout)
		return Anonymous()
	}
	if res.err != nil || res.claims == nil {
		return Anonymous()
	}

	role := r.role(ctx, res.claims.UserID)
	return Identity{
		Authenticated: true,
		UserID:        res.claims.UserID,
		Email:         res.claims.Email,
		Role:          role,
		DisplayRole:   models.DisplayRole(role),
	}
}

func (r *IdentityResolver) role(ctx context.Context, userID string) models.Role {
	ctx, cancel := context.WithTimeout(ctx, r.roleTimeout)
	defer cancel()

	p, err := r.profiles.FindProfile(ctx, userID)
	if err != nil {
		logger.WithCtx(ctx).Warn("identity: role lookup failed, using client", "user_id", userID, "error", err)
		return models.RoleClient
	}
	if p.Role == models.RoleAdmin {
		return models.RoleAdmin
	}
	return models.RoleClient
}

// Authenticate implements middleware.Authenticator.
func (r *IdentityResolver) Authenticate(ctx context.Context, token string) (middleware.Principal, bool) {
	id := r.Resolve(ctx, token)
	if !id.Authenticated {
		return middleware.Principal{}, false
	}
	return middleware.Principal{UserID: id.UserID, Email: id.Email, Role: string(id.Role), Token: token}, true
}

// Mount is one live subscription to the auth changes of a user.
type Mount struct {
	sub  *event.Subscription
	once sync.Once
}

// Mount subscribes to sign-out events for userID. On sign-out the navigator
// is sent to the login view and sink, when set, is told. Close tears the
// subscription down.
func (r *IdentityResolver) Mount(userID string, nav *Navigator, sink func(AuthEvent)) *Mount {
	sub := r.bus.Subscribe(TopicSignedOut, func(_ context.Context, payload interface{}) {
		ev, ok := payload.(AuthEvent)
		if !ok || ev.UserID != userID {
			return
		}
		if nav != nil {
			nav.Push(string(ViewLogin))
		}
		if sink != nil {
			sink(ev)
		}
	})
	return &Mount{sub: sub}
}

// Close is safe to call more than once.
func (m *Mount) Close() {
	m.once.Do(m.sub.Unsubscribe)
}
