package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/auth"
	"github.com/uvci/resto/pkg/cache"
	"github.com/uvci/resto/pkg/event"
)

func newAuth(t *testing.T) (*AuthService, repositories.Gateway, *event.Bus) {
	t.Helper()
	gw, bus := newGateway(t)
	svc := NewAuthService(gw.Users, auth.NewIssuer("test-secret", time.Hour), cache.NewMemory(), bus, AuthConfig{
		InstitutionDomain: "@uvci.edu.ci",
		AdminEmails:       []string{"resto@uvci.edu.ci"},
	})
	return svc, gw, bus
}

func TestNormalizeEmail(t *testing.T) {
	svc, _, _ := newAuth(t)

	got, err := svc.NormalizeEmail("  Kone.Awa@UVCI.edu.ci ")
	require.NoError(t, err)
	assert.Equal(t, "kone.awa@uvci.edu.ci", got)

	for _, bad := range []string{"", "kone@gmail.com", "@uvci.edu.ci", "kone@uvci.edu.ci.fr"} {
		_, err := svc.NormalizeEmail(bad)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	svc, gw, bus := newAuth(t)
	ctx := context.Background()

	var events []AuthEvent
	sub := bus.Subscribe(TopicSignedIn, func(_ context.Context, p interface{}) { events = append(events, p.(AuthEvent)) })
	defer sub.Unsubscribe()

	role, err := svc.SignUp(ctx, "kone@uvci.edu.ci", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, role)

	_, err = svc.SignUp(ctx, "kone@uvci.edu.ci", "secret1")
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = svc.SignUp(ctx, "yao@uvci.edu.ci", "12345")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	res, err := svc.SignIn(ctx, "KONE@uvci.edu.ci", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "/menu", res.Redirect)
	assert.Equal(t, "client", res.Role)
	assert.NotEmpty(t, res.Token)
	require.Len(t, events, 1)
	assert.Equal(t, res.UserID, events[0].UserID)

	_, err = svc.SignIn(ctx, "kone@uvci.edu.ci", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.SignIn(ctx, "nobody@uvci.edu.ci", "secret1")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	profile, err := gw.Users.FindProfile(ctx, res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "kone@uvci.edu.ci", profile.Email)
}

func TestSignUpAllowListedAdmin(t *testing.T) {
	svc, _, _ := newAuth(t)
	ctx := context.Background()

	role, err := svc.SignUp(ctx, "Resto@uvci.edu.ci", "resto-admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	res, err := svc.SignIn(ctx, "resto@uvci.edu.ci", "resto-admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.Role)
}

func TestSignOutRevokesToken(t *testing.T) {
	svc, _, bus := newAuth(t)
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "kone@uvci.edu.ci", "secret1")
	require.NoError(t, err)
	res, err := svc.SignIn(ctx, "kone@uvci.edu.ci", "secret1")
	require.NoError(t, err)

	claims, err := svc.Session(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, claims.UserID)

	var out []AuthEvent
	sub := bus.Subscribe(TopicSignedOut, func(_ context.Context, p interface{}) { out = append(out, p.(AuthEvent)) })
	defer sub.Unsubscribe()

	require.NoError(t, svc.SignOut(ctx, res.Token))
	require.Len(t, out, 1)

	_, err = svc.Session(ctx, res.Token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	assert.NoError(t, svc.SignOut(ctx, "garbage"))
	_, err = svc.Session(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

type slowSessions struct {
	delay  time.Duration
	claims *auth.Claims
	err    error
}

func (s slowSessions) Session(ctx context.Context, _ string) (*auth.Claims, error) {
	select {
	case <-time.After(s.delay):
		return s.claims, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type profileOnly struct {
	repositories.UserRepository
	profile models.Profile
	err     error
}

func (p profileOnly) FindProfile(context.Context, string) (models.Profile, error) { return p.profile, p.err }

func TestIdentityResolver(t *testing.T) {
	claims := &auth.Claims{UserID: "u-1", Email: "kone@uvci.edu.ci"}
	admin := profileOnly{profile: models.Profile{ID: "u-1", Role: models.RoleAdmin}}
	bus := event.New()
	ctx := context.Background()

	t.Run("no token", func(t *testing.T) {
		r := NewIdentityResolver(slowSessions{claims: claims}, admin, bus, time.Second, time.Second)
		assert.Equal(t, Anonymous(), r.Resolve(ctx, ""))
	})

	t.Run("admin", func(t *testing.T) {
		r := NewIdentityResolver(slowSessions{claims: claims}, admin, bus, time.Second, time.Second)
		id := r.Resolve(ctx, "tok")
		assert.True(t, id.Authenticated)
		assert.Equal(t, models.RoleAdmin, id.Role)
		assert.Equal(t, "admin", id.DisplayRole)
		assert.Zero(t, id.BalancePoints)
	})

	t.Run("role lookup fails", func(t *testing.T) {
		r := NewIdentityResolver(slowSessions{claims: claims}, profileOnly{err: errors.New("boom")}, bus, time.Second, time.Second)
		id := r.Resolve(ctx, "tok")
		assert.True(t, id.Authenticated)
		assert.Equal(t, models.RoleClient, id.Role)
		assert.Equal(t, "student", id.DisplayRole)
	})

	t.Run("slow session is anonymous", func(t *testing.T) {
		r := NewIdentityResolver(slowSessions{delay: time.Second, claims: claims}, admin, bus, 30*time.Millisecond, time.Second)
		start := time.Now()
		id := r.Resolve(ctx, "tok")
		assert.False(t, id.Authenticated)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := NewIdentityResolver(slowSessions{err: apperr.ErrUnauthorized}, admin, bus, time.Second, time.Second)
		_, ok := r.Authenticate(ctx, "tok")
		assert.False(t, ok)
	})
}

func TestMountRedirectsOnSignOut(t *testing.T) {
	bus := event.New()
	r := NewIdentityResolver(slowSessions{}, profileOnly{}, bus, time.Second, time.Second)
	nav := NewNavigator(NavState{History: []View{ViewMenu}})

	var got []AuthEvent
	m := r.Mount("u-1", nav, func(ev AuthEvent) { got = append(got, ev) })

	bus.Publish(context.Background(), TopicSignedOut, AuthEvent{Type: TopicSignedOut, UserID: "u-2"})
	assert.Equal(t, ViewMenu, nav.Pathname())

	bus.Publish(context.Background(), TopicSignedOut, AuthEvent{Type: TopicSignedOut, UserID: "u-1"})
	assert.Equal(t, ViewLogin, nav.Pathname())
	assert.Len(t, got, 1)

	m.Close()
	m.Close()
	assert.Zero(t, bus.Count(TopicSignedOut))
}
