package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/auth"
	"github.com/uvci/resto/pkg/cache"
	"github.com/uvci/resto/pkg/event"
	"github.com/uvci/resto/pkg/logger"
)

// Auth event topics on the bus.
const (
	TopicSignedIn  = "auth.signed_in"
	TopicSignedOut = "auth.signed_out"
)

const minPasswordLength = 6

// AuthEvent is published on the auth topics.
type AuthEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

// SignInResult is a fresh session.
type SignInResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Redirect  string    `json:"redirect"`
}

// AuthService signs users up, in and out. Tokens are JWTs; signing out
// denylists the token id until it would have expired.
type AuthService struct {
	users  repositories.UserRepository
	issuer *auth.Issuer
	revoke cache.Store
	bus    *event.Bus
	domain string
	admins map[string]bool
}

type AuthConfig struct {
	InstitutionDomain string
	AdminEmails       []string
}

func NewAuthService(users repositories.UserRepository, issuer *auth.Issuer, revoke cache.Store, bus *event.Bus, cfg AuthConfig) *AuthService {
	admins := make(map[string]bool, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &AuthService{
		users:  users,
		issuer: issuer,
		revoke: revoke,
		bus:    bus,
		domain: strings.ToLower(cfg.InstitutionDomain),
		admins: admins,
	}
}

// NormalizeEmail trims and lowercases the address and checks the
// institution domain.
func (s *AuthService) NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Invalid(map[string]string{"email": "email is required"})
	}
	if !strings.HasSuffix(email, s.domain) || len(email) == len(s.domain) {
		return "", apperr.Invalid(map[string]string{"email": "Seules les adresses " + s.domain + " sont acceptées"})
	}
	return email, nil
}

// SignUp creates the account and its profile and returns the assigned role.
// It does not sign the user in.
func (s *AuthService) SignUp(ctx context.Context, rawEmail, password string) (models.Role, error) {
	email, err := s.NormalizeEmail(rawEmail)
	if err != nil {
		return "", err
	}
	if len(password) < minPasswordLength {
		return "", apperr.Invalid(map[string]string{"password": fmt.Sprintf("password must be at least %d characters", minPasswordLength)})
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	user := &models.User{ID: models.NewID(), Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return "", err
	}

	role := models.RoleClient
	if s.admins[email] {
		role = models.RoleAdmin
	}
	err = s.users.InsertProfile(ctx, models.Profile{ID: user.ID, Email: email, Role: role})
	if errors.Is(err, apperr.ErrDuplicate) {
		err = s.users.UpdateProfileRole(ctx, user.ID, role)
	}
	if err != nil {
		return "", err
	}
	logger.WithCtx(ctx).Info("auth: signed up", "user_id", user.ID, "role", role)
	return role, nil
}

func (s *AuthService) SignIn(ctx context.Context, rawEmail, password string) (SignInResult, error) {
	email, err := s.NormalizeEmail(rawEmail)
	if err != nil {
		return SignInResult{}, err
	}
	user, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, password)) {
		return SignInResult{}, fmt.Errorf("auth: invalid credentials: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return SignInResult{}, err
	}

	role := models.RoleClient
	if p, err := s.users.FindProfile(ctx, user.ID); err == nil && p.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}

	token, claims, err := s.issuer.Issue(user.ID, user.Email, string(role))
	if err != nil {
		return SignInResult{}, err
	}
	s.publish(ctx, TopicSignedIn, user.ID, user.Email)
	return SignInResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(role),
		Redirect:  string(ViewMenu),
	}, nil
}

func revokedKey(jti string) string { return "auth:revoked:" + jti }

// SignOut revokes the token. Signing out an invalid token is a no-op.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.revoke.Set(ctx, revokedKey(claims.ID), true, ttl); err != nil {
		return fmt.Errorf("auth: revoke: %w", err)
	}
	s.publish(ctx, TopicSignedOut, claims.UserID, claims.Email)
	return nil
}

// Session returns the claims of a valid, unrevoked token.
func (s *AuthService) Session(ctx context.Context, token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	revoked, err := s.revoke.Exists(ctx, revokedKey(claims.ID))
	if err != nil {
		return nil, fmt.Errorf("auth: check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("auth: token revoked: %w", apperr.ErrUnauthorized)
	}
	return claims, nil
}

func (s *AuthService) publish(ctx context.Context, topic, userID, email string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, topic, AuthEvent{Type: topic, UserID: userID, Email: email, At: time.Now().UTC()})
}
