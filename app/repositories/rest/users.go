package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
)

// userRow carries the password hash, which models.User keeps off the API.
type userRow struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

type UserRepository struct{ s *store }

func (r *UserRepository) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = models.NewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	row := userRow{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash, CreatedAt: &u.CreatedAt}
	if err := r.s.send(ctx, "create user", r.s.post("users").Body(row), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "users", event.Insert, u.ID)
	return nil
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var rows []userRow
	req := r.s.get("users").Query("select", "*").Query("email", eq(email)).Query("limit", "1")
	if err := r.s.send(ctx, "find user", req, &rows); err != nil {
		return models.User{}, err
	}
	if len(rows) == 0 {
		return models.User{}, fmt.Errorf("rest: find user: %w", apperr.ErrNotFound)
	}
	u := models.User{ID: rows[0].ID, Email: rows[0].Email, PasswordHash: rows[0].PasswordHash}
	if rows[0].CreatedAt != nil {
		u.CreatedAt = *rows[0].CreatedAt
	}
	return u, nil
}

func (r *UserRepository) UpsertUser(ctx context.Context, u models.User) error {
	body := []userRow{{ID: u.ID, Email: u.Email}}
	if err := r.s.send(ctx, "upsert user", r.s.upsert("users", "id").Body(body), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "users", event.Update, u.ID)
	return nil
}

func (r *UserRepository) FindProfile(ctx context.Context, id string) (models.Profile, error) {
	var rows []models.Profile
	req := r.s.get("profiles").Query("select", "*").Query("id", eq(id)).Query("limit", "1")
	if err := r.s.send(ctx, "find profile", req, &rows); err != nil {
		return models.Profile{}, err
	}
	if len(rows) == 0 {
		return models.Profile{}, fmt.Errorf("rest: find profile: %w", apperr.ErrNotFound)
	}
	return rows[0], nil
}

func (r *UserRepository) InsertProfile(ctx context.Context, p models.Profile) error {
	if err := r.s.send(ctx, "insert profile", r.s.post("profiles").Body(p), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "profiles", event.Insert, p.ID)
	return nil
}

func (r *UserRepository) UpdateProfileRole(ctx context.Context, id string, role models.Role) error {
	req := r.s.patch("profiles").Query("id", eq(id)).Body(map[string]any{"role": role})
	if err := r.s.send(ctx, "update profile role", req, nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "profiles", event.Update, id)
	return nil
}

// UpsertProfileEmail sends only id and email: merge-duplicates updates the
// columns present in the body, so an existing role is kept and a new row
// gets the column default.
func (r *UserRepository) UpsertProfileEmail(ctx context.Context, id, email string) error {
	body := []map[string]string{{"id": id, "email": email}}
	if err := r.s.send(ctx, "upsert profile", r.s.upsert("profiles", "id").Body(body), nil); err != nil {
		return err
	}
	repositories.Notify(ctx, r.s.changes, "profiles", event.Update, id)
	return nil
}
