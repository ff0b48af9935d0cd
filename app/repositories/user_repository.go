package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/pkg/event"
)

const (
	tableUsers    = "users"
	tableProfiles = "profiles"
)

// SQLUserRepository handles users and profiles on gorm.
type SQLUserRepository struct {
	db      *gorm.DB
	changes event.Publisher
}

func NewUserRepository(db *gorm.DB, changes event.Publisher) *SQLUserRepository {
	return &SQLUserRepository{db: db, changes: Publisher(changes)}
}

func (r *SQLUserRepository) CreateUser(ctx context.Context, u *models.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return translate("create user", err)
	}
	Notify(ctx, r.changes, tableUsers, event.Insert, u.ID)
	return nil
}

// FindUserByEmail looks up a user by their email address.
func (r *SQLUserRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	return user, translate("find user", err)
}

func (r *SQLUserRepository) UpsertUser(ctx context.Context, u models.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Select("id", "email", "created_at").Create(&u).Error
	if err != nil {
		return translate("upsert user", err)
	}
	Notify(ctx, r.changes, tableUsers, event.Update, u.ID)
	return nil
}

func (r *SQLUserRepository) FindProfile(ctx context.Context, id string) (models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	return p, translate("find profile", err)
}

func (r *SQLUserRepository) InsertProfile(ctx context.Context, p models.Profile) error {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return translate("insert profile", err)
	}
	Notify(ctx, r.changes, tableProfiles, event.Insert, p.ID)
	return nil
}

func (r *SQLUserRepository) UpdateProfileRole(ctx context.Context, id string, role models.Role) error {
	err := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Update("role", role).Error
	if err != nil {
		return translate("update profile role", err)
	}
	Notify(ctx, r.changes, tableProfiles, event.Update, id)
	return nil
}

func (r *SQLUserRepository) UpsertProfileEmail(ctx context.Context, id, email string) error {
	p := models.Profile{ID: id, Email: email, Role: models.RoleClient}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email"}),
	}).Create(&p).Error
	if err != nil {
		return translate("upsert profile", err)
	}
	Notify(ctx, r.changes, tableProfiles, event.Update, id)
	return nil
}
