package seeders

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/uvci/resto/app/models"
	"github.com/uvci/resto/config"
	"github.com/uvci/resto/pkg/auth"
)

func init() {
	Register("admins", SeedAdmins)
}

// SeedAdmins creates an account with an admin profile for every address of
// ADMIN_EMAILS. Existing accounts keep their password; their role is raised
// to admin.
func SeedAdmins(ctx context.Context, db *gorm.DB) error {
	password := config.Get("ADMIN_SEED_PASSWORD", "resto-admin-2026")
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	for _, email := range config.AdminEmails() {
		var user models.User
		err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{ID: models.NewID(), Email: email, PasswordHash: hash}
			err = db.WithContext(ctx).Create(&user).Error
		}
		if err != nil {
			return err
		}

		profile := models.Profile{ID: user.ID, Email: email, Role: models.RoleAdmin}
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "email"}),
		}).Create(&profile).Error; err != nil {
			return err
		}
	}
	return nil
}
