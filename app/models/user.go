package models

import "time"

// Role is the privilege stored on a profile.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// DisplayRole is the wording shown to the user: admin stays admin, every
// other role reads as student.
func DisplayRole(r Role) string {
	if r == RoleAdmin {
		return "admin"
	}
	return "student"
}

// User is the minimal identity row that orders reference.
type User struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "users" }

// Profile carries the role of an identity.
type Profile struct {
	ID    string `gorm:"primaryKey;size:64" json:"id"`
	Email string `gorm:"size:255;index" json:"email"`
	Role  Role   `gorm:"size:16;not null;default:client" json:"role"`
}

func (Profile) TableName() string { return "profiles" }
