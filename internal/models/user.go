package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors the identity held by the auth provider. ExternalAuthID is the
// provider's subject and is what bearer tokens carry.
type User struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email          string         `gorm:"type:varchar(255);not null" json:"email"`
	FirstName      string         `gorm:"type:varchar(100)" json:"firstName"`
	LastName       string         `gorm:"type:varchar(100)" json:"lastName"`
	ExternalAuthID string         `gorm:"type:varchar(191);uniqueIndex;not null" json:"externalAuthId"`
	Role           string         `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Settings       datatypes.JSON `json:"settings,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}
