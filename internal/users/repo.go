package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/chatapp/internal/models"
	"gorm.io/gorm"
)

var ErrUserExists = errors.New("user already exists")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *models.User) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	u.ExternalAuthID = strings.TrimSpace(u.ExternalAuthID)
	if u.Email == "" || u.ExternalAuthID == "" {
		return errors.New("email and external auth id are required")
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByExternalAuthID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).
		Where("external_auth_id = ?", externalID).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// Delete removes the user; sessions, messages and usage rows go with it
// through the foreign key cascades.
func (r *Repo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
