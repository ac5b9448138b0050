package db

import (
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/models"
	"github.com/suPer8Hu/chatapp/internal/usage"
	"gorm.io/gorm"
)

// Migrate creates or updates every table, parents first so foreign keys resolve.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&usage.Record{},
	)
}
