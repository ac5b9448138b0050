package db

import (
	"testing"

	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/models"
	"github.com/suPer8Hu/chatapp/internal/usage"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("postgres", "whatever"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMigrate_CreatesTables(t *testing.T) {
	gdb, err := Open("sqlite", "file:db_migrate?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, m := range []any{&models.User{}, &chat.Session{}, &chat.Message{}, &usage.Record{}} {
		if !gdb.Migrator().HasTable(m) {
			t.Fatalf("missing table for %T", m)
		}
	}
	// running twice is a no-op
	if err := Migrate(gdb); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
