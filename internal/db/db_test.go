package db

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestInitCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "forum.db")

	gdb, err := Init(path)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	migrator := gdb.Migrator()
	for _, model := range []any{&User{}, &Thread{}, &VisitAggregate{}, &VisitMark{}} {
		if !migrator.HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if !migrator.HasIndex(&Thread{}, RankedIndex) {
		t.Fatalf("expected composite index %s", RankedIndex)
	}
}

func TestEnsureUserAndAuthenticate(t *testing.T) {
	gdb, err := Init(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	created, err := EnsureUser(gdb, " admin ", "s3cret")
	if err != nil || !created {
		t.Fatalf("expected user to be created, created=%v err=%v", created, err)
	}

	created, err = EnsureUser(gdb, "admin", "other")
	if err != nil || created {
		t.Fatalf("expected existing user to be kept, created=%v err=%v", created, err)
	}

	if created, err := EnsureUser(gdb, "", "x"); err != nil || created {
		t.Fatalf("expected blank username to be ignored, created=%v err=%v", created, err)
	}

	user, err := Authenticate(gdb, "admin", "s3cret")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if user.Username != "admin" || user.Password == "s3cret" {
		t.Fatalf("expected hashed password for admin, got %+v", user)
	}

	if _, err := Authenticate(gdb, "admin", "other"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := Authenticate(gdb, "ghost", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
}
