package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/slotboard/internal/domain"
)

func TestUsers_CreateGetListAndRole(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()

	u, err := CreateUser(ctx, db, "bob", "h", "Bob", domain.RoleViewer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, db, "bob", "h2", "B2", domain.RoleViewer); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	byName, err := GetUserByUsername(ctx, db, "bob")
	if err != nil || byName.ID != u.ID {
		t.Fatalf("GetUserByUsername = %+v, %v", byName, err)
	}
	if _, err := GetUserByUsername(ctx, db, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := UpdateUserRole(ctx, db, u.ID, domain.RoleEditor); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	got, _ := GetUser(ctx, db, u.ID)
	if got.Role != domain.RoleEditor {
		t.Fatalf("role = %s; want editor", got.Role)
	}
	if err := UpdateUserRole(ctx, db, 4242, domain.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := CreateUser(ctx, db, "amy", "h", "Amy", domain.RoleAdmin); err != nil {
		t.Fatal(err)
	}
	all, err := ListUsers(ctx, db)
	if err != nil || len(all) != 2 || all[0].Username != "bob" {
		t.Fatalf("ListUsers = %+v, %v", all, err)
	}
}
