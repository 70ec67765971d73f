package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/giadinh/internal/model"
)

func TestUserCreate(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	u, err := us.Create(context.Background(), "thu.ky@chua.vn", "Thư ký", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Role != model.RoleAdmin || !u.IsAdmin() {
		t.Errorf("role = %q, want admin", u.Role)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("password hash = %q", u.PasswordHash)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := NewUserStore(setupTestDB(t))
	ctx := context.Background()

	if _, err := us.Create(ctx, "alice@example.com", "Alice", "h", model.RoleStaff); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := us.Create(ctx, "ALICE@example.com", "Alice2", "h", model.RoleStaff); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestUserCreateRejectsUnknownRole(t *testing.T) {
	us := NewUserStore(setupTestDB(t))

	if _, err := us.Create(context.Background(), "a@example.com", "A", "h", "owner"); err == nil {
		t.Fatal("expected check constraint error, got nil")
	}
}

func TestUserGetByEmail(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	created := createUser(t, db, "alice@example.com")

	u, err := us.GetByEmail(context.Background(), "Alice@Example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("got %+v, want id %d", u, created.ID)
	}

	u, err = us.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestUserListDeleteAndCount(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()

	b := createUser(t, db, "b@example.com")
	createUser(t, db, "a@example.com")
	if _, err := us.Create(ctx, "admin@example.com", "Admin", "h", model.RoleAdmin); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	list, err := us.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Email != "a@example.com" {
		t.Errorf("list = %+v", list)
	}

	n, err := us.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("admins = %d, want 1", n)
	}

	if err := us.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := us.GetByID(ctx, b.ID); got != nil {
		t.Error("expected user to be deleted")
	}
}

func TestUserUpdatePassword(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	u := createUser(t, db, "a@example.com")

	if err := us.UpdatePassword(ctx, u.ID, "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	got, _ := us.GetByID(ctx, u.ID)
	if got.PasswordHash != "new-hash" {
		t.Errorf("hash = %q, want new-hash", got.PasswordHash)
	}
}
