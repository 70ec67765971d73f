package store

import (
	"context"
	"testing"
	"time"
)

func TestSessionCreate(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, newTestClock())
	u := createUser(t, db, "alice@example.com")

	sess, err := ss.Create(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %d, want %d", sess.UserID, u.ID)
	}
	if want := testNow.Add(SessionTTL); !sess.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", sess.ExpiresAt, want)
	}
}

func TestSessionGetByToken(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, newTestClock())
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com")
	created, _ := ss.Create(ctx, u.ID)

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil || sess.ID != created.ID {
		t.Fatalf("got %+v, want session %d", sess, created.ID)
	}

	sess, err = ss.GetByToken(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestSessionExpired(t *testing.T) {
	db := setupTestDB(t)
	clock := newTestClock()
	ss := NewSessionStore(db, clock)
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com")
	sess, _ := ss.Create(ctx, u.ID)

	clock.Advance(SessionTTL / 2)
	live, _ := ss.Create(ctx, u.ID)

	clock.Advance(SessionTTL/2 + time.Second)
	got, err := ss.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected expired session to be hidden")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got, _ := ss.GetByToken(ctx, live.Token); got == nil {
		t.Error("expected live session to survive")
	}
}

func TestSessionDelete(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, newTestClock())
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com")
	s1, _ := ss.Create(ctx, u.ID)
	s2, _ := ss.Create(ctx, u.ID)

	if err := ss.Delete(ctx, s1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := ss.GetByToken(ctx, s1.Token); got != nil {
		t.Error("expected session to be deleted")
	}

	if err := ss.DeleteByUserID(ctx, u.ID); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if got, _ := ss.GetByToken(ctx, s2.Token); got != nil {
		t.Error("expected all user sessions to be deleted")
	}
}

func TestSessionDeletedWithUser(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db, newTestClock())
	ctx := context.Background()
	u := createUser(t, db, "alice@example.com")
	sess, _ := ss.Create(ctx, u.ID)

	if err := NewUserStore(db).Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if got, _ := ss.GetByToken(ctx, sess.Token); got != nil {
		t.Error("expected session to cascade with user")
	}
}
