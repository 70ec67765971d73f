package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func newTestClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(testNow)
}

func createHousehold(t *testing.T, db *sql.DB, name string) *model.Household {
	t.Helper()
	h, err := NewHouseholdStore(db).Create(context.Background(), &model.Household{Name: name, Address: "12 Lê Lợi, Huế"})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

func createMember(t *testing.T, db *sql.DB, householdID int64, name string, birthYear int, gender zodiac.Gender) *model.FamilyMember {
	t.Helper()
	m, err := NewFamilyMemberStore(db).Create(context.Background(), &model.FamilyMember{
		HouseholdID: householdID,
		FullName:    name,
		BirthYear:   birthYear,
		Gender:      gender,
		IsAlive:     true,
	})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

func createUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, "Staff", "hash", model.RoleStaff)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
