package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

var testLogger = slog.New(slog.DiscardHandler)

// testNow is mid-morning in Vietnam.
var testNow = time.Date(2026, 10, 14, 9, 0, 0, 0, lunar.Location)

type recordedEvent struct {
	entity, action string
	id             int64
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(entity, action string, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{entity, action, id})
}

func (n *recordingNotifier) last() recordedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return recordedEvent{}
	}
	return n.events[len(n.events)-1]
}

type testEnv struct {
	db         *sql.DB
	households *store.HouseholdStore
	members    *store.FamilyMemberStore
	worship    *store.WorshipStore
	users      *store.UserStore
	sessions   *store.SessionStore
	settings   *store.SettingsStore
	push       *store.PushStore
	backups    *store.BackupStore
	validator  *validate.Validator
	notifier   *recordingNotifier
	clock      *clockwork.FakeClock
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupEnvAt(t, ":memory:")
}

func setupEnvAt(t *testing.T, dbPath string) *testEnv {
	t.Helper()
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := clockwork.NewFakeClockAt(testNow)
	return &testEnv{
		db:         db,
		households: store.NewHouseholdStore(db),
		members:    store.NewFamilyMemberStore(db),
		worship:    store.NewWorshipStore(db, clock),
		users:      store.NewUserStore(db),
		sessions:   store.NewSessionStore(db, clock),
		settings:   store.NewSettingsStore(db),
		push:       store.NewPushStore(db),
		backups:    store.NewBackupStore(db, clock),
		validator:  validate.New(),
		notifier:   &recordingNotifier{},
		clock:      clock,
	}
}

func (e *testEnv) household(t *testing.T, name string) *model.Household {
	t.Helper()
	h, err := e.households.Create(context.Background(), &model.Household{Name: name, Address: "5 Trần Hưng Đạo, Hà Nội"})
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

func (e *testEnv) member(t *testing.T, householdID int64, name string, birthYear int, gender zodiac.Gender) *model.FamilyMember {
	t.Helper()
	m, err := e.members.Create(context.Background(), &model.FamilyMember{
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

func (e *testEnv) deceased(t *testing.T, householdID int64, name string, day, month int) *model.FamilyMember {
	t.Helper()
	m, err := e.members.Create(context.Background(), &model.FamilyMember{
		HouseholdID:     householdID,
		FullName:        name,
		BirthYear:       1930,
		Gender:          zodiac.Male,
		IsAlive:         false,
		DeathLunarDay:   &day,
		DeathLunarMonth: &month,
	})
	if err != nil {
		t.Fatalf("create deceased member: %v", err)
	}
	return m
}

func (e *testEnv) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	hash, err := auth.HashPassword("matkhau123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := e.users.Create(context.Background(), email, "Người dùng", hash, role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// request builds a request carrying body as JSON, path values as name/value
// pairs, and an authenticated admin unless the context says otherwise.
func request(method, target string, body any, path ...string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(path); i += 2 {
		r.SetPathValue(path[i], path[i+1])
	}
	return r
}

func asUser(r *http.Request, u *model.User, sessionID int64) *http.Request {
	return r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: sessionID,
	}))
}

func serve(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}

func idStr(n int64) string {
	return strconv.FormatInt(n, 10)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func expectFieldError(t *testing.T, rec *httptest.ResponseRecorder, field string) {
	t.Helper()
	expectStatus(t, rec, http.StatusBadRequest)
	body := decode[errorBody](t, rec)
	if body.Fields[field] == "" {
		t.Fatalf("no error for field %q in %+v", field, body)
	}
}
