package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/config"
	"github.com/dukerupert/giadinh/internal/correlation"
	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/metrics"
	"github.com/dukerupert/giadinh/internal/middleware"
	"github.com/dukerupert/giadinh/internal/model"
)

const testPassword = "matkhau123"

type testServer struct {
	srv    *Server
	router http.Handler
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		DBPath:           ":memory:",
		BaseURL:          "http://localhost:8080",
		ReminderInterval: time.Minute,
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))
	srv := New(cfg, db, clock, metrics.NewRegistry(), slog.New(slog.DiscardHandler))
	return &testServer{srv: srv, router: srv.Router()}
}

func (ts *testServer) user(t *testing.T, email string, role model.Role) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := ts.srv.UserStore().Create(context.Background(), email, "", hash, role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

// session logs in and returns the session cookie.
func (ts *testServer) session(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rr := ts.login(t, email, testPassword)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", email, rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatalf("login %s: no session cookie", email)
	return nil
}

func (ts *testServer) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return ts.do(req)
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)

	rr := ts.get("/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Status           string `json:"status"`
		WebSocketClients *int   `json:"websocket_clients"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected status ok, got %q", body.Status)
	}
	if body.WebSocketClients == nil || *body.WebSocketClients != 0 {
		t.Errorf("expected websocket_clients 0, got %v", body.WebSocketClients)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(correlation.Header, "req-abc")
	rr := ts.do(req)
	if got := rr.Header().Get(correlation.Header); got != "req-abc" {
		t.Errorf("expected request id echoed, got %q", got)
	}

	rr = ts.get("/health", nil)
	if rr.Header().Get(correlation.Header) == "" {
		t.Error("expected a generated request id")
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := setupServer(t)

	for _, path := range []string{"/api/households", "/api/members", "/api/worship", "/api/me", "/api/users", "/ws"} {
		if rr := ts.get(path, nil); rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestLoginAndSession(t *testing.T) {
	ts := setupServer(t)
	ts.user(t, "nhanvien@example.com", model.RoleStaff)

	if rr := ts.login(t, "nhanvien@example.com", "sai-mat-khau"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rr.Code)
	}

	cookie := ts.session(t, "nhanvien@example.com")
	rr := ts.get("/api/me", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/me: expected 200, got %d", rr.Code)
	}
	var me model.User
	if err := json.NewDecoder(rr.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Email != "nhanvien@example.com" {
		t.Errorf("expected staff email, got %q", me.Email)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(cookie)
	if rr := ts.do(req); rr.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rr.Code)
	}
	if rr := ts.get("/api/me", cookie); rr.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", rr.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	ts := setupServer(t)
	ts.user(t, "admin@example.com", model.RoleAdmin)
	ts.user(t, "nhanvien@example.com", model.RoleStaff)
	staff := ts.session(t, "nhanvien@example.com")
	admin := ts.session(t, "admin@example.com")

	body := strings.NewReader(`{"name":"Gia đình Nguyễn"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/households", body)
	req.AddCookie(staff)
	rr := ts.do(req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("staff create household: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var h model.Household
	if err := json.NewDecoder(rr.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	target := "/api/households/" + strconv.FormatInt(h.ID, 10)

	for _, path := range []string{"/api/users", "/api/settings/reminders", "/api/settings/backups", "/api/backups"} {
		if rr := ts.get(path, staff); rr.Code != http.StatusForbidden {
			t.Errorf("staff GET %s: expected 403, got %d", path, rr.Code)
		}
		if rr := ts.get(path, admin); rr.Code != http.StatusOK {
			t.Errorf("admin GET %s: expected 200, got %d", path, rr.Code)
		}
	}

	req = httptest.NewRequest(http.MethodDelete, target, nil)
	req.AddCookie(staff)
	if rr := ts.do(req); rr.Code != http.StatusForbidden {
		t.Errorf("staff delete household: expected 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, target, nil)
	req.AddCookie(admin)
	if rr := ts.do(req); rr.Code != http.StatusNoContent {
		t.Errorf("admin delete household: expected 204, got %d", rr.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := setupServer(t)

	for i := 0; i < loginLimit; i++ {
		if rr := ts.login(t, "ai@example.com", "sai-mat-khau"); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}
	rr := ts.login(t, "ai@example.com", "sai-mat-khau")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestMetricsUseRoutePattern(t *testing.T) {
	ts := setupServer(t)
	ts.user(t, "nhanvien@example.com", model.RoleStaff)
	cookie := ts.session(t, "nhanvien@example.com")

	if rr := ts.get("/api/members/999", cookie); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr := ts.get("/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	out, _ := io.ReadAll(rr.Body)
	text := string(out)
	if !strings.Contains(text, `giadinh_http_requests_total{method="GET",route="/api/members/{id}",status_code="404"} 1`) {
		t.Errorf("expected request counter labelled by pattern, got:\n%s", text)
	}
	if strings.Contains(text, `route="/api/members/999"`) {
		t.Error("raw path leaked into route label")
	}
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns("https://giadinh.example.vn")
	if len(got) != 1 || got[0] != "giadinh.example.vn" {
		t.Errorf("unexpected patterns %v", got)
	}
	if got := originPatterns("::bad"); got != nil {
		t.Errorf("expected nil for invalid url, got %v", got)
	}
}
