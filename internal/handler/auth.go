package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/middleware"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
)

const (
	msgBadCredentials = "Email hoặc mật khẩu không đúng"
	msgUserNotFound   = "Không tìm thấy người dùng"
	msgEmailTaken     = "Email đã được sử dụng"
	msgPasswordShort  = "Mật khẩu phải có ít nhất 8 ký tự"
	msgPasswordLong   = "Mật khẩu quá dài"
	msgWrongPassword  = "Mật khẩu hiện tại không đúng"
	msgDeleteSelf     = "Không thể xóa tài khoản đang đăng nhập"
	msgLastAdmin      = "Không thể xóa quản trị viên cuối cùng"
)

// dummyHash is compared against when the email is unknown so that a
// failed login takes the same time either way.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("giadinh-dummy-password")
	return h
})

type AuthHandler struct {
	users         *store.UserStore
	sessions      *store.SessionStore
	validator     *validate.Validator
	notifier      Notifier
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, v *validate.Validator, n Notifier, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: us, sessions: ss, validator: v, notifier: notifierOrNop(n), secureCookies: secureCookies, logger: logger}
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		internalError(w, r, h.logger, "login lookup", err)
		return
	}
	if user == nil {
		auth.CheckPassword(dummyHash(), req.Password)
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.logger.WarnContext(r.Context(), "login failed", "user_id", user.ID)
		writeError(w, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	if !h.startSession(w, r, user.ID) {
		return
	}
	h.logger.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	sess, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		internalError(w, r, h.logger, "create session", err)
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(store.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
	return true
}

// hashPassword writes a field error for out-of-range passwords.
func (h *AuthHandler) hashPassword(w http.ResponseWriter, r *http.Request, field, password string) (string, bool) {
	hash, err := auth.HashPassword(password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		fieldError(w, field, msgPasswordShort)
		return "", false
	case errors.Is(err, auth.ErrPasswordTooLong):
		fieldError(w, field, msgPasswordLong)
		return "", false
	case err != nil:
		internalError(w, r, h.logger, "hash password", err)
		return "", false
	}
	return hash, true
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(r.Context(), ac.SessionID); err != nil {
			h.logger.ErrorContext(r.Context(), "delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies || r.TLS != nil,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, r, h.logger, "get current user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangePassword handles PUT /api/me/password. Every other session of the
// user is ended and the caller gets a fresh one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	user, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, r, h.logger, "get current user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		h.logger.WarnContext(r.Context(), "password change rejected", "user_id", user.ID)
		fieldError(w, "current_password", msgWrongPassword)
		return
	}

	hash, ok := h.hashPassword(w, r, "new_password", req.NewPassword)
	if !ok {
		return
	}
	if err := h.users.UpdatePassword(r.Context(), user.ID, hash); err != nil {
		internalError(w, r, h.logger, "update password", err)
		return
	}
	if err := h.sessions.DeleteByUserID(r.Context(), user.ID); err != nil {
		internalError(w, r, h.logger, "end sessions", err)
		return
	}
	if !h.startSession(w, r, user.ID) {
		return
	}
	h.logger.InfoContext(r.Context(), "password changed", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /api/users
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string     `json:"email" validate:"required,email,max=254"`
		Name     string     `json:"name" validate:"notblank,max=200"`
		Password string     `json:"password" validate:"required,max=72"`
		Role     model.Role `json:"role" validate:"omitempty,oneof=admin staff"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStaff
	}
	email := strings.TrimSpace(req.Email)

	// The UNIQUE index decides duplicates so concurrent creates cannot both win.
	hash, ok := h.hashPassword(w, r, "password", req.Password)
	if !ok {
		return
	}

	user, err := h.users.Create(r.Context(), email, strings.TrimSpace(req.Name), hash, req.Role)
	if errors.Is(err, store.ErrEmailTaken) {
		writeError(w, http.StatusConflict, msgEmailTaken)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "create user", err)
		return
	}
	h.notifier.Notify(websocket.EntityUser, websocket.ActionCreated, user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// DeleteUser handles DELETE /api/users/{id}. The last admin and the
// caller's own account cannot be deleted.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}
	if id == auth.UserID(r.Context()) {
		writeError(w, http.StatusConflict, msgDeleteSelf)
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, r, h.logger, "get user", err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, msgUserNotFound)
		return
	}
	if user.IsAdmin() {
		admins, err := h.users.CountByRole(r.Context(), model.RoleAdmin)
		if err != nil {
			internalError(w, r, h.logger, "count admins", err)
			return
		}
		if admins <= 1 {
			writeError(w, http.StatusConflict, msgLastAdmin)
			return
		}
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		internalError(w, r, h.logger, "delete user", err)
		return
	}
	h.notifier.Notify(websocket.EntityUser, websocket.ActionDeleted, id)
	w.WriteHeader(http.StatusNoContent)
}
