package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/store"
)

// SessionCookieName is the cookie that carries the session token.
const SessionCookieName = "giadinh_session"

// RequireAuth validates the session cookie and populates AuthContext.
// Requests without a live session get a 401 JSON error.
func RequireAuth(sessionStore *store.SessionStore, userStore *store.UserStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "Bạn chưa đăng nhập")
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				logger.ErrorContext(r.Context(), "lookup session", "error", err)
				writeError(w, http.StatusInternalServerError, "Lỗi hệ thống")
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "Phiên đăng nhập đã hết hạn")
				return
			}

			user, err := userStore.GetByID(r.Context(), sess.UserID)
			if err != nil {
				logger.ErrorContext(r.Context(), "lookup session user", "error", err)
				writeError(w, http.StatusInternalServerError, "Lỗi hệ thống")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Phiên đăng nhập đã hết hạn")
				return
			}

			ac := auth.AuthContext{
				UserID:    user.ID,
				Email:     user.Email,
				Role:      user.Role,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "Bạn không có quyền thực hiện thao tác này")
			return
		}
		next.ServeHTTP(w, r)
	})
}
