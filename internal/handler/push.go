package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
)

const (
	msgPushDisabled         = "Chưa cấu hình thông báo đẩy"
	msgSubscriptionNotFound = "Không tìm thấy đăng ký thông báo"
)

type PushHandler struct {
	pushStore *store.PushStore
	publicKey string
	validator *validate.Validator
	logger    *slog.Logger
}

// NewPushHandler creates the handler. An empty publicKey means web push is
// not configured.
func NewPushHandler(ps *store.PushStore, publicKey string, v *validate.Validator, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, publicKey: publicKey, validator: v, logger: logger}
}

// subscribeRequest mirrors PushSubscription.toJSON() in the browser.
type subscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=2048"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required,max=256"`
		Auth   string `json:"auth" validate:"required,max=256"`
	} `json:"keys"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusServiceUnavailable, msgPushDisabled)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), auth.UserID(r.Context()),
		req.Endpoint, req.Keys.P256dh, req.Keys.Auth, strings.TrimSpace(req.DeviceName))
	if err != nil {
		internalError(w, r, h.logger, "create push subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		internalError(w, r, h.logger, "list push subscriptions", err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}. Only the owner
// sees their subscriptions.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}
	userID := auth.UserID(r.Context())

	sub, err := h.pushStore.GetByID(r.Context(), id, userID)
	if err != nil {
		internalError(w, r, h.logger, "get push subscription", err)
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, msgSubscriptionNotFound)
		return
	}
	if err := h.pushStore.DeleteSubscription(r.Context(), id, userID); err != nil {
		internalError(w, r, h.logger, "delete push subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
