package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/giadinh/internal/backup"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
)

const backupListLimit = 50

const (
	msgBackupDisabled  = "Chưa cấu hình lưu trữ sao lưu"
	msgNoPassphrase    = "Chưa đặt mật khẩu sao lưu"
	msgWrongPassphrase = "Mật khẩu sao lưu không đúng"
	msgPassphraseShort = "Mật khẩu sao lưu phải có ít nhất 12 ký tự"
	msgBackupRunning   = "Đang có một bản sao lưu chạy"
	msgBackupNotFound  = "Không tìm thấy bản sao lưu"
	msgBackupNotReady  = "Bản sao lưu chưa hoàn tất"
	msgBackupFailedRun = "Sao lưu thất bại"
)

type BackupHandler struct {
	manager   *backup.Manager
	backups   *store.BackupStore
	validator *validate.Validator
	notifier  Notifier
	logger    *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, v *validate.Validator, n Notifier, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, backups: bs, validator: v, notifier: notifierOrNop(n), logger: logger}
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase" validate:"required,max=1024"`
}

// SetPassphrase handles PUT /api/backups/passphrase
func (h *BackupHandler) SetPassphrase(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	err := h.manager.SetPassphrase(r.Context(), req.Passphrase)
	if errors.Is(err, backup.ErrPassphraseLength) {
		fieldError(w, "passphrase", msgPassphraseShort)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "set backup passphrase", err)
		return
	}
	h.notifier.Notify(websocket.EntitySettings, websocket.ActionUpdated, 0)
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Create handles POST /api/backups. The passphrase is checked and cached
// so that scheduled backups can run.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	b, err := h.manager.RunNow(r.Context(), req.Passphrase)
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, msgBackupDisabled)
	case errors.Is(err, backup.ErrNoPassphrase):
		writeError(w, http.StatusConflict, msgNoPassphrase)
	case errors.Is(err, backup.ErrWrongPassphrase):
		fieldError(w, "passphrase", msgWrongPassphrase)
	case errors.Is(err, backup.ErrInProgress):
		writeError(w, http.StatusConflict, msgBackupRunning)
	case err != nil:
		h.logger.ErrorContext(r.Context(), "run backup", "error", err)
		writeError(w, http.StatusBadGateway, msgBackupFailedRun)
	default:
		h.notifier.Notify(websocket.EntityBackup, websocket.ActionCreated, b.ID)
		writeJSON(w, http.StatusCreated, b)
	}
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.backups.List(r.Context(), backupListLimit)
	if err != nil {
		internalError(w, r, h.logger, "list backups", err)
		return
	}
	if list == nil {
		list = []model.Backup{}
	}
	total, err := h.backups.TotalSize(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "backup total size", err)
		return
	}
	latest, err := h.backups.LatestCompleted(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "latest backup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          h.manager.Enabled(),
		"status":           h.manager.Status(),
		"last_completed":   latest,
		"total_size_bytes": total,
		"backups":          list,
	})
}

// Download handles GET /api/backups/{id}/download. The file is sent
// still encrypted.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return
	}

	body, record, err := h.manager.Download(r.Context(), id)
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, msgBackupDisabled)
		return
	case errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, msgBackupNotFound)
		return
	case errors.Is(err, backup.ErrNotCompleted):
		writeError(w, http.StatusConflict, msgBackupNotReady)
		return
	case err != nil:
		internalError(w, r, h.logger, "download backup", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+record.Filename+`"`)
	if record.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream backup", "backup_id", id, "error", err)
	}
}
