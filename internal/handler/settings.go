package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
)

const defaultBackupHour = 3

type SettingsHandler struct {
	settings  *store.SettingsStore
	validator *validate.Validator
	notifier  Notifier
	logger    *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, v *validate.Validator, n Notifier, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, validator: v, notifier: notifierOrNop(n), logger: logger}
}

type reminderSettings struct {
	Enabled  *bool  `json:"enabled" validate:"required"`
	LeadDays int    `json:"lead_days" validate:"min=0,max=30"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
}

type backupSettings struct {
	Enabled       *bool `json:"enabled" validate:"required"`
	ScheduleHour  int   `json:"schedule_hour" validate:"min=0,max=23"`
	RetentionDays int   `json:"retention_days" validate:"min=1,max=3650"`
}

// GetReminders handles GET /api/settings/reminders
func (h *SettingsHandler) GetReminders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reminders(r))
}

// UpdateReminders handles PUT /api/settings/reminders
func (h *SettingsHandler) UpdateReminders(w http.ResponseWriter, r *http.Request) {
	var req reminderSettings
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	values := map[string]string{
		store.KeyReminderEnabled:  strconv.FormatBool(*req.Enabled),
		store.KeyReminderLeadDays: strconv.Itoa(req.LeadDays),
		store.KeyReminderEmail:    strings.TrimSpace(req.Email),
	}
	if !h.save(w, r, values) {
		return
	}
	writeJSON(w, http.StatusOK, h.reminders(r))
}

// GetBackups handles GET /api/settings/backups
func (h *SettingsHandler) GetBackups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backups(r))
}

// UpdateBackups handles PUT /api/settings/backups
func (h *SettingsHandler) UpdateBackups(w http.ResponseWriter, r *http.Request) {
	var req backupSettings
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	values := map[string]string{
		store.KeyBackupEnabled:       strconv.FormatBool(*req.Enabled),
		store.KeyBackupScheduleHour:  strconv.Itoa(req.ScheduleHour),
		store.KeyBackupRetentionDays: strconv.Itoa(req.RetentionDays),
	}
	if !h.save(w, r, values) {
		return
	}
	writeJSON(w, http.StatusOK, h.backups(r))
}

func (h *SettingsHandler) save(w http.ResponseWriter, r *http.Request, values map[string]string) bool {
	for key, value := range values {
		if err := h.settings.Set(r.Context(), key, value); err != nil {
			internalError(w, r, h.logger, "save setting", err)
			return false
		}
	}
	h.notifier.Notify(websocket.EntitySettings, websocket.ActionUpdated, 0)
	return true
}

func (h *SettingsHandler) reminders(r *http.Request) reminderSettings {
	ctx := r.Context()
	enabled := h.settings.GetBool(ctx, store.KeyReminderEnabled)
	email, _ := h.settings.Get(ctx, store.KeyReminderEmail)
	return reminderSettings{
		Enabled:  &enabled,
		LeadDays: h.settings.GetInt(ctx, store.KeyReminderLeadDays, 3),
		Email:    email,
	}
}

func (h *SettingsHandler) backups(r *http.Request) backupSettings {
	ctx := r.Context()
	enabled := h.settings.GetBool(ctx, store.KeyBackupEnabled)
	return backupSettings{
		Enabled:       &enabled,
		ScheduleHour:  h.settings.GetInt(ctx, store.KeyBackupScheduleHour, defaultBackupHour),
		RetentionDays: h.settings.GetInt(ctx, store.KeyBackupRetentionDays, 30),
	}
}
