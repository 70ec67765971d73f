package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const (
	KeyReminderEnabled     = "reminder_enabled"
	KeyReminderLeadDays    = "reminder_lead_days"
	KeyReminderEmail       = "reminder_email"
	KeyBackupEnabled       = "backup_enabled"
	KeyBackupScheduleHour  = "backup_schedule_hour"
	KeyBackupRetentionDays = "backup_retention_days"

	// Salt and verifier of the backup passphrase. The passphrase itself is never stored.
	KeyBackupPassphraseSalt  = "backup_passphrase_salt"
	KeyBackupPassphraseCheck = "backup_passphrase_check"
)

var reminderKeys = []string{
	KeyReminderEnabled,
	KeyReminderLeadDays,
	KeyReminderEmail,
}

var backupKeys = []string{
	KeyBackupEnabled,
	KeyBackupScheduleHour,
	KeyBackupRetentionDays,
}

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// GetInt returns def when the setting is missing or not a number.
func (s *SettingsStore) GetInt(ctx context.Context, key string, def int) int {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s *SettingsStore) GetBool(ctx context.Context, key string) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	b, _ := strconv.ParseBool(v)
	return b
}


func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *SettingsStore) GetReminderSettings(ctx context.Context) (map[string]string, error) {
	return s.getKeys(ctx, reminderKeys)
}

func (s *SettingsStore) GetBackupSettings(ctx context.Context) (map[string]string, error) {
	return s.getKeys(ctx, backupKeys)
}

func (s *SettingsStore) getKeys(ctx context.Context, keys []string) (map[string]string, error) {
	settings := make(map[string]string)
	for _, key := range keys {
		var value string
		err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get setting %q: %w", key, err)
		}
		settings[key] = value
	}
	return settings, nil
}
