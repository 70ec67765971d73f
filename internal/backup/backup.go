// Package backup writes encrypted copies of the SQLite database to
// S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/metrics"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
)

// MinPassphraseLength is the shortest accepted backup passphrase.
const MinPassphraseLength = 12

const defaultRetentionDays = 30

var (
	ErrNotConfigured    = errors.New("backup not configured: S3 credentials missing")
	ErrNoPassphrase     = errors.New("backup passphrase not set")
	ErrPassphraseLength = fmt.Errorf("backup passphrase must be at least %d characters", MinPassphraseLength)
	ErrInProgress       = errors.New("backup already in progress")
	ErrNotFound         = errors.New("backup not found")
	ErrNotCompleted     = errors.New("backup not completed")
)

// ObjectStore is the part of the S3 client the manager uses.
type ObjectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	S3     S3Config
	DBPath string
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
	KeyCached  bool       `json:"key_cached"`
}

// Deps are the collaborators of a Manager. Metrics, OnStatus and OnFailure may be nil.
type Deps struct {
	DB        *sql.DB
	Backups   *store.BackupStore
	Settings  *store.SettingsStore
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	OnStatus  func(Status)
	OnFailure func(ctx context.Context, err error)
}

type Option func(*Manager)

// WithObjectStore replaces the S3 client built from the config.
func WithObjectStore(c ObjectStore) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// keyMaterial is the derived key of the backup passphrase, held in memory
// only so that scheduled backups can run unattended.
type keyMaterial struct {
	key  []byte
	salt []byte
}

// Manager manages encrypted backups to S3-compatible storage.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	deps    Deps
	client  ObjectStore
	status  Status
	cached  *keyMaterial
	lastRun string // day of the last scheduled run, YYYY-MM-DD
}

func NewManager(cfg Config, deps Deps, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		deps:   deps,
		status: Status{State: StateDisabled},
	}
	if cfg.S3.complete() {
		m.client = newS3Client(cfg.S3)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client != nil {
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether object storage is configured.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	s := m.status
	m.mu.RUnlock()
	s.KeyCached = m.HasCachedKey()
	return s
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	s.KeyCached = m.cached != nil
	m.mu.Unlock()
	if m.deps.OnStatus != nil {
		m.deps.OnStatus(s)
	}
}

// HasCachedKey reports whether scheduled backups can run.
func (m *Manager) HasCachedKey() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cached != nil
}

// SetPassphrase replaces the backup passphrase. Earlier backups stay
// readable with the passphrase they were made with.
func (m *Manager) SetPassphrase(ctx context.Context, passphrase string) error {
	if len(passphrase) < MinPassphraseLength {
		return ErrPassphraseLength
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	key := DeriveKey(passphrase, salt)

	if err := m.deps.Settings.Set(ctx, store.KeyBackupPassphraseSalt, hex.EncodeToString(salt)); err != nil {
		return fmt.Errorf("save salt: %w", err)
	}
	if err := m.deps.Settings.Set(ctx, store.KeyBackupPassphraseCheck, hex.EncodeToString(Verifier(key))); err != nil {
		return fmt.Errorf("save verifier: %w", err)
	}

	m.mu.Lock()
	m.cached = &keyMaterial{key: key, salt: salt}
	m.mu.Unlock()
	return nil
}

// Unlock checks passphrase against the stored verifier and caches the key.
func (m *Manager) Unlock(ctx context.Context, passphrase string) error {
	_, err := m.unlock(ctx, passphrase)
	return err
}

func (m *Manager) unlock(ctx context.Context, passphrase string) (*keyMaterial, error) {
	saltHex, err := m.deps.Settings.Get(ctx, store.KeyBackupPassphraseSalt)
	if errors.Is(err, store.ErrNotFound) || saltHex == "" {
		return nil, ErrNoPassphrase
	}
	if err != nil {
		return nil, fmt.Errorf("get salt: %w", err)
	}
	checkHex, err := m.deps.Settings.Get(ctx, store.KeyBackupPassphraseCheck)
	if err != nil {
		return nil, ErrNoPassphrase
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	check, err := hex.DecodeString(checkHex)
	if err != nil {
		return nil, fmt.Errorf("decode verifier: %w", err)
	}

	key := DeriveKey(passphrase, salt)
	if !checkVerifier(key, check) {
		return nil, ErrWrongPassphrase
	}

	km := &keyMaterial{key: key, salt: salt}
	m.mu.Lock()
	m.cached = km
	m.mu.Unlock()
	return km, nil
}

// RunNow backs up immediately. A correct passphrase is also cached for
// scheduled backups.
func (m *Manager) RunNow(ctx context.Context, passphrase string) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrNotConfigured
	}
	km, err := m.unlock(ctx, passphrase)
	if err != nil {
		return nil, err
	}
	return m.runBackup(ctx, km)
}

// Run checks the schedule every minute until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	ticker := m.deps.Clock.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			m.checkSchedule(ctx)
		}
	}
}

// checkSchedule runs the daily backup once the configured hour (Vietnam
// time) has been reached, at most once per day.
func (m *Manager) checkSchedule(ctx context.Context) {
	if !m.deps.Settings.GetBool(ctx, store.KeyBackupEnabled) {
		return
	}
	now := m.deps.Clock.Now().In(lunar.Location)
	hour := m.deps.Settings.GetInt(ctx, store.KeyBackupScheduleHour, 3)
	today := now.Format(time.DateOnly)

	m.mu.RLock()
	km := m.cached
	last := m.lastRun
	m.mu.RUnlock()

	if now.Hour() < hour || last == today {
		return
	}
	if km == nil {
		m.deps.Logger.WarnContext(ctx, "skipping scheduled backup, passphrase not cached")
		return
	}

	m.mu.Lock()
	m.lastRun = today
	m.mu.Unlock()

	if _, err := m.runBackup(ctx, km); err != nil {
		m.deps.Logger.ErrorContext(ctx, "scheduled backup failed", "error", err)
		if m.deps.OnFailure != nil {
			m.deps.OnFailure(ctx, err)
		}
	}

	retention := m.deps.Settings.GetInt(ctx, store.KeyBackupRetentionDays, defaultRetentionDays)
	if err := m.Cleanup(ctx, retention); err != nil {
		m.deps.Logger.ErrorContext(ctx, "backup cleanup failed", "error", err)
	}
}

func (m *Manager) runBackup(ctx context.Context, km *keyMaterial) (*model.Backup, error) {
	m.mu.Lock()
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	m.status.InProgress = true
	client := m.client
	cfg := m.cfg
	m.mu.Unlock()

	start := m.deps.Clock.Now()
	m.setStatus(Status{State: StateRunning, InProgress: true})

	b, err := m.upload(ctx, client, cfg, km)
	elapsed := m.deps.Clock.Since(start)
	if m.deps.Metrics != nil {
		m.deps.Metrics.BackupDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		m.count("failure")
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	m.count("success")
	done := m.deps.Clock.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &done})
	m.deps.Logger.InfoContext(ctx, "backup completed", "backup_id", b.ID, "size_bytes", b.SizeBytes, "duration", elapsed)
	return b, nil
}

func (m *Manager) upload(ctx context.Context, client ObjectStore, cfg Config, km *keyMaterial) (*model.Backup, error) {
	filename := fmt.Sprintf("giadinh-%s.db.enc", m.deps.Clock.Now().UTC().Format("2006-01-02T150405Z"))
	key := filename
	if p := strings.Trim(cfg.S3.Prefix, "/"); p != "" {
		key = p + "/" + filename
	}

	record, err := m.deps.Backups.Create(ctx, filename, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	fail := func(err error) (*model.Backup, error) {
		if uerr := m.deps.Backups.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.deps.Logger.ErrorContext(ctx, "mark backup failed", "backup_id", record.ID, "error", uerr)
		}
		return nil, err
	}

	if err := m.deps.Backups.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail(err)
	}

	if err := database.Checkpoint(ctx, m.deps.DB); err != nil {
		return fail(err)
	}
	plaintext, err := os.ReadFile(cfg.DBPath)
	if err != nil {
		return fail(fmt.Errorf("read database: %w", err))
	}

	var buf bytes.Buffer
	if err := Seal(&buf, plaintext, km.key, km.salt); err != nil {
		return fail(fmt.Errorf("encrypt: %w", err))
	}
	size := int64(buf.Len())

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	if err := m.deps.Backups.UpdateCompleted(ctx, record.ID, size); err != nil {
		return nil, err
	}
	return m.deps.Backups.GetByID(ctx, record.ID)
}

// Download streams a completed encrypted backup from object storage.
func (m *Manager) Download(ctx context.Context, backupID int64) (io.ReadCloser, *model.Backup, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil, nil, ErrNotConfigured
	}

	record, err := m.deps.Backups.GetByID(ctx, backupID)
	if err != nil {
		return nil, nil, fmt.Errorf("get backup: %w", err)
	}
	if record == nil {
		return nil, nil, ErrNotFound
	}
	if !record.Restorable() {
		return nil, nil, ErrNotCompleted
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, record, nil
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	before := m.deps.Clock.Now().UTC().AddDate(0, 0, -retentionDays)
	keys, err := m.deps.Backups.DeleteOlderThan(ctx, before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.deps.Logger.WarnContext(ctx, "delete s3 object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.deps.Logger.InfoContext(ctx, "removed old backups", "count", len(keys))
	}
	return nil
}

func (m *Manager) count(result string) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.BackupsTotal.WithLabelValues(result).Inc()
	}
}
