package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/store"
)

// mockS3Client implements ObjectStore for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

const testPassphrase = "mot-hai-ba-bon-nam"

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Prefix: "backups"}

type fixture struct {
	db       *sql.DB
	dbPath   string
	backups  *store.BackupStore
	settings *store.SettingsStore
	s3       *mockS3Client
	clock    *clockwork.FakeClock
	statuses []Status
	failures []error
	manager  *Manager
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "giadinh.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClockAt(now)
	f := &fixture{
		db:       db,
		dbPath:   dbPath,
		backups:  store.NewBackupStore(db, clock),
		settings: store.NewSettingsStore(db),
		s3:       newMockS3(),
		clock:    clock,
	}
	var mu sync.Mutex
	f.manager = NewManager(Config{S3: testS3, DBPath: dbPath}, Deps{
		DB:       db,
		Backups:  f.backups,
		Settings: f.settings,
		Clock:    f.clock,
		Logger:   slog.New(slog.DiscardHandler),
		OnStatus: func(s Status) {
			mu.Lock()
			f.statuses = append(f.statuses, s)
			mu.Unlock()
		},
		OnFailure: func(_ context.Context, err error) {
			f.failures = append(f.failures, err)
		},
	}, WithObjectStore(f.s3))
	return f
}

func vietnamAt(hour, minute int) time.Time {
	return time.Date(2026, 10, 14, hour, minute, 0, 0, lunar.Location)
}

func TestManagerStateLifecycle(t *testing.T) {
	m := NewManager(Config{}, Deps{Clock: clockwork.NewFakeClock()})
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("manager without S3 config should be disabled")
	}

	m2 := NewManager(Config{S3: testS3}, Deps{Clock: clockwork.NewFakeClock()})
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}

	// Partial credentials leave the manager disabled.
	m3 := NewManager(Config{S3: S3Config{Bucket: "test"}}, Deps{Clock: clockwork.NewFakeClock()})
	if m3.Enabled() {
		t.Error("bucket without keys should not enable backups")
	}
}

func TestDisabledManager(t *testing.T) {
	m := NewManager(Config{}, Deps{Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	if _, err := m.RunNow(ctx, testPassphrase); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("RunNow err = %v, want ErrNotConfigured", err)
	}
	if _, _, err := m.Download(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Download err = %v, want ErrNotConfigured", err)
	}
	if err := m.Cleanup(ctx, 30); err != nil {
		t.Errorf("Cleanup on disabled manager: %v", err)
	}
	if err := m.Run(ctx); err != nil {
		t.Errorf("Run on disabled manager: %v", err)
	}
}

func TestSetPassphrase(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()

	if err := f.manager.SetPassphrase(ctx, "short"); !errors.Is(err, ErrPassphraseLength) {
		t.Errorf("err = %v, want ErrPassphraseLength", err)
	}
	if f.manager.HasCachedKey() {
		t.Error("rejected passphrase should not be cached")
	}

	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	if !f.manager.HasCachedKey() {
		t.Error("key should be cached after SetPassphrase")
	}
	if !f.manager.Status().KeyCached {
		t.Error("status should report cached key")
	}

	salt, err := f.settings.Get(ctx, store.KeyBackupPassphraseSalt)
	if err != nil || len(salt) != saltSize*2 {
		t.Errorf("stored salt = %q, %v", salt, err)
	}
	check, err := f.settings.Get(ctx, store.KeyBackupPassphraseCheck)
	if err != nil || check == "" {
		t.Errorf("stored verifier = %q, %v", check, err)
	}
	if strings.Contains(salt+check, testPassphrase) {
		t.Error("passphrase stored in clear")
	}
}

func TestRunNow(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()

	if _, err := f.manager.RunNow(ctx, testPassphrase); !errors.Is(err, ErrNoPassphrase) {
		t.Fatalf("err = %v, want ErrNoPassphrase", err)
	}

	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	if _, err := f.manager.RunNow(ctx, "mat-khau-sai-roi"); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("err = %v, want ErrWrongPassphrase", err)
	}

	b, err := f.manager.RunNow(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if b.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want completed", b.Status)
	}
	if !strings.HasPrefix(b.S3Key, "backups/giadinh-") || !strings.HasSuffix(b.S3Key, ".db.enc") {
		t.Errorf("s3 key = %q", b.S3Key)
	}
	if f.s3.count() != 1 {
		t.Fatalf("objects = %d, want 1", f.s3.count())
	}

	obj := f.s3.objects[b.S3Key]
	if int64(len(obj)) != b.SizeBytes {
		t.Errorf("size = %d, object is %d bytes", b.SizeBytes, len(obj))
	}
	plain, err := Open(obj, testPassphrase)
	if err != nil {
		t.Fatalf("decrypt uploaded backup: %v", err)
	}
	if !strings.HasPrefix(string(plain), "SQLite format 3") {
		t.Error("decrypted backup is not a SQLite database")
	}

	st := f.manager.Status()
	if st.State != StateIdle || st.InProgress || st.LastBackup == nil {
		t.Errorf("status after backup = %+v", st)
	}
	if len(f.statuses) < 2 || f.statuses[0].State != StateRunning {
		t.Errorf("status callbacks = %+v", f.statuses)
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	f.s3.putErr = errors.New("connection refused")

	if _, err := f.manager.RunNow(ctx, testPassphrase); err == nil {
		t.Fatal("expected upload error")
	}
	st := f.manager.Status()
	if st.State != StateError || st.Error == "" {
		t.Errorf("status = %+v, want error state", st)
	}

	list, err := f.backups.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != model.BackupStatusFailed {
		t.Fatalf("backups = %+v, want one failed record", list)
	}
	if !strings.Contains(list[0].ErrorMessage, "connection refused") {
		t.Errorf("error message = %q", list[0].ErrorMessage)
	}
}

func TestUnlockAfterRestart(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}

	// A new manager over the same database has nothing cached.
	m := NewManager(Config{S3: testS3, DBPath: f.dbPath}, Deps{
		DB: f.db, Backups: f.backups, Settings: f.settings,
		Clock: f.clock, Logger: slog.New(slog.DiscardHandler),
	}, WithObjectStore(f.s3))
	if m.HasCachedKey() {
		t.Fatal("fresh manager should not have a cached key")
	}
	if err := m.Unlock(ctx, "mat-khau-sai-roi"); !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("err = %v, want ErrWrongPassphrase", err)
	}
	if err := m.Unlock(ctx, testPassphrase); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !m.HasCachedKey() {
		t.Error("key should be cached after unlock")
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx := context.Background()
	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	b, err := f.manager.RunNow(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	rc, got, err := f.manager.Download(ctx, b.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if got.ID != b.ID || int64(len(data)) != b.SizeBytes {
		t.Errorf("downloaded %d bytes for backup %d", len(data), got.ID)
	}

	if _, _, err := f.manager.Download(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	pending, err := f.backups.Create(ctx, "pending.db.enc", "backups/pending.db.enc")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := f.manager.Download(ctx, pending.ID); !errors.Is(err, ErrNotCompleted) {
		t.Errorf("err = %v, want ErrNotCompleted", err)
	}
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, vietnamAt(3, 0))
	ctx := context.Background()
	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	if _, err := f.manager.RunNow(ctx, testPassphrase); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	f.clock.Advance(60 * 24 * time.Hour)

	if err := f.manager.Cleanup(ctx, 90); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if f.s3.count() != 1 {
		t.Fatalf("backup inside retention removed")
	}

	if err := f.manager.Cleanup(ctx, 30); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if f.s3.count() != 0 {
		t.Errorf("objects = %d, want 0", f.s3.count())
	}
	list, _ := f.backups.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("records = %d, want 0", len(list))
	}
}

func TestCheckSchedule(t *testing.T) {
	// 02:30 in Vietnam, before the default 03:00 run.
	f := newFixture(t, vietnamAt(2, 30))
	ctx := context.Background()

	f.manager.checkSchedule(ctx)
	if f.s3.count() != 0 {
		t.Fatal("backup ran while disabled")
	}

	if err := f.settings.Set(ctx, store.KeyBackupEnabled, "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	f.manager.checkSchedule(ctx)
	if f.s3.count() != 0 {
		t.Fatal("backup ran before the scheduled hour")
	}

	f.clock.Advance(time.Hour)
	f.manager.checkSchedule(ctx)
	if f.s3.count() != 0 {
		t.Fatal("backup ran without a cached key")
	}

	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	f.manager.checkSchedule(ctx)
	if f.s3.count() != 1 {
		t.Fatalf("objects = %d, want 1", f.s3.count())
	}

	f.clock.Advance(time.Hour)
	f.manager.checkSchedule(ctx)
	if f.s3.count() != 1 {
		t.Errorf("backup ran twice on the same day")
	}

	f.clock.Advance(24 * time.Hour)
	f.manager.checkSchedule(ctx)
	if f.s3.count() != 2 {
		t.Errorf("objects = %d, want 2 on the next day", f.s3.count())
	}
}

func TestCheckScheduleReportsFailure(t *testing.T) {
	f := newFixture(t, vietnamAt(4, 0))
	ctx := context.Background()
	if err := f.settings.Set(ctx, store.KeyBackupEnabled, "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.manager.SetPassphrase(ctx, testPassphrase); err != nil {
		t.Fatalf("SetPassphrase: %v", err)
	}
	f.s3.putErr = errors.New("bucket gone")

	f.manager.checkSchedule(ctx)
	if len(f.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(f.failures))
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- f.manager.Run(ctx) }()

	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("waiting for ticker: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
