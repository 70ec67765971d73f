package model

import "time"

// BackupStatus tracks one run of the encrypted registry snapshot. A run
// starts pending while the database is copied and sealed, moves to
// uploading once the ciphertext is handed to object storage, and ends
// completed or failed. Failed runs keep their row so the admin page can
// show the error.
type BackupStatus string

const (
	BackupStatusPending   BackupStatus = "pending"
	BackupStatusUploading BackupStatus = "uploading"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// Backup is one encrypted copy of the registry database kept in object
// storage under S3Key. SizeBytes is the ciphertext size and is zero
// until the upload completes.
type Backup struct {
	ID           int64        `json:"id"`
	Filename     string       `json:"filename"`
	S3Key        string       `json:"s3_key"`
	Status       BackupStatus `json:"status"`
	SizeBytes    int64        `json:"size_bytes"`
	ErrorMessage string       `json:"error_message,omitempty"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Restorable reports whether the object behind b is whole and can be
// downloaded for decryption.
func (b *Backup) Restorable() bool {
	return b.Status == BackupStatusCompleted
}
