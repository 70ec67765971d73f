package model

import "testing"

func TestBackupRestorable(t *testing.T) {
	for status, want := range map[BackupStatus]bool{
		BackupStatusPending:   false,
		BackupStatusUploading: false,
		BackupStatusCompleted: true,
		BackupStatusFailed:    false,
	} {
		b := Backup{Status: status}
		if got := b.Restorable(); got != want {
			t.Errorf("%s: Restorable = %v, want %v", status, got, want)
		}
	}
}
