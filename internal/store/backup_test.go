package store

import (
	"context"
	"testing"

	"github.com/dukerupert/memberqr/internal/model"
)

func TestBackupCreate(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))

	b, err := bs.Create(context.Background(), "memberqr-20250101.db.enc", "backups/abc.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Filename != "memberqr-20250101.db.enc" {
		t.Errorf("filename = %q, want %q", b.Filename, "memberqr-20250101.db.enc")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}
	if b.CompletedAt != nil {
		t.Error("expected nil completed_at")
	}
}

func TestBackupStatusTransitions(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	ctx := context.Background()

	b, _ := bs.Create(ctx, "f.db.enc", "k1")
	if err := bs.UpdateStatus(ctx, b.ID, model.BackupStatusUploading, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := bs.UpdateCompleted(ctx, b.ID, 4096); err != nil {
		t.Fatalf("update completed: %v", err)
	}

	got, err := bs.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusCompleted)
	}
	if got.SizeBytes != 4096 {
		t.Errorf("size = %d, want 4096", got.SizeBytes)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	failed, _ := bs.Create(ctx, "g.db.enc", "k2")
	bs.UpdateStatus(ctx, failed.ID, model.BackupStatusFailed, "upload refused")
	got, _ = bs.GetByID(ctx, failed.ID)
	if got.Error != "upload refused" {
		t.Errorf("error = %q, want %q", got.Error, "upload refused")
	}
}

func TestBackupList(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	ctx := context.Background()
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, err := bs.Create(ctx, k+".enc", k); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := bs.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ObjectKey != "k3" {
		t.Errorf("first = %q, want newest k3", list[0].ObjectKey)
	}
}

func TestBackupGetByIDNotFound(t *testing.T) {
	bs := NewBackupStore(openTestDB(t))
	b, err := bs.GetByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b != nil {
		t.Error("expected nil for missing backup")
	}
}
