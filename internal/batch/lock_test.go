package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireFolderLockBlocksConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireFolderLock(dir)
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	if _, err := AcquireFolderLock(dir); !errors.Is(err, ErrFolderLocked) {
		t.Fatalf("expected ErrFolderLocked, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}
	lock2, err := AcquireFolderLock(dir)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

func TestAcquireFolderLockReclaimsDeadOwner(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, folderLockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// pid_max on Linux never reaches this value.
	raw, _ := json.Marshal(folderLockOwner{PID: 1 << 30, CreatedAt: "2020-01-01T00:00:00Z", Hostname: hostnameOrUnknown()})
	if err := os.WriteFile(filepath.Join(lockDir, folderLockOwnerFile), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	lock, err := AcquireFolderLock(dir)
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
}

func TestRunBatchRejectsLockedFolder(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireFolderLock(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = lock.Release()
	}()

	rec := &recorder{}
	c := NewCoordinator(rec, &fakeRunner{}, nil)
	if _, err := c.RunBatch(context.Background(), makeJobs("a"), 1, dir); !errors.Is(err, ErrFolderLocked) {
		t.Fatalf("expected ErrFolderLocked, got %v", err)
	}
	if len(rec.messages()) != 0 {
		t.Fatalf("expected no events, got %d", len(rec.messages()))
	}
	if c.Running() {
		t.Fatal("coordinator still marked running")
	}
}

func TestRunBatchReleasesFolderLock(t *testing.T) {
	dir := t.TempDir()
	c := NewCoordinator(&recorder{}, &fakeRunner{}, nil)
	if _, err := c.RunBatch(context.Background(), makeJobs("a", "b"), 2, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, folderLockDirName)); !os.IsNotExist(err) {
		t.Fatalf("expected lock dir removed, stat err=%v", err)
	}
}
