package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLockFile_AcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lf := NewLockFile(dir)
	if err := lf.Acquire("1.0.1", "./UDK-Lite/"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(dir, stateDirName, "udktest.lock")
	if !fileExists(lockPath) {
		t.Error("lock file should exist after acquire")
	}

	if err := lf.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if fileExists(lockPath) {
		t.Error("lock file should not exist after release")
	}
}

func TestLockFile_DoubleAcquireFails(t *testing.T) {
	dir := t.TempDir()

	lf1 := NewLockFile(dir)
	lf2 := NewLockFile(dir)

	if err := lf1.Acquire("1.0.1", "a"); err != nil {
		t.Fatalf("failed to acquire first lock: %v", err)
	}
	defer lf1.Release()

	if err := lf2.Acquire("1.0.2", "b"); err == nil {
		t.Error("expected error when acquiring second lock")
	}
}

func TestLockFile_StaleLockReplaced(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, stateDirName, "udktest.lock")
	os.MkdirAll(filepath.Dir(lockPath), 0755)

	// Old enough to be stale even if the pid happens to be alive.
	stale := `{"pid": 1, "startedAt": "` + time.Now().Add(-48*time.Hour).Format(time.RFC3339) + `", "tag": "old"}`
	os.WriteFile(lockPath, []byte(stale), 0644)

	lf := NewLockFile(dir)
	if err := lf.Acquire("1.0.1", "root"); err != nil {
		t.Fatalf("expected stale lock to be replaced, got %v", err)
	}
	defer lf.Release()

	info, err := ReadLockStatus(dir)
	if err != nil || info == nil {
		t.Fatalf("expected lock info, got %v, %v", info, err)
	}
	if info.Tag != "1.0.1" {
		t.Errorf("expected tag='1.0.1', got '%s'", info.Tag)
	}
}

func TestLockFile_ReleaseWithoutAcquire(t *testing.T) {
	lf := NewLockFile(t.TempDir())
	if err := lf.Release(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	var nilLock *LockFile
	if err := nilLock.Release(); err != nil {
		t.Errorf("expected nil for nil lock, got %v", err)
	}
}

func TestReadLockStatus_NoLock(t *testing.T) {
	info, err := ReadLockStatus(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != nil {
		t.Error("expected nil for no lock")
	}
}

func TestReadLockStatus_WithLock(t *testing.T) {
	dir := t.TempDir()

	lf := NewLockFile(dir)
	lf.Acquire("1.0.1", "./UDK-Lite/")
	defer lf.Release()

	info, err := ReadLockStatus(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info == nil {
		t.Fatal("expected lock info")
	}
	if info.Tag != "1.0.1" {
		t.Errorf("expected tag='1.0.1', got '%s'", info.Tag)
	}
	if info.Root != "./UDK-Lite/" {
		t.Errorf("expected root='./UDK-Lite/', got '%s'", info.Root)
	}
	if info.PID != os.Getpid() {
		t.Errorf("expected PID=%d, got %d", os.Getpid(), info.PID)
	}
}

func TestIsProcessAlive(t *testing.T) {
	if !isProcessAlive(os.Getpid()) {
		t.Error("expected current process to be alive")
	}
	if isProcessAlive(0) {
		t.Error("expected pid 0 to be reported dead")
	}
}

func TestIsLockStale(t *testing.T) {
	live := &LockInfo{PID: os.Getpid(), StartedAt: time.Now()}
	if isLockStale(live) {
		t.Error("fresh lock of a running process should not be stale")
	}

	old := &LockInfo{PID: os.Getpid(), StartedAt: time.Now().Add(-maxLockAge - time.Hour)}
	if !isLockStale(old) {
		t.Error("lock older than maxLockAge should be stale")
	}

	dead := &LockInfo{PID: 0, StartedAt: time.Now()}
	if !isLockStale(dead) {
		t.Error("lock without a live process should be stale")
	}
}
