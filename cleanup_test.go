package main

import (
	"testing"
)

func TestCleanupCoordinatorIdempotent(t *testing.T) {
	c := NewCleanupCoordinator()
	calls := 0
	c.AddStopper(func() { calls++ })

	c.Cleanup()
	c.Cleanup()
	c.Cleanup()

	if calls != 1 {
		t.Errorf("expected stopper to run once, got %d", calls)
	}
}

func TestCleanupCoordinatorSettersWithNil(t *testing.T) {
	c := NewCleanupCoordinator()

	c.SetProcess(nil)
	c.AddStopper(nil)
	c.SetLogger(nil)
	c.SetLock(nil)

	c.Cleanup()
}

func TestCleanupCoordinatorTerminatesProcess(t *testing.T) {
	c := NewCleanupCoordinator()
	p := newFakeProcess(0)
	c.SetProcess(p)

	c.Cleanup()

	if p.terminations() != 1 {
		t.Errorf("expected 1 termination, got %d", p.terminations())
	}
}

func TestCleanupCoordinatorClearProcess(t *testing.T) {
	c := NewCleanupCoordinator()
	p := newFakeProcess(0)
	c.SetProcess(p)
	c.ClearProcess()

	c.Cleanup()

	if p.terminations() != 0 {
		t.Errorf("expected cleared process to be left alone, got %d terminations", p.terminations())
	}
}

func TestCleanupCoordinatorStopperOrder(t *testing.T) {
	c := NewCleanupCoordinator()
	var order []string
	c.AddStopper(func() { order = append(order, "listener") })
	c.AddStopper(func() { order = append(order, "poker") })

	c.Cleanup()

	if len(order) != 2 || order[0] != "poker" || order[1] != "listener" {
		t.Errorf("expected [poker listener], got %v", order)
	}
}

func TestCleanupCoordinatorReleasesLock(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockFile(dir)
	if err := lf.Acquire("1.0.1", "root"); err != nil {
		t.Fatal(err)
	}

	c := NewCleanupCoordinator()
	c.SetLock(lf)
	c.Cleanup()

	info, _ := ReadLockStatus(dir)
	if info != nil {
		t.Error("expected lock to be released by cleanup")
	}
}

func TestNilCleanupCoordinatorSetters(t *testing.T) {
	var c *CleanupCoordinator
	c.SetProcess(nil)
	c.ClearProcess()
	c.AddStopper(func() {})
	c.SetLogger(nil)
	c.SetLock(nil)
}
