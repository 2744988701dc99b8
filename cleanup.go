package main

import (
	"sync"
	"time"
)

// CleanupCoordinator manages graceful cleanup of resources during signal handling.
// Resources register themselves when created, and the coordinator ensures they
// are cleaned up properly when signals are received, even when os.Exit() is called.
type CleanupCoordinator struct {
	mu       sync.Mutex
	process  Process
	stoppers []func()
	logger   *RunLogger
	lock     *LockFile
	done     bool
}

// NewCleanupCoordinator creates a new cleanup coordinator.
func NewCleanupCoordinator() *CleanupCoordinator {
	return &CleanupCoordinator{}
}

// SetProcess registers the running phase process for cleanup.
func (c *CleanupCoordinator) SetProcess(p Process) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.process = p
}

// ClearProcess unregisters the phase process after it exits.
func (c *CleanupCoordinator) ClearProcess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.process = nil
}

// AddStopper registers a background worker shutdown. Stoppers run in
// reverse registration order.
func (c *CleanupCoordinator) AddStopper(stop func()) {
	if c == nil || stop == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stoppers = append(c.stoppers, stop)
}

// SetLogger registers the run logger for cleanup.
func (c *CleanupCoordinator) SetLogger(l *RunLogger) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

// SetLock registers the lock file for cleanup.
func (c *CleanupCoordinator) SetLock(lf *LockFile) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lock = lf
}

// Cleanup performs graceful cleanup of all registered resources.
// Safe to call multiple times (idempotent).
func (c *CleanupCoordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return
	}
	c.done = true

	// Engine first, it is the only thing still writing the log
	if c.process != nil {
		c.process.Terminate(500 * time.Millisecond)
	}

	for i := len(c.stoppers) - 1; i >= 0; i-- {
		c.stoppers[i]()
	}
	c.stoppers = nil

	if c.logger != nil {
		c.logger.RunEnd(false, "interrupted by signal")
		c.logger.Close()
	}

	// Release lock last
	if c.lock != nil {
		c.lock.Release()
	}
}
