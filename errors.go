package main

import (
	"errors"
	"fmt"
)

// Fatal conditions. Every one of these aborts a run; the driver tears down
// background workers before returning them.
var (
	ErrCacheNotFound      = errors.New("cache record not found")
	ErrCorruptCache       = errors.New("cache record is corrupt")
	ErrNoInputFiles       = errors.New("no input script files found")
	ErrMissingAuxFiles    = errors.New("required auxiliary files missing")
	ErrNoHandle           = errors.New("no log file handle")
	ErrPhaseTimeout       = errors.New("timed out waiting for phase end")
	ErrExitCodeSum        = errors.New("non-zero combined exit code")
	ErrWatcherJoinTimeout = errors.New("timed out waiting for log listener to stop")
	ErrPokerJoinTimeout   = errors.New("timed out waiting for log poker to stop")
	ErrErrorsDetected     = errors.New("errors detected in engine log")
	ErrUnsafeEntry        = errors.New("archive entry escapes output root")
)

// PhaseExitError reports a phase whose process exited with a non-zero code.
type PhaseExitError struct {
	Phase Phase
	Code  int
}

func (e *PhaseExitError) Error() string {
	return fmt.Sprintf("%s phase: engine exited with code %d", e.Phase, e.Code)
}
