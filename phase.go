package main

import (
	"context"
	"fmt"
	"time"
)

// PhaseResult is the outcome of one engine phase.
type PhaseResult struct {
	Phase    Phase
	ExitCode int
	// Completed is set when the phase-end sentinel was observed.
	Completed bool
	TimedOut  bool
	Duration  time.Duration
	Output    string
}

// PhaseWatcher is the part of the log watcher the coordinator drives.
type PhaseWatcher interface {
	SetPhase(p Phase)
	Signal(p Phase) *Signal
}

// Coordinator runs engine phases: it switches the watcher into the phase,
// launches the engine, waits for the phase-end sentinel and always leaves
// the engine terminated.
type Coordinator struct {
	Watcher  PhaseWatcher
	Launcher Launcher
	// Timeout bounds the wait for the phase-end sentinel.
	Timeout time.Duration
	// ExitGrace is how long the engine may take to exit on its own after
	// the sentinel before it is terminated.
	ExitGrace time.Duration
	// KillGrace separates the graceful and the forced terminate.
	KillGrace time.Duration
	// Failures carries fatal errors from the log listener.
	Failures <-chan error
	Logger   *RunLogger
	Cleanup  *CleanupCoordinator
}

// RunPhase runs one phase to completion. A non-zero exit code is returned as
// *PhaseExitError alongside the result; a timeout wraps ErrPhaseTimeout.
func (c *Coordinator) RunPhase(ctx context.Context, phase Phase, spec LaunchSpec) (PhaseResult, error) {
	res := PhaseResult{Phase: phase}
	start := time.Now()

	c.Watcher.SetPhase(phase)
	sig := c.Watcher.Signal(phase)

	c.Logger.PhaseStart(phase, spec.String())

	proc, err := c.Launcher.Launch(ctx, spec)
	if err != nil {
		res.ExitCode = -1
		res.Duration = time.Since(start)
		c.Logger.PhaseEnd(res)
		return res, fmt.Errorf("failed to start %s phase: %w", phase, err)
	}
	c.Cleanup.SetProcess(proc)
	defer c.Cleanup.ClearProcess()

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	var fatal error
	select {
	case <-sig.Done():
		res.Completed = true
	case <-timer.C:
		// The sentinel may land in the same instant as the timeout.
		if sig.Raised() {
			res.Completed = true
		} else {
			res.TimedOut = true
		}
	case err := <-c.Failures:
		fatal = err
	case <-ctx.Done():
		fatal = ctx.Err()
	}

	if res.Completed {
		select {
		case <-proc.Exited():
		case <-time.After(c.ExitGrace):
		case err := <-c.Failures:
			fatal = err
		}
	}

	if err := proc.Terminate(c.KillGrace); err != nil && fatal == nil {
		fatal = fmt.Errorf("failed to terminate %s phase: %w", phase, err)
	}
	code, waitErr := proc.Wait()
	res.ExitCode = code
	res.Output = proc.Output()
	res.Duration = time.Since(start)
	c.Logger.PhaseEnd(res)

	switch {
	case res.TimedOut:
		return res, fmt.Errorf("%w: %s phase after %s", ErrPhaseTimeout, phase, c.Timeout)
	case fatal != nil:
		return res, fatal
	case waitErr != nil:
		return res, fmt.Errorf("%s phase: %w", phase, waitErr)
	case code != 0:
		return res, &PhaseExitError{Phase: phase, Code: code}
	}
	return res, nil
}
