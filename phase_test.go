package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeProcess exits when told to, or with killCode when terminated first.
type fakeProcess struct {
	mu       sync.Mutex
	code     int
	killCode int
	terms    int
	done     chan struct{}
	once     sync.Once
}

func newFakeProcess(killCode int) *fakeProcess {
	return &fakeProcess{killCode: killCode, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) terminations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terms
}

func (p *fakeProcess) Pid() int                { return 4242 }
func (p *fakeProcess) Exited() <-chan struct{} { return p.done }
func (p *fakeProcess) Output() string          { return "" }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, nil
}

func (p *fakeProcess) Terminate(grace time.Duration) error {
	p.mu.Lock()
	p.terms++
	p.mu.Unlock()
	p.exit(p.killCode)
	return nil
}

// fakeLauncher hands out fake processes and runs script for each launch.
type fakeLauncher struct {
	mu       sync.Mutex
	specs    []LaunchSpec
	procs    []*fakeProcess
	killCode int
	err      error
	script   func(spec LaunchSpec, p *fakeProcess)
}

func (l *fakeLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(l.killCode)
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.procs = append(l.procs, p)
	l.mu.Unlock()
	if l.script != nil {
		go l.script(spec, p)
	}
	return p, nil
}

func (l *fakeLauncher) launched() []*fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeProcess(nil), l.procs...)
}

// engineLog writes lines to the log and notifies the watcher the way the
// listener would.
func engineLog(t *testing.T, w *LogWatcher, lines ...string) {
	t.Helper()
	created := !fileExists(w.Path())
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Error(err)
		return
	}
	for _, line := range lines {
		f.WriteString(line + "\n")
	}
	f.Close()
	if created {
		if err := w.OnCreated(w.Path()); err != nil {
			t.Error(err)
		}
	}
	if err := w.OnModified(w.Path()); err != nil {
		t.Error(err)
	}
}

func newTestCoordinator(t *testing.T, l Launcher) (*Coordinator, *LogWatcher) {
	t.Helper()
	w := NewLogWatcher(filepath.Join(t.TempDir(), "Launch.log"), Classifier{})
	return &Coordinator{
		Watcher:   w,
		Launcher:  l,
		Timeout:   2 * time.Second,
		ExitGrace: 200 * time.Millisecond,
		KillGrace: 50 * time.Millisecond,
	}, w
}

func TestRunPhase_CompletesOnSentinel(t *testing.T) {
	var w *LogWatcher
	l := &fakeLauncher{killCode: 143}
	l.script = func(spec LaunchSpec, p *fakeProcess) {
		engineLog(t, w, "[0.01] Log: Compiling", "[0.02] Log: Log file closed, 12/01/24")
		p.exit(0)
	}
	c, watcher := newTestCoordinator(t, l)
	w = watcher

	res, err := c.RunPhase(testContext(t), PhaseBuilding, LaunchSpec{Command: "UDK.exe", Args: []string{"make"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed || res.TimedOut {
		t.Errorf("expected completed phase, got %+v", res)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if w.Phase() != PhaseBuilding {
		t.Errorf("expected watcher in building phase, got %s", w.Phase())
	}
}

func TestRunPhase_TerminatesLingeringProcess(t *testing.T) {
	var w *LogWatcher
	l := &fakeLauncher{killCode: 0}
	l.script = func(spec LaunchSpec, p *fakeProcess) {
		engineLog(t, w, "[0.5] Exit: Exiting.")
	}
	c, watcher := newTestCoordinator(t, l)
	w = watcher

	res, err := c.RunPhase(testContext(t), PhaseTesting, LaunchSpec{Command: "UDK.exe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed {
		t.Error("expected sentinel to complete the phase")
	}
	procs := l.launched()
	if len(procs) != 1 || procs[0].terminations() != 1 {
		t.Errorf("expected the lingering process to be terminated once")
	}
}

func TestRunPhase_TimeoutStillTerminates(t *testing.T) {
	l := &fakeLauncher{killCode: 143}
	c, _ := newTestCoordinator(t, l)
	c.Timeout = 100 * time.Millisecond

	res, err := c.RunPhase(testContext(t), PhaseTesting, LaunchSpec{Command: "UDK.exe"})
	if !errors.Is(err, ErrPhaseTimeout) {
		t.Fatalf("expected ErrPhaseTimeout, got %v", err)
	}
	if !res.TimedOut {
		t.Error("expected TimedOut=true")
	}
	procs := l.launched()
	if len(procs) != 1 || procs[0].terminations() != 1 {
		t.Fatal("expected the process to be terminated after a timeout")
	}
	if res.ExitCode != 143 {
		t.Errorf("expected exit code 143, got %d", res.ExitCode)
	}
}

func TestRunPhase_NonZeroExit(t *testing.T) {
	var w *LogWatcher
	l := &fakeLauncher{}
	l.script = func(spec LaunchSpec, p *fakeProcess) {
		engineLog(t, w, "[1.0] Error: Compile failed", "[1.1] Log: Log file closed")
		p.exit(1)
	}
	c, watcher := newTestCoordinator(t, l)
	w = watcher

	res, err := c.RunPhase(testContext(t), PhaseBuilding, LaunchSpec{Command: "UDK.exe"})
	var exitErr *PhaseExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *PhaseExitError, got %v", err)
	}
	if exitErr.Code != 1 || exitErr.Phase != PhaseBuilding {
		t.Errorf("unexpected exit error: %+v", exitErr)
	}
	if res.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %d", res.ExitCode)
	}
	if len(w.Errors()) != 1 {
		t.Errorf("expected 1 error line, got %v", w.Errors())
	}
}

func TestRunPhase_ListenerFailureIsFatal(t *testing.T) {
	failures := make(chan error, 1)
	l := &fakeLauncher{killCode: 143}
	c, _ := newTestCoordinator(t, l)
	c.Failures = failures

	l.script = func(spec LaunchSpec, p *fakeProcess) {
		failures <- ErrNoHandle
	}

	_, err := c.RunPhase(testContext(t), PhaseBuilding, LaunchSpec{Command: "UDK.exe"})
	if !errors.Is(err, ErrNoHandle) {
		t.Fatalf("expected ErrNoHandle, got %v", err)
	}
	if l.launched()[0].terminations() != 1 {
		t.Error("expected the process to be terminated on listener failure")
	}
}

func TestRunPhase_LaunchFailure(t *testing.T) {
	l := &fakeLauncher{err: errors.New("exec format error")}
	c, _ := newTestCoordinator(t, l)

	res, err := c.RunPhase(testContext(t), PhaseBuilding, LaunchSpec{Command: "UDK.exe"})
	if err == nil {
		t.Fatal("expected launch error")
	}
	if res.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", res.ExitCode)
	}
}

func TestRunPhase_ContextCanceled(t *testing.T) {
	l := &fakeLauncher{killCode: 143}
	c, _ := newTestCoordinator(t, l)

	ctx, cancel := context.WithCancel(testContext(t))
	l.script = func(spec LaunchSpec, p *fakeProcess) { cancel() }

	_, err := c.RunPhase(ctx, PhaseTesting, LaunchSpec{Command: "UDK.exe"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunPhase_RegistersProcessForCleanup(t *testing.T) {
	var w *LogWatcher
	cleanup := NewCleanupCoordinator()
	l := &fakeLauncher{}
	l.script = func(spec LaunchSpec, p *fakeProcess) {
		engineLog(t, w, "[0.1] Log: Log file closed")
		p.exit(0)
	}
	c, watcher := newTestCoordinator(t, l)
	w = watcher
	c.Cleanup = cleanup

	if _, err := c.RunPhase(testContext(t), PhaseBuilding, LaunchSpec{Command: "UDK.exe"}); err != nil {
		t.Fatal(err)
	}

	// Cleared after the phase, so cleanup leaves the reaped process alone.
	cleanup.Cleanup()
	if n := l.launched()[0].terminations(); n != 1 {
		t.Errorf("expected only the phase's own terminate call, got %d", n)
	}
}

func TestRunPhase_ListenerFailureDuringExitGrace(t *testing.T) {
	var w *LogWatcher
	failures := make(chan error, 1)
	l := &fakeLauncher{killCode: 0}
	l.script = func(spec LaunchSpec, p *fakeProcess) {
		engineLog(t, w, "[0.5] Exit: Exiting.")
		failures <- ErrNoHandle
	}
	c, watcher := newTestCoordinator(t, l)
	w = watcher
	c.Failures = failures
	c.ExitGrace = 2 * time.Second

	_, err := c.RunPhase(testContext(t), PhaseTesting, LaunchSpec{Command: "UDK.exe"})
	if !errors.Is(err, ErrNoHandle) {
		t.Fatalf("expected ErrNoHandle, got %v", err)
	}
	if len(failures) != 0 {
		t.Error("listener failure was left undelivered")
	}
}
