package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// capturedOutput keeps the tail of a process's stdout/stderr.
type capturedOutput struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	maxBytes int
}

func (co *capturedOutput) Write(p []byte) (n int, err error) {
	co.mu.Lock()
	defer co.mu.Unlock()
	// Trim from front if buffer exceeds max
	if co.buf.Len()+len(p) > co.maxBytes {
		data := co.buf.Bytes()
		keep := co.maxBytes / 2
		if len(data) > keep {
			data = data[len(data)-keep:]
		}
		rest := append([]byte(nil), data...)
		co.buf.Reset()
		co.buf.Write(rest)
	}
	co.buf.Write(p)
	return len(p), nil
}

func (co *capturedOutput) String() string {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.buf.String()
}

// Tail returns the last maxLines lines of captured output.
func (co *capturedOutput) Tail(maxLines int) string {
	lines := strings.Split(strings.TrimRight(co.String(), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

// LaunchSpec describes how to start the engine for one phase.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	// Image is the engine's executable name when Command is a wrapper.
	Image string
	// Shell launches through the platform shell. The engine may then run
	// under a different pid than the tracked one.
	Shell bool
}

func (s LaunchSpec) String() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// ImageName is the executable name used to find indirectly launched copies.
func (s LaunchSpec) ImageName() string {
	if s.Image != "" {
		return s.Image
	}
	return filepath.Base(s.Command)
}

// Process is a launched engine process.
type Process interface {
	Pid() int
	// Exited is closed once the process has exited.
	Exited() <-chan struct{}
	// Wait blocks until exit and returns the exit code.
	Wait() (int, error)
	// Terminate stops the process, escalating to a forced kill after grace.
	// It is a no-op for a process that already exited.
	Terminate(grace time.Duration) error
	Output() string
}

// Launcher starts engine processes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher launches real OS processes.
type ExecLauncher struct{}

func (ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if spec.Command == "" {
		return nil, errors.New("launch: empty command")
	}

	var cmd *exec.Cmd
	if spec.Shell {
		name, args := shellCommand(spec)
		cmd = exec.Command(name, args...)
	} else {
		cmd = exec.Command(spec.Command, spec.Args...)
	}
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	configureCommandProcess(cmd)

	co := &capturedOutput{maxBytes: 256 * 1024}
	cmd.Stdout = co
	cmd.Stderr = co

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.ImageName(), err)
	}

	p := &execProcess{
		cmd:  cmd,
		spec: spec,
		out:  co,
		done: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	spec LaunchSpec
	out  *capturedOutput
	done chan struct{}
	code int
	err  error
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()
	p.code = exitCodeOf(p.cmd.ProcessState)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.err = err
	}
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Exited() <-chan struct{} {
	return p.done
}

func (p *execProcess) Wait() (int, error) {
	<-p.done
	return p.code, p.err
}

func (p *execProcess) Output() string {
	return p.out.Tail(50)
}

func (p *execProcess) Terminate(grace time.Duration) error {
	// Shell and wrapper launches may leave the engine under another pid.
	defer func() {
		if p.spec.Shell || p.spec.Image != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			KillProcessesByName(ctx, p.spec.ImageName())
		}
	}()

	select {
	case <-p.done:
		return nil
	default:
	}

	terminateCommandProcess(p.cmd)
	select {
	case <-p.done:
		return nil
	case <-time.After(grace):
	}

	killCommandProcess(p.cmd)
	select {
	case <-p.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("process %d did not exit after kill", p.Pid())
	}
}
