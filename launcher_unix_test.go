//go:build !windows

package main

import (
	"strings"
	"testing"
	"time"
)

func TestExecLauncher_ExitCode(t *testing.T) {
	p, err := ExecLauncher{}.Launch(testContext(t), LaunchSpec{Command: "sh", Args: []string{"-c", "echo compiling; exit 3"}})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	code, err := p.Wait()
	if err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(p.Output(), "compiling") {
		t.Errorf("expected captured output, got %q", p.Output())
	}
	select {
	case <-p.Exited():
	default:
		t.Error("Exited should be closed after Wait")
	}
}

func TestExecLauncher_Terminate(t *testing.T) {
	p, err := ExecLauncher{}.Launch(testContext(t), LaunchSpec{Command: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if err := p.Terminate(2 * time.Second); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}
	code, _ := p.Wait()
	if code != 143 {
		t.Errorf("expected 128+SIGTERM, got %d", code)
	}
	if err := p.Terminate(time.Second); err != nil {
		t.Errorf("terminating an exited process should be a no-op, got %v", err)
	}
}

func TestExecLauncher_Shell(t *testing.T) {
	p, err := ExecLauncher{}.Launch(testContext(t), LaunchSpec{Command: "echo", Args: []string{"it's here"}, Shell: true})
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if code, _ := p.Wait(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(p.Output(), "it's here") {
		t.Errorf("argument not quoted through the shell: %q", p.Output())
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"make":            "make",
		"":                "''",
		"a b":             "'a b'",
		"it's":            `'it'\''s'`,
		"Entry?Mutator=X": "'Entry?Mutator=X'",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
