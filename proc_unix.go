//go:build !windows

package main

import (
	"os"
	"os/exec"
	"strings"
	"syscall"
)

func configureCommandProcess(cmd *exec.Cmd) {
	// Own process group so the engine and anything it spawns go together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = cmd.Process.Signal(sig)
}

func terminateCommandProcess(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGTERM)
}

func killCommandProcess(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}

// exitCodeOf reports 128+signo for a process killed by a signal.
func exitCodeOf(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func shellCommand(spec LaunchSpec) (string, []string) {
	parts := []string{shellQuote(spec.Command)}
	for _, a := range spec.Args {
		parts = append(parts, shellQuote(a))
	}
	return "sh", []string{"-c", strings.Join(parts, " ")}
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
