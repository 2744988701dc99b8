//go:build windows

package main

import (
	"os"
	"os/exec"
	"strconv"
	"strings"
)

func configureCommandProcess(cmd *exec.Cmd) {}

// terminateCommandProcess asks the engine to close, as taskkill does
// without /F.
func terminateCommandProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = exec.Command("taskkill", "/PID", strconv.Itoa(cmd.Process.Pid), "/T").Run()
}

func killCommandProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid)).Run(); err != nil {
		_ = cmd.Process.Kill()
	}
}

func exitCodeOf(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func shellCommand(spec LaunchSpec) (string, []string) {
	parts := []string{quoteArg(spec.Command)}
	for _, a := range spec.Args {
		parts = append(parts, quoteArg(a))
	}
	return "cmd", []string{"/C", strings.Join(parts, " ")}
}

func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
