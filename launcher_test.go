package main

import (
	"strings"
	"testing"
)

func TestCapturedOutput_Write(t *testing.T) {
	co := &capturedOutput{maxBytes: 1024}

	n, err := co.Write([]byte("hello world\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12 bytes written, got %d", n)
	}
	if co.String() != "hello world\n" {
		t.Errorf("expected 'hello world\\n', got '%s'", co.String())
	}
}

func TestCapturedOutput_Truncation(t *testing.T) {
	co := &capturedOutput{maxBytes: 100}

	for i := 0; i < 20; i++ {
		co.Write([]byte("1234567890"))
	}

	output := co.String()
	if len(output) > 100 {
		t.Errorf("expected output <= 100 bytes, got %d", len(output))
	}
	if len(output) == 0 {
		t.Error("expected some output preserved, got empty")
	}
}

func TestCapturedOutput_Tail(t *testing.T) {
	co := &capturedOutput{maxBytes: 1024}
	co.Write([]byte("line1\nline2\nline3\nline4\nline5\n"))

	if got := co.Tail(3); got != "line3\nline4\nline5" {
		t.Errorf("unexpected tail %q", got)
	}
	if got := co.Tail(10); strings.Count(got, "\n") != 4 {
		t.Errorf("expected all 5 lines, got %q", got)
	}
}

func TestLaunchSpec_String(t *testing.T) {
	spec := LaunchSpec{Command: "UDK-Lite/Binaries/Win64/UDK.exe", Args: []string{"make", "-useunpublished"}}
	if got := spec.String(); got != "UDK-Lite/Binaries/Win64/UDK.exe make -useunpublished" {
		t.Errorf("unexpected spec string %q", got)
	}
	if got := (LaunchSpec{Command: "UDK.exe"}).String(); got != "UDK.exe" {
		t.Errorf("expected no trailing space, got %q", got)
	}
}

func TestLaunchSpec_ImageName(t *testing.T) {
	cases := []struct {
		spec LaunchSpec
		want string
	}{
		{LaunchSpec{Command: "UDK-Lite/Binaries/Win64/UDK.exe"}, "UDK.exe"},
		{LaunchSpec{Command: "wine", Args: []string{"UDK.exe"}, Image: "UDK.exe"}, "UDK.exe"},
		{LaunchSpec{Command: "UDK"}, "UDK"},
	}
	for _, c := range cases {
		if got := c.spec.ImageName(); got != c.want {
			t.Errorf("ImageName(%v) = %q, want %q", c.spec, got, c.want)
		}
	}
}

func TestExecLauncher_EmptyCommand(t *testing.T) {
	_, err := ExecLauncher{}.Launch(testContext(t), LaunchSpec{})
	if err == nil {
		t.Error("expected error for empty command")
	}
}
