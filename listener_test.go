package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type recordingHandler struct {
	created  chan string
	modified chan string
	err      error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		created:  make(chan string, 16),
		modified: make(chan string, 16),
	}
}

func (h *recordingHandler) OnCreated(name string) error {
	h.created <- filepath.Base(name)
	return nil
}

func (h *recordingHandler) OnModified(name string) error {
	h.modified <- filepath.Base(name)
	return h.err
}

func TestLogListener_DeliversEvents(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()

	l, err := StartLogListener(dir, filepath.Join(dir, "Launch.log"), h)
	if err != nil {
		t.Fatalf("StartLogListener: %v", err)
	}
	defer l.Stop(time.Second)

	path := filepath.Join(dir, "Launch.log")
	os.WriteFile(path, []byte("[0.1] Log: hello\n"), 0644)

	select {
	case name := <-h.created:
		if name != "Launch.log" {
			t.Errorf("unexpected created name: %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no create event delivered")
	}
	select {
	case <-h.modified:
	case <-time.After(5 * time.Second):
		t.Fatal("no write event delivered")
	}
}

func TestLogListener_PrimesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Launch.log")
	os.WriteFile(path, nil, 0644)
	h := newRecordingHandler()

	l, err := StartLogListener(dir, path, h)
	if err != nil {
		t.Fatalf("StartLogListener: %v", err)
	}
	defer l.Stop(time.Second)

	select {
	case name := <-h.created:
		if name != "Launch.log" {
			t.Errorf("unexpected primed name: %s", name)
		}
	default:
		t.Fatal("existing file should be primed synchronously")
	}
}

func TestLogListener_HandlerErrorIsReported(t *testing.T) {
	dir := t.TempDir()
	h := newRecordingHandler()
	h.err = ErrNoHandle

	l, err := StartLogListener(dir, "", h)
	if err != nil {
		t.Fatalf("StartLogListener: %v", err)
	}
	defer l.Stop(time.Second)

	path := filepath.Join(dir, "Launch.log")
	os.WriteFile(path, nil, 0644)
	os.WriteFile(path, []byte("x\n"), 0644)

	select {
	case err := <-l.Err():
		if !errors.Is(err, ErrNoHandle) {
			t.Errorf("expected ErrNoHandle, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler error was not reported")
	}
}

func TestLogListener_Stop(t *testing.T) {
	l, err := StartLogListener(t.TempDir(), "", newRecordingHandler())
	if err != nil {
		t.Fatalf("StartLogListener: %v", err)
	}
	if err := l.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
