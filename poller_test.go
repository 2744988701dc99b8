package main

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLogPoker_PokesUntilStopped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Launch.log")
	p := StartLogPoker(path, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for p.Pokes() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Pokes() < 2 {
		t.Fatalf("expected at least 2 pokes, got %d", p.Pokes())
	}

	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	after := p.Pokes()
	time.Sleep(20 * time.Millisecond)
	if p.Pokes() != after {
		t.Error("poker kept running after Stop")
	}
}

func TestLogPoker_StopTwice(t *testing.T) {
	p := StartLogPoker(filepath.Join(t.TempDir(), "Launch.log"), time.Hour)
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSignal_RaiseOnce(t *testing.T) {
	s := NewSignal()
	select {
	case <-s.Done():
		t.Fatal("fresh signal should not be raised")
	default:
	}
	if !s.Raise() {
		t.Error("first Raise should report raising")
	}
	if s.Raise() {
		t.Error("second Raise should be a no-op")
	}
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("expected raised signal")
	}
	if !s.Raised() {
		t.Error("expected Raised after Raise")
	}
}
