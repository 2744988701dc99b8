package main

import "sync"

// Signal is a one-shot, level-triggered completion signal. Once raised it
// stays raised and every waiter observes it.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Raise raises the signal. It returns true only for the call that raised it.
func (s *Signal) Raise() bool {
	raised := false
	s.once.Do(func() {
		close(s.ch)
		raised = true
	})
	return raised
}

// Done is closed once the signal is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// Raised reports whether the signal has been raised.
func (s *Signal) Raised() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
