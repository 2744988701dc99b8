package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// NotificationHandler receives file notifications for a watched directory.
type NotificationHandler interface {
	OnCreated(name string) error
	OnModified(name string) error
}

// LogListener delivers fsnotify events for one directory to a handler.
// The first handler error is reported on Err and stops delivery.
type LogListener struct {
	fsw     *fsnotify.Watcher
	handler NotificationHandler
	errc    chan error
	done    chan struct{}
}

// StartLogListener watches dir and dispatches Create and Write events to h.
// When primeFile already exists a create notification is delivered for it
// first, so a log left by an earlier engine start is readable.
func StartLogListener(dir, primeFile string, h NotificationHandler) (*LogListener, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	l := &LogListener{
		fsw:     fsw,
		handler: h,
		errc:    make(chan error, 1),
		done:    make(chan struct{}),
	}

	if primeFile != "" && fileExists(primeFile) {
		if err := h.OnCreated(primeFile); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	go l.loop()
	return l, nil
}

// Err receives the first fatal handler or watcher error.
func (l *LogListener) Err() <-chan error {
	return l.errc
}

func (l *LogListener) loop() {
	defer close(l.done)
	for {
		select {
		case ev, ok := <-l.fsw.Events:
			if !ok {
				return
			}
			if err := l.dispatch(ev); err != nil {
				l.fail(err)
				return
			}
		case err, ok := <-l.fsw.Errors:
			if !ok {
				return
			}
			l.fail(fmt.Errorf("file watcher: %w", err))
			return
		}
	}
}

func (l *LogListener) dispatch(ev fsnotify.Event) error {
	name := filepath.Clean(ev.Name)
	if ev.Has(fsnotify.Create) {
		if err := l.handler.OnCreated(name); err != nil {
			return err
		}
	}
	if ev.Has(fsnotify.Write) {
		if err := l.handler.OnModified(name); err != nil {
			return err
		}
	}
	return nil
}

func (l *LogListener) fail(err error) {
	select {
	case l.errc <- err:
	default:
	}
}

// Stop closes the watcher and waits up to timeout for delivery to end.
func (l *LogListener) Stop(timeout time.Duration) error {
	closeErr := l.fsw.Close()
	select {
	case <-l.done:
	case <-time.After(timeout):
		return ErrWatcherJoinTimeout
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file watcher: %w", closeErr)
	}
	return nil
}
