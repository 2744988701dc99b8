package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LineHandler observes every complete line the watcher consumes.
type LineHandler func(phase Phase, line string, cls Classification)

// LogWatcher tails the engine's append-only log. Notifications arrive via
// OnCreated and OnModified; phases are switched by the coordinator through
// SetPhase. Warnings and errors are owned here and handed out as copies.
type LogWatcher struct {
	mu         sync.Mutex
	path       string
	name       string
	classifier Classifier
	phase      Phase
	offset     int64
	warnings   []string
	errors     []string
	fh         *os.File
	signals    map[Phase]*Signal
	onLine     LineHandler
}

// NewLogWatcher creates a watcher for the log file at path.
func NewLogWatcher(path string, classifier Classifier) *LogWatcher {
	return &LogWatcher{
		path:       path,
		name:       filepath.Base(path),
		classifier: classifier,
		signals:    make(map[Phase]*Signal),
	}
}

// Path returns the watched log file path.
func (w *LogWatcher) Path() string {
	return w.path
}

// SetLineHandler registers fn to be called for every consumed line.
func (w *LogWatcher) SetLineHandler(fn LineHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onLine = fn
}

// SetPhase switches the phase, resets the read offset and arms a fresh
// completion signal for p. Lines read after it returns belong to p.
func (w *LogWatcher) SetPhase(p Phase) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phase = p
	w.offset = 0
	if p != PhaseIdle {
		w.signals[p] = NewSignal()
	}
}

// Phase returns the current phase.
func (w *LogWatcher) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Offset returns the byte offset of the next unread line.
func (w *LogWatcher) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// Signal returns the completion signal of the current activation of p.
func (w *LogWatcher) Signal(p Phase) *Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	sig, ok := w.signals[p]
	if !ok {
		sig = NewSignal()
		w.signals[p] = sig
	}
	return sig
}

// Done is closed when the sentinel of the current activation of p is seen.
func (w *LogWatcher) Done(p Phase) <-chan struct{} {
	return w.Signal(p).Done()
}

// Warnings returns a copy of the warning lines seen so far.
func (w *LogWatcher) Warnings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.warnings...)
}

// Errors returns a copy of the error lines seen so far.
func (w *LogWatcher) Errors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.errors...)
}

func (w *LogWatcher) tracks(name string) bool {
	return filepath.Base(name) == w.name
}

// OnCreated (re)opens the read handle when the tracked file is created,
// closing any previous handle. Other names are ignored.
func (w *LogWatcher) OnCreated(name string) error {
	if !w.tracks(name) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fh != nil {
		w.fh.Close()
		w.fh = nil
	}
	fh, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	w.fh = fh
	return nil
}

// OnModified consumes every complete line appended since the last read.
// A trailing line without a newline is left for the next notification.
func (w *LogWatcher) OnModified(name string) error {
	if !w.tracks(name) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fh == nil {
		return fmt.Errorf("%w: %s modified before it was created", ErrNoHandle, w.path)
	}

	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		// Log cleared.
		w.offset = 0
		return nil
	}
	if size < w.offset {
		w.offset = 0
	}

	if _, err := w.fh.Seek(w.offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	r := bufio.NewReader(w.fh)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read log file: %w", err)
		}
		w.offset += int64(len(line))
		w.consume(line)
	}
}

// consume classifies one line. Caller holds mu.
func (w *LogWatcher) consume(raw string) {
	line := strings.ToValidUTF8(strings.TrimRight(raw, "\r\n"), "\uFFFD")
	cls := w.classifier.Classify(line, w.phase)

	switch cls.Severity {
	case SeverityError:
		w.errors = append(w.errors, line)
	case SeverityWarning:
		w.warnings = append(w.warnings, line)
	}

	if w.onLine != nil {
		w.onLine(w.phase, line, cls)
	}

	if cls.PhaseEnd {
		if sig, ok := w.signals[w.phase]; ok {
			sig.Raise()
		}
	}
}

// Close releases the read handle.
func (w *LogWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fh == nil {
		return nil
	}
	err := w.fh.Close()
	w.fh = nil
	return err
}
