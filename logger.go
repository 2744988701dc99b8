package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
)

// EventType represents the type of log event
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventRunEnd         EventType = "run_end"
	EventCacheReset     EventType = "cache_reset"
	EventCacheStale     EventType = "cache_stale"
	EventDownloadStart  EventType = "download_start"
	EventDownloadEnd    EventType = "download_end"
	EventExtract        EventType = "extract"
	EventConfigEdit     EventType = "config_edit"
	EventStageInputs    EventType = "stage_inputs"
	EventPhaseStart     EventType = "phase_start"
	EventPhaseEnd       EventType = "phase_end"
	EventLogLine        EventType = "log_line"
	EventDiagnostic     EventType = "diagnostic"
	EventMarkerDetected EventType = "marker_detected"
	EventProcessScan    EventType = "process_scan"
	EventWarning        EventType = "warning"
	EventError          EventType = "error"
)

// Event represents a single log event
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Type      EventType              `json:"type"`
	Phase     string                 `json:"phase,omitempty"`
	Duration  *int64                 `json:"duration,omitempty"` // nanoseconds
	Success   *bool                  `json:"success,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// RunLogger handles logging for a single udktest run
type RunLogger struct {
	file      *os.File
	path      string
	encoder   *json.Encoder
	mu        sync.Mutex
	runNumber int
	phase     Phase
	startTime time.Time
	stateDir  string
	enabled   bool
	config    *LoggingConfig

	phaseStart time.Time
}

// LoggingConfig configures the logging system
type LoggingConfig struct {
	Enabled           bool `json:"enabled"`
	MaxRuns           int  `json:"maxRuns"`
	ConsoleTimestamps bool `json:"consoleTimestamps"`
	// EchoEngineLines prints every engine log line to the console,
	// coloured by severity. Warnings and errors are always printed.
	EchoEngineLines bool `json:"echoEngineLines"`
	// RecordLines stores every engine log line as a log_line event.
	RecordLines bool `json:"recordLines"`
}

// DefaultLoggingConfig returns sensible defaults
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Enabled:           true,
		MaxRuns:           10,
		ConsoleTimestamps: true,
		EchoEngineLines:   false,
		RecordLines:       true,
	}
}

// NewRunLogger creates a new logger for a run
func NewRunLogger(stateDir string, config *LoggingConfig) (*RunLogger, error) {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	logger := &RunLogger{
		stateDir:  stateDir,
		startTime: time.Now(),
		enabled:   config.Enabled,
		config:    config,
	}

	if !config.Enabled {
		return logger, nil
	}

	logsDir := LogsDir(stateDir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	runNumber := nextRunNumber(logsDir)
	logger.runNumber = runNumber

	// Keep room for the run being created
	if config.MaxRuns > 0 {
		rotateOldRuns(logsDir, config.MaxRuns-1)
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("run-%03d.jsonl", runNumber))
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger.file = file
	logger.path = logPath
	logger.encoder = json.NewEncoder(file)

	return logger, nil
}

// Close closes the log file
func (l *RunLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// RunNumber returns the current run number
func (l *RunLogger) RunNumber() int {
	return l.runNumber
}

// LogPath returns the path to the current log file
func (l *RunLogger) LogPath() string {
	return l.path
}

// logEvent is an internal helper that writes an event with all fields
func (l *RunLogger) logEvent(event Event) {
	if l == nil || !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Phase == "" && l.phase != PhaseIdle {
		event.Phase = l.phase.String()
	}

	l.encoder.Encode(event)
}

// RunStart logs the start of a run
func (l *RunLogger) RunStart(tag, root string, inputs int) {
	if l == nil {
		return
	}
	l.logEvent(Event{
		Type: EventRunStart,
		Data: map[string]interface{}{
			"tag":        tag,
			"root":       root,
			"inputs":     inputs,
			"run_number": l.runNumber,
		},
	})
}

// RunEnd logs the end of a run
func (l *RunLogger) RunEnd(success bool, summary string) {
	if l == nil {
		return
	}
	duration := time.Since(l.startTime).Nanoseconds()
	l.logEvent(Event{
		Type:     EventRunEnd,
		Duration: &duration,
		Success:  &success,
		Message:  summary,
	})
}

// CacheReset logs a hard reset of the artifact cache
func (l *RunLogger) CacheReset(dir, reason string) {
	l.logEvent(Event{
		Type:    EventCacheReset,
		Message: reason,
		Data: map[string]interface{}{
			"dir": dir,
		},
	})
}

// CacheStale logs why the cached archive no longer matches the request
func (l *RunLogger) CacheStale(reasons []string) {
	l.logEvent(Event{
		Type: EventCacheStale,
		Data: map[string]interface{}{
			"reasons": reasons,
		},
	})
}

// DownloadStart logs the start of an archive download
func (l *RunLogger) DownloadStart(url, dest string) {
	l.logEvent(Event{
		Type: EventDownloadStart,
		Data: map[string]interface{}{
			"url":  url,
			"dest": dest,
		},
	})
}

// DownloadEnd logs the end of an archive download
func (l *RunLogger) DownloadEnd(url string, bytes int64, durationNs int64, err error) {
	success := err == nil
	data := map[string]interface{}{
		"url":   url,
		"bytes": bytes,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.logEvent(Event{
		Type:     EventDownloadEnd,
		Duration: &durationNs,
		Success:  &success,
		Data:     data,
	})
}

// Extract logs the outcome of staging archive entries
func (l *RunLogger) Extract(archive string, extracted, satisfied int) {
	l.logEvent(Event{
		Type: EventExtract,
		Data: map[string]interface{}{
			"archive":   archive,
			"extracted": extracted,
			"satisfied": satisfied,
		},
	})
}

// ConfigEdit logs an engine config file edit
func (l *RunLogger) ConfigEdit(path, key, value string, changed bool) {
	l.logEvent(Event{
		Type: EventConfigEdit,
		Data: map[string]interface{}{
			"path":    path,
			"key":     key,
			"value":   value,
			"changed": changed,
		},
	})
}

// StageInputs logs the script files copied into the engine tree
func (l *RunLogger) StageInputs(dest string, files []string) {
	l.logEvent(Event{
		Type: EventStageInputs,
		Data: map[string]interface{}{
			"dest":  dest,
			"files": files,
		},
	})
}

// PhaseStart logs the launch of a phase
func (l *RunLogger) PhaseStart(p Phase, cmd string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.phase = p
	l.phaseStart = time.Now()
	l.mu.Unlock()
	l.logEvent(Event{
		Type: EventPhaseStart,
		Data: map[string]interface{}{
			"cmd": cmd,
		},
	})
}

// PhaseEnd logs the end of a phase
func (l *RunLogger) PhaseEnd(res PhaseResult) {
	if l == nil {
		return
	}
	l.mu.Lock()
	duration := time.Since(l.phaseStart).Nanoseconds()
	l.mu.Unlock()
	success := res.ExitCode == 0 && !res.TimedOut
	l.logEvent(Event{
		Type:     EventPhaseEnd,
		Phase:    res.Phase.String(),
		Duration: &duration,
		Success:  &success,
		Data: map[string]interface{}{
			"exit_code": res.ExitCode,
			"timed_out": res.TimedOut,
			"completed": res.Completed,
		},
	})
	l.mu.Lock()
	l.phase = PhaseIdle
	l.mu.Unlock()
}

// LogLine records a consumed engine log line
func (l *RunLogger) LogLine(p Phase, line string) {
	if l == nil || l.config == nil || !l.config.RecordLines {
		return
	}
	l.logEvent(Event{
		Type:    EventLogLine,
		Phase:   p.String(),
		Message: line,
	})
}

// Diagnostic records a warning or error line from the engine log
func (l *RunLogger) Diagnostic(p Phase, sev Severity, line string) {
	l.logEvent(Event{
		Type:    EventDiagnostic,
		Phase:   p.String(),
		Message: line,
		Data: map[string]interface{}{
			"severity": sev.String(),
		},
	})
}

// MarkerDetected logs a detected phase-end sentinel
func (l *RunLogger) MarkerDetected(p Phase, marker string) {
	l.logEvent(Event{
		Type:  EventMarkerDetected,
		Phase: p.String(),
		Data: map[string]interface{}{
			"marker": marker,
		},
	})
}

// ProcessScan logs the engine processes seen by the process scanner
func (l *RunLogger) ProcessScan(procs []ProcessInfo) {
	pids := make([]int32, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	l.logEvent(Event{
		Type: EventProcessScan,
		Data: map[string]interface{}{
			"count": len(procs),
			"pids":  pids,
		},
	})
}

// Warning logs a warning message
func (l *RunLogger) Warning(msg string) {
	l.logEvent(Event{
		Type:    EventWarning,
		Message: msg,
	})
}

// Error logs an error message
func (l *RunLogger) Error(msg string, err error) {
	data := make(map[string]interface{})
	if err != nil {
		data["error"] = err.Error()
	}
	l.logEvent(Event{
		Type:    EventError,
		Message: msg,
		Data:    data,
	})
}

// Console output helpers with timestamps

func (l *RunLogger) timestamps() bool {
	return l != nil && l.config != nil && l.config.ConsoleTimestamps
}

// LogPrint prints a timestamped message to stdout
func (l *RunLogger) LogPrint(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.timestamps() {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s", timestamp, msg)
	} else {
		fmt.Print(msg)
	}
}

// LogPrintln prints a timestamped message with newline to stdout
func (l *RunLogger) LogPrintln(args ...interface{}) {
	msg := fmt.Sprint(args...)
	if l.timestamps() {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s\n", timestamp, msg)
	} else {
		fmt.Println(msg)
	}
}

// EchoLine prints an engine log line coloured by severity.
func (l *RunLogger) EchoLine(p Phase, line string, sev Severity) {
	echoAll := l != nil && l.config != nil && l.config.EchoEngineLines
	if sev == SeverityNone && !echoAll {
		return
	}
	prefix := ""
	if l.timestamps() {
		prefix = "[" + time.Now().Format("15:04:05") + "] "
	}
	prefix += "[" + p.String() + "] "

	switch sev {
	case SeverityError:
		color.Danger.Println(prefix + line)
	case SeverityWarning:
		color.Warn.Println(prefix + line)
	default:
		color.Gray.Println(prefix + line)
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

func isRunFile(name string) bool {
	return strings.HasPrefix(name, "run-") && strings.HasSuffix(name, ".jsonl")
}

// nextRunNumber determines the next run number based on existing logs
func nextRunNumber(logsDir string) int {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return 1
	}

	maxRun := 0
	for _, entry := range entries {
		if entry.IsDir() || !isRunFile(entry.Name()) {
			continue
		}
		if num := extractRunNumber(entry.Name()); num > maxRun {
			maxRun = num
		}
	}

	return maxRun + 1
}

// rotateOldRuns deletes the oldest runs so at most keep remain
func rotateOldRuns(logsDir string, keep int) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return
	}

	var runFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && isRunFile(entry.Name()) {
			runFiles = append(runFiles, entry.Name())
		}
	}

	if len(runFiles) <= keep {
		return
	}

	sort.Slice(runFiles, func(i, j int) bool {
		return extractRunNumber(runFiles[i]) < extractRunNumber(runFiles[j])
	})

	toDelete := len(runFiles) - keep
	for i := 0; i < toDelete; i++ {
		os.Remove(filepath.Join(logsDir, runFiles[i]))
	}
}

// extractRunNumber extracts the run number from a filename like "run-001.jsonl"
func extractRunNumber(filename string) int {
	numStr := strings.TrimPrefix(filename, "run-")
	numStr = strings.TrimSuffix(numStr, ".jsonl")
	num, _ := strconv.Atoi(numStr)
	return num
}

// LogsDir returns the path to the logs directory under the state dir
func LogsDir(stateDir string) string {
	return filepath.Join(stateDir, "logs")
}

// ListRuns returns all run log files, most recent first
func ListRuns(stateDir string) ([]RunSummary, error) {
	logsDir := LogsDir(stateDir)
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunSummary
	for _, entry := range entries {
		if entry.IsDir() || !isRunFile(entry.Name()) {
			continue
		}
		name := entry.Name()
		logPath := filepath.Join(logsDir, name)

		info, err := entry.Info()
		if err != nil {
			continue
		}

		summary := RunSummary{
			RunNumber: extractRunNumber(name),
			LogPath:   logPath,
			FileSize:  info.Size(),
			ModTime:   info.ModTime(),
		}

		if first, last := readFirstLastEvents(logPath); first != nil {
			summary.StartTime = first.Timestamp
			if last != nil && last.Type == EventRunEnd {
				summary.EndTime = &last.Timestamp
				summary.Success = last.Success
				summary.Summary = last.Message
			}
		}

		runs = append(runs, summary)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunNumber > runs[j].RunNumber
	})

	return runs, nil
}

// RunSummary contains summary info about a run
type RunSummary struct {
	RunNumber int
	LogPath   string
	FileSize  int64
	ModTime   time.Time
	StartTime time.Time
	EndTime   *time.Time
	Success   *bool
	Summary   string
}

func readFirstLastEvents(logPath string) (*Event, *Event) {
	events, err := ReadEvents(logPath, nil)
	if err != nil || len(events) == 0 {
		return nil, nil
	}
	return &events[0], &events[len(events)-1]
}

// ReadEvents reads events from a log file with optional filtering
func ReadEvents(logPath string, filter *EventFilter) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadEventsFromReader(file, filter)
}

// ReadEventsFromReader reads events from an io.Reader with optional filtering
func ReadEventsFromReader(r io.Reader, filter *EventFilter) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if filter != nil && !filter.Match(&event) {
			continue
		}

		events = append(events, event)
	}

	return events, scanner.Err()
}

// EventFilter filters events when reading logs
type EventFilter struct {
	EventType EventType
	Phase     string
}

// Match returns true if the event matches the filter
func (f *EventFilter) Match(event *Event) bool {
	if f.EventType != "" && event.Type != f.EventType {
		return false
	}
	if f.Phase != "" && event.Phase != f.Phase {
		return false
	}
	return true
}

// GetRunSummary generates a detailed summary of a run
func GetRunSummary(logPath string) (*DetailedRunSummary, error) {
	events, err := ReadEvents(logPath, nil)
	if err != nil {
		return nil, err
	}

	summary := &DetailedRunSummary{}

	for _, event := range events {
		switch event.Type {
		case EventRunStart:
			summary.StartTime = event.Timestamp
			if data := event.Data; data != nil {
				if t, ok := data["tag"].(string); ok {
					summary.Tag = t
				}
				if r, ok := data["root"].(string); ok {
					summary.Root = r
				}
				if n, ok := data["run_number"].(float64); ok {
					summary.RunNumber = int(n)
				}
			}

		case EventRunEnd:
			summary.EndTime = &event.Timestamp
			summary.Success = event.Success
			summary.Result = event.Message

		case EventCacheStale, EventCacheReset:
			summary.CacheRefreshed = true

		case EventPhaseEnd:
			ps := PhaseSummary{Phase: event.Phase}
			if event.Duration != nil {
				ps.Duration = time.Duration(*event.Duration)
			}
			if event.Data != nil {
				if c, ok := event.Data["exit_code"].(float64); ok {
					ps.ExitCode = int(c)
				}
				ps.TimedOut, _ = event.Data["timed_out"].(bool)
			}
			summary.Phases = append(summary.Phases, ps)

		case EventDiagnostic:
			if sev, _ := event.Data["severity"].(string); sev == SeverityError.String() {
				summary.EngineErrors = append(summary.EngineErrors, event.Message)
			} else {
				summary.EngineWarnings = append(summary.EngineWarnings, event.Message)
			}

		case EventWarning:
			summary.Warnings++

		case EventError:
			summary.Errors++
		}
	}

	if summary.EndTime != nil {
		d := summary.EndTime.Sub(summary.StartTime)
		summary.Duration = &d
	}

	return summary, nil
}

// DetailedRunSummary contains detailed information about a run
type DetailedRunSummary struct {
	RunNumber      int
	Tag            string
	Root           string
	StartTime      time.Time
	EndTime        *time.Time
	Duration       *time.Duration
	Success        *bool
	Result         string
	CacheRefreshed bool
	Phases         []PhaseSummary
	EngineWarnings []string
	EngineErrors   []string
	Warnings       int
	Errors         int
}

// PhaseSummary contains summary info about one engine phase
type PhaseSummary struct {
	Phase    string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}
