package main

import (
	"regexp"
	"strings"
)

// Phase is the stage of a run the log watcher attributes lines to.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseTesting
)

func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "building"
	case PhaseTesting:
		return "testing"
	default:
		return "idle"
	}
}

// Severity of a classified engine log line.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "none"
	}
}

// Phase-end sentinels. Substring matches; the engine controls line framing.
const (
	BuildEndSentinel = "Log file closed"
	TestEndSentinel  = "Exit: Exiting"
)

// DefaultFailureMarker lets test code fail a run through a non-error category.
const DefaultFailureMarker = "UMB_TEST_FAILURE"

var (
	logLinePattern     = regexp.MustCompile(`^\[[\d.]+\]\s(\w+):(.*)$`)
	outOfBoundsPattern = regexp.MustCompile(`Accessed array '[^']*' out of bounds`)
)

// Classification is the verdict for a single log line.
type Classification struct {
	Severity Severity
	PhaseEnd bool
}

// Classifier classifies engine log lines. The zero value uses
// DefaultFailureMarker.
type Classifier struct {
	FailureMarker string
}

var defaultClassifier = Classifier{FailureMarker: DefaultFailureMarker}

// Classify classifies line with the default failure marker.
func Classify(line string, phase Phase) Classification {
	return defaultClassifier.Classify(line, phase)
}

// Classify returns the severity of line and whether it ends phase. Rules are
// applied in order: error category, failure marker, array out of bounds,
// warning category. Error and warning categories with an empty message are
// banner lines and are not counted.
func (c Classifier) Classify(line string, phase Phase) Classification {
	line = strings.TrimRight(line, "\r\n")
	var cls Classification

	if m := logLinePattern.FindStringSubmatch(line); m != nil {
		category := strings.ToLower(m[1])
		msg := m[2]
		marker := c.FailureMarker
		if marker == "" {
			marker = DefaultFailureMarker
		}

		switch {
		case category == "error" && msg != "":
			cls.Severity = SeverityError
		case strings.Contains(msg, marker):
			cls.Severity = SeverityError
		case outOfBoundsPattern.MatchString(msg):
			cls.Severity = SeverityError
		case category == "warning" && msg != "":
			cls.Severity = SeverityWarning
		}
	}

	switch phase {
	case PhaseBuilding:
		cls.PhaseEnd = strings.Contains(line, BuildEndSentinel)
	case PhaseTesting:
		cls.PhaseEnd = strings.Contains(line, TestEndSentinel)
	}
	return cls
}
