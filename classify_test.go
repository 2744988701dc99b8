package main

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		phase Phase
		want  Classification
	}{
		{"error with message", "[1.23] Error:bad thing", PhaseBuilding, Classification{Severity: SeverityError}},
		{"error without message", "[1.23] Error:", PhaseBuilding, Classification{Severity: SeverityNone}},
		{"error case insensitive", "[0004.51] ERROR: Missing class", PhaseTesting, Classification{Severity: SeverityError}},
		{"warning with message", "[0012.00] Warning: Unused local variable", PhaseBuilding, Classification{Severity: SeverityWarning}},
		{"warning without message", "[0012.00] Warning:", PhaseBuilding, Classification{Severity: SeverityNone}},
		{"failure marker in log category", "[0100.10] ScriptLog: UMB_TEST_FAILURE TestBools", PhaseTesting, Classification{Severity: SeverityError}},
		{"failure marker beats warning", "[0100.10] Warning: UMB_TEST_FAILURE", PhaseTesting, Classification{Severity: SeverityError}},
		{"array out of bounds", "[0050.02] ScriptWarning: Accessed array 'Bytes' out of bounds (12/8)", PhaseTesting, Classification{Severity: SeverityError}},
		{"plain log line", "[0001.00] Log: Executing Class UnrealEd.MakeCommandlet", PhaseBuilding, Classification{Severity: SeverityNone}},
		{"unframed line", "Warning: no timestamp", PhaseBuilding, Classification{Severity: SeverityNone}},
		{"build sentinel", "[1.23] Log: Log file closed", PhaseBuilding, Classification{PhaseEnd: true}},
		{"build sentinel unframed", "Log file closed, 01/01/24 12:00:00", PhaseBuilding, Classification{PhaseEnd: true}},
		{"test sentinel", "[0200.00] Exit: Exiting.", PhaseTesting, Classification{PhaseEnd: true}},
		{"test sentinel during build", "[0200.00] Exit: Exiting.", PhaseBuilding, Classification{}},
		{"build sentinel during test", "[1.23] Log: Log file closed", PhaseTesting, Classification{}},
		{"sentinel when idle", "[1.23] Log: Log file closed", PhaseIdle, Classification{}},
		{"crlf line", "[1.23] Error:bad thing\r\n", PhaseBuilding, Classification{Severity: SeverityError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.line, tt.phase)
			if got != tt.want {
				t.Errorf("Classify(%q, %s) = %+v, want %+v", tt.line, tt.phase, got, tt.want)
			}
		})
	}
}

func TestClassifier_CustomMarker(t *testing.T) {
	c := Classifier{FailureMarker: "!!FAIL!!"}

	if got := c.Classify("[1.0] ScriptLog: !!FAIL!! case 3", PhaseTesting); got.Severity != SeverityError {
		t.Errorf("expected custom marker to classify as error, got %s", got.Severity)
	}
	if got := c.Classify("[1.0] ScriptLog: UMB_TEST_FAILURE", PhaseTesting); got.Severity != SeverityNone {
		t.Errorf("default marker should not apply when overridden, got %s", got.Severity)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseBuilding.String() != "building" || PhaseTesting.String() != "testing" || PhaseIdle.String() != "idle" {
		t.Error("unexpected phase names")
	}
}
