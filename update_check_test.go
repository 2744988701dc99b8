package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{"2.0.8", "2.0.6", true},
		{"2.0.6", "2.0.8", false},
		{"2.0.8", "2.0.8", false},
		{"2.1.0", "2.0.9", true},
		{"3.0.0", "2.9.9", true},
		{"v2.0.8", "2.0.6", true},
		{"2.0.8", "v2.0.6", true},
		{"v2.0.8", "v2.0.8", false},
		{"2.0.10", "2.0.9", true},
		{"2.0.9", "2.0.10", false},
	}

	for _, tt := range tests {
		t.Run(tt.latest+"_vs_"+tt.current, func(t *testing.T) {
			got := isNewerVersion(tt.latest, tt.current)
			if got != tt.want {
				t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
			}
		})
	}
}

func TestUpdateCheckCachePath(t *testing.T) {
	path := updateCheckCachePath()
	if !strings.HasSuffix(path, "udktest/update-check.json") && !strings.HasSuffix(path, "udktest-update-check.json") {
		t.Errorf("expected path ending with udktest/update-check.json or udktest-update-check.json, got '%s'", path)
	}
}

func TestIsNewerVersion_Unparseable(t *testing.T) {
	if isNewerVersion("", "1.0.0") {
		t.Error("empty version should never be newer")
	}
	if isNewerVersion("1.0.0", "dev") {
		t.Error("dev build should not be compared")
	}
}

func TestUpdateCheckCache_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "udktest", "update-check.json")

	if _, ok := readUpdateCheckCache(path); ok {
		t.Fatal("expected no cache before the first write")
	}
	if err := writeUpdateCheckCache(path, "1.2.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cache, ok := readUpdateCheckCache(path)
	if !ok {
		t.Fatal("expected cache after write")
	}
	if cache.LatestVersion != "1.2.0" {
		t.Errorf("expected latest 1.2.0, got '%s'", cache.LatestVersion)
	}
	if time.Since(cache.LastCheck) > time.Minute {
		t.Errorf("expected a fresh check time, got %s", cache.LastCheck)
	}
}

func TestUpdateCheckCache_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update-check.json")
	os.WriteFile(path, []byte("{"), 0644)

	if _, ok := readUpdateCheckCache(path); ok {
		t.Error("corrupt cache should be ignored")
	}
}

func TestUpgradeNeeded(t *testing.T) {
	tests := []struct {
		latest  string
		current string
		want    bool
	}{
		{"1.1.0", "1.0.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.1.0", false},
		{"1.0.0", "dev", true},
	}
	for _, tt := range tests {
		if got := upgradeNeeded(tt.latest, tt.current); got != tt.want {
			t.Errorf("upgradeNeeded(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}
