package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "DefaultEngine.ini")

	err := AtomicWriteFile(path, []byte("[Engine.Engine]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(content) != "[Engine.Engine]\n" {
		t.Errorf("unexpected content: %q", string(content))
	}

	// No temp files should be left behind
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWriteFile_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache", "deep", "note.txt")

	if err := AtomicWriteFile(path, []byte("nested")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fileExists(path) {
		t.Error("expected file to exist")
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	AtomicWriteFile(path, []byte("first"))
	if err := AtomicWriteFile(path, []byte("second")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("expected 'second', got '%s'", string(content))
	}
}

func TestAtomicWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".cache.json")

	rec := CacheRecord{PackageVersionTag: "1.0.1", ArchiveIdentity: "/c/UDK-Lite-1.0.1.7z", ExtractedPaths: []string{}}
	if err := AtomicWriteJSON(path, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}

	expected := "{\n  \"packageVersionTag\": \"1.0.1\",\n  \"archiveIdentity\": \"/c/UDK-Lite-1.0.1.7z\",\n  \"extractedPaths\": []\n}\n"
	if string(content) != expected {
		t.Errorf("expected '%s', got '%s'", expected, string(content))
	}
}

func TestAtomicWriteFile_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")

	err := AtomicWriteFile(path, []byte("not json"))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}

	if fileExists(path) {
		t.Error("file should not exist after failed atomic write")
	}
}
