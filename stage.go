package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Extractor performs a bulk extraction of named entries into dst.
type Extractor interface {
	Extract(dst string, names []string) error
}

// StageResult lists the absolute paths produced by a staging pass.
type StageResult struct {
	Files     []string
	Dirs      []string
	Satisfied int
}

// Paths returns files and directories together, ready for ReconcileExtracted.
func (r *StageResult) Paths() []string {
	paths := make([]string, 0, len(r.Files)+len(r.Dirs))
	paths = append(paths, r.Files...)
	return append(paths, r.Dirs...)
}

// Stage extracts the entries that the cache record does not already account
// for. An entry is satisfied only when its destination exists and is tracked
// in rec; an untracked file on disk is extracted again.
func Stage(entries []ArchiveEntry, outputRoot string, rec *CacheRecord, ex Extractor) (*StageResult, error) {
	root, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}
	if rec == nil {
		rec = &CacheRecord{}
	}

	tracked := rec.TrackedSet()
	res := &StageResult{}
	var fileNames []string
	for _, e := range entries {
		dest, err := safeJoin(root, e.Name)
		if err != nil {
			return nil, err
		}
		if dest == root {
			continue
		}
		if _, ok := tracked[dest]; ok && fileExists(dest) {
			res.Satisfied++
			continue
		}
		if e.Dir || dirExists(dest) {
			res.Dirs = append(res.Dirs, dest)
			continue
		}
		res.Files = append(res.Files, dest)
		fileNames = append(fileNames, e.Name)
	}

	for _, d := range res.Dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	if len(fileNames) == 0 {
		return res, nil
	}
	if err := ex.Extract(root, fileNames); err != nil {
		return nil, fmt.Errorf("failed to extract %d entries to '%s': %w", len(fileNames), root, err)
	}
	return res, nil
}
