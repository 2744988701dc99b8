package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// CacheRecord is the persisted record of which package is present and which
// paths were produced by extracting it.
type CacheRecord struct {
	PackageVersionTag string   `json:"packageVersionTag"`
	ArchiveIdentity   string   `json:"archiveIdentity"`
	ExtractedPaths    []string `json:"extractedPaths"`
}

// Tracks reports whether an absolute path is recorded as extracted.
func (r *CacheRecord) Tracks(path string) bool {
	return slices.Contains(r.ExtractedPaths, path)
}

// TrackedSet returns the extracted paths as a set for repeated lookups.
func (r *CacheRecord) TrackedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.ExtractedPaths))
	for _, p := range r.ExtractedPaths {
		set[p] = struct{}{}
	}
	return set
}

// ArtifactCache owns the cache directory and its record. Every mutation is
// written to disk before the call returns.
type ArtifactCache struct {
	dir    string
	record *CacheRecord
}

// NewArtifactCache creates a cache rooted at dir. Nothing is read until Load.
func NewArtifactCache(dir string) *ArtifactCache {
	return &ArtifactCache{dir: dir}
}

// Dir returns the cache directory.
func (c *ArtifactCache) Dir() string {
	return c.dir
}

// RecordPath returns the path of the persisted record.
func (c *ArtifactCache) RecordPath() string {
	return filepath.Join(c.dir, ".cache.json")
}

// Record returns the in-memory record, nil before Load or Reset.
func (c *ArtifactCache) Record() *CacheRecord {
	return c.record
}

// Load reads the persisted record. A missing file is ErrCacheNotFound; a file
// that cannot be parsed is ErrCorruptCache and is never reset implicitly.
func (c *ArtifactCache) Load() (*CacheRecord, error) {
	data, err := os.ReadFile(c.RecordPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}

	var rec CacheRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err = dec.Decode(&rec)
	if err == nil {
		if _, tokErr := dec.Token(); tokErr != io.EOF {
			err = errors.New("unexpected data after cache record")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v\n\nDelete '%s' or run 'udktest clean --hard' to force a hard reset",
			ErrCorruptCache, c.RecordPath(), err, c.dir)
	}
	if rec.ExtractedPaths == nil {
		rec.ExtractedPaths = []string{}
	}
	c.record = &rec
	return &rec, nil
}

// Reset wipes the cache directory and writes a fresh empty record.
func (c *ArtifactCache) Reset() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to remove cache directory: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	c.record = &CacheRecord{ExtractedPaths: []string{}}
	return c.save()
}

// LoadOrReset loads the record, performing a hard reset when none exists.
// The returned bool is true when a reset happened.
func (c *ArtifactCache) LoadOrReset() (*CacheRecord, bool, error) {
	rec, err := c.Load()
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrCacheNotFound) {
		return nil, false, err
	}
	if err := c.Reset(); err != nil {
		return nil, false, err
	}
	return c.record, true, nil
}

// ArchivePath returns where the archive downloaded from url is kept.
func (c *ArtifactCache) ArchivePath(url string) string {
	name := url
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return filepath.Join(c.dir, name)
}

// IsStale reports whether the archive must be fetched again. ExtractedPaths
// plays no part in the decision.
func (c *ArtifactCache) IsStale(tag, archivePath string) bool {
	if c.record == nil {
		return true
	}
	if c.record.PackageVersionTag != tag {
		return true
	}
	if c.record.ArchiveIdentity != archivePath {
		return true
	}
	return !fileExists(archivePath)
}

// StaleReasons lists every condition that makes the cache stale.
func (c *ArtifactCache) StaleReasons(tag, archivePath string) []string {
	var reasons []string
	if c.record == nil {
		return []string{"no cache record loaded"}
	}
	if c.record.PackageVersionTag != tag {
		reasons = append(reasons, fmt.Sprintf("cached tag '%s' does not match '%s'", c.record.PackageVersionTag, tag))
	}
	if c.record.ArchiveIdentity != archivePath {
		reasons = append(reasons, fmt.Sprintf("cached archive '%s' does not match '%s'", c.record.ArchiveIdentity, archivePath))
	}
	if !fileExists(archivePath) {
		reasons = append(reasons, fmt.Sprintf("'%s' does not exist", archivePath))
	}
	return reasons
}

// Rebind points the record at a new tag and archive and forgets every
// extracted path. Call PurgeStale first so nothing is orphaned.
func (c *ArtifactCache) Rebind(tag, archivePath string) error {
	if c.record == nil {
		c.record = &CacheRecord{}
	}
	c.record.PackageVersionTag = tag
	c.record.ArchiveIdentity = archivePath
	c.record.ExtractedPaths = []string{}
	return c.save()
}

// ReconcileExtracted merges paths into the record and persists it.
func (c *ArtifactCache) ReconcileExtracted(paths []string) error {
	if c.record == nil {
		c.record = &CacheRecord{}
	}
	seen := make(map[string]bool, len(c.record.ExtractedPaths)+len(paths))
	merged := make([]string, 0, len(c.record.ExtractedPaths)+len(paths))
	for _, p := range append(append([]string{}, c.record.ExtractedPaths...), paths...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)
	c.record.ExtractedPaths = merged
	return c.save()
}

// PurgeResult describes what PurgeStale did.
type PurgeResult struct {
	RemovedFiles []string
	RemovedDirs  []string
	KeptDirs     []string
}

// PurgeStale removes every tracked file, then every tracked directory that
// is empty afterwards. Non-empty directories are left alone.
func (c *ArtifactCache) PurgeStale() (*PurgeResult, error) {
	res := &PurgeResult{}
	if c.record == nil {
		return res, nil
	}

	var dirs []string
	for _, p := range c.record.ExtractedPaths {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			dirs = append(dirs, p)
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return res, fmt.Errorf("failed to remove '%s': %w", p, err)
		}
		res.RemovedFiles = append(res.RemovedFiles, p)
	}

	// Deepest first so a parent can become empty within this pass.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil {
			continue
		}
		if len(entries) > 0 {
			res.KeptDirs = append(res.KeptDirs, d)
			continue
		}
		if err := os.Remove(d); err != nil {
			res.KeptDirs = append(res.KeptDirs, d)
			continue
		}
		res.RemovedDirs = append(res.RemovedDirs, d)
	}
	return res, nil
}

func (c *ArtifactCache) save() error {
	if err := AtomicWriteJSON(c.RecordPath(), c.record); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}
