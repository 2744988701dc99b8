package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

const (
	updateCheckInterval = 24 * time.Hour
	releaseSlug         = "scripness/udktest"
)

type updateCheckCache struct {
	LastCheck     time.Time `json:"lastCheck"`
	LatestVersion string    `json:"latestVersion"`
}

// updateNotice holds the result of a background update check.
var updateNotice chan string

// startUpdateCheck kicks off a background goroutine that checks for a newer
// version. Call printUpdateNotice before exiting to display the result.
func startUpdateCheck() {
	if version == "dev" {
		return
	}

	updateNotice = make(chan string, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				// never crash the main process
			}
		}()

		latest, ok := checkForUpdate()
		if ok {
			updateNotice <- latest
		}
		close(updateNotice)
	}()
}

// printUpdateNotice prints a notification if a newer version was found.
// Non-blocking: if the check hasn't finished yet, it skips.
func printUpdateNotice() {
	if updateNotice == nil {
		return
	}
	select {
	case v, ok := <-updateNotice:
		if ok && v != "" {
			os.Stderr.WriteString("\nA new version of udktest is available: v" + v + " (current: v" + version + ")\nRun 'udktest upgrade' to update.\n")
		}
	default:
	}
}

func checkForUpdate() (string, bool) {
	cachePath := updateCheckCachePath()

	if cache, ok := readUpdateCheckCache(cachePath); ok && time.Since(cache.LastCheck) < updateCheckInterval {
		if isNewerVersion(cache.LatestVersion, version) {
			return cache.LatestVersion, true
		}
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	latest, found, err := detectLatestRelease(ctx)
	if err != nil || !found {
		return "", false
	}

	latestVersion := latest.Version()
	writeUpdateCheckCache(cachePath, latestVersion)

	if !isNewerVersion(latestVersion, version) {
		return "", false
	}
	return latestVersion, true
}

func detectLatestRelease(ctx context.Context) (*selfupdate.Release, bool, error) {
	return selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
}

func readUpdateCheckCache(path string) (updateCheckCache, bool) {
	var cache updateCheckCache
	data, err := os.ReadFile(path)
	if err != nil {
		return cache, false
	}
	if json.Unmarshal(data, &cache) != nil {
		return cache, false
	}
	return cache, true
}

// writeUpdateCheckCache records latest as seen now.
func writeUpdateCheckCache(path, latest string) error {
	data, err := json.Marshal(updateCheckCache{LastCheck: time.Now(), LatestVersion: latest})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return AtomicWriteFile(path, data)
}

// isNewerVersion reports whether latest is a higher version than current.
// Unparseable versions are never newer.
func isNewerVersion(latest, current string) bool {
	l, err := semver.NewVersion(latest)
	if err != nil {
		return false
	}
	c, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	return l.GreaterThan(c)
}

func updateCheckCachePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "udktest", "update-check.json")
	}
	return filepath.Join(os.TempDir(), "udktest-update-check.json")
}
