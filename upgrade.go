package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"github.com/gookit/color"
)

// upgradeNeeded reports whether the running build should be replaced by
// latest. Development builds always take the release.
func upgradeNeeded(latest, current string) bool {
	if current == "dev" {
		return true
	}
	return isNewerVersion(latest, current)
}

func cmdUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	checkOnly := fs.Bool("check", false, "Only report whether a newer version exists")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Println("Checking for updates...")
	latest, found, err := detectLatestRelease(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to check for updates: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Error: no release of %s for %s/%s\n", releaseSlug, runtime.GOOS, runtime.GOARCH)
		os.Exit(1)
	}
	writeUpdateCheckCache(updateCheckCachePath(), latest.Version())

	if !upgradeNeeded(latest.Version(), version) {
		color.Success.Printf("Already at latest version (v%s)\n", version)
		return
	}
	fmt.Printf("New version available: v%s (current: v%s)\n", latest.Version(), version)
	if *checkOnly {
		return
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to find executable path: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Downloading %s\n", latest.AssetName)
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to update %s: %v\n", exe, err)
		os.Exit(1)
	}

	color.Success.Printf("Upgraded to v%s\n", latest.Version())
}
