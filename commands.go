package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
)

const stateGitignore = `# udktest state
udktest.lock
*.tmp
cache/
logs/
`

// writeStateGitignore creates the state directory and its .gitignore.
func writeStateGitignore(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", stateDir, err)
	}
	return os.WriteFile(filepath.Join(stateDir, ".gitignore"), []byte(stateGitignore), 0644)
}

func loadConfigOrExit() *ResolvedConfig {
	cfg, err := LoadConfig(GetProjectRoot())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdInit(args []string) {
	force := false
	for _, arg := range args {
		if arg == "-f" || arg == "--force" {
			force = true
		}
	}

	cwd, _ := os.Getwd()
	projectRoot := findGitRoot(cwd)
	configPath := ConfigPath(projectRoot)
	stateDir := StateDir(projectRoot)

	if fileExists(configPath) && !force {
		fmt.Fprintf(os.Stderr, "%s already exists at %s\n", configFileName, configPath)
		fmt.Fprintln(os.Stderr, "Use --force to overwrite.")
		os.Exit(1)
	}

	if err := WriteDefaultConfig(projectRoot); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	if err := writeStateGitignore(stateDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg := DefaultConfig()
	fmt.Println("Initialized udktest:")
	fmt.Printf("  Package: UDK-Lite %s -> %s\n", cfg.Package.Tag, cfg.Package.Root)
	fmt.Printf("  Inputs: %s (package %s)\n", cfg.Inputs.Glob, cfg.Inputs.Package)
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Data dir: %s\n", stateDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s if your generated scripts live elsewhere\n", configFileName)
	fmt.Println("  2. Run 'udktest doctor' to check the environment")
	fmt.Println("  3. Run 'udktest run' to build and test")
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	timeout := fs.Int("timeout", 0, "Seconds to wait for each phase (overrides config)")
	tag := fs.String("tag", "", "UDK-Lite release tag (overrides config)")
	echo := fs.Bool("echo", false, "Echo every engine log line")
	fs.Parse(args)

	cfg := loadConfigOrExit()
	if *timeout > 0 {
		cfg.Config.Engine.Timeout = *timeout
	}
	if *tag != "" {
		cfg.Config.Package.Tag = *tag
	}
	if *echo {
		cfg.Config.Logging.EchoEngineLines = true
	}

	if issues := CheckReadiness(cfg); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "Error: project is not ready to run")
		fmt.Fprintln(os.Stderr, "")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  ✗ %s\n", issue)
		}
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run 'udktest doctor' for a full environment check.")
		os.Exit(1)
	}
	if warnings := CheckReadinessWarnings(cfg); len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  Warning: %s\n", w)
		}
		fmt.Fprintln(os.Stderr, "")
	}

	report, err := runTests(cfg)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runTests wires the driver to a run log, the project lock and signal
// cleanup, then runs one cycle.
func runTests(cfg *ResolvedConfig) (*RunReport, error) {
	cleanup := NewCleanupCoordinator()

	logger, err := NewRunLogger(StateDir(cfg.ProjectRoot), cfg.Config.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	cleanup.SetLogger(logger)
	defer logger.Close()

	lock := NewLockFile(cfg.ProjectRoot)
	if err := lock.Acquire(cfg.Config.Package.Tag, cfg.PackageRoot()); err != nil {
		return nil, err
	}
	cleanup.SetLock(lock)
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		if _, ok := <-sigChan; !ok {
			return
		}
		fmt.Println("\n\nInterrupted. Cleaning up and exiting...")
		cancel()
		cleanup.Cleanup()
		os.Exit(130)
	}()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(" udktest - UnrealScript build and test")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf(" Package: UDK-Lite %s\n", cfg.Config.Package.Tag)
	fmt.Printf(" Root: %s\n", cfg.PackageRoot())
	fmt.Printf(" Inputs: %s\n", cfg.Config.Inputs.Glob)
	fmt.Printf(" Timeout: %ds per phase\n", cfg.Config.Engine.Timeout)
	if logger.LogPath() != "" {
		fmt.Printf(" Run: #%d (logs: %s)\n", logger.RunNumber(), logger.LogPath())
	}
	fmt.Println(strings.Repeat("=", 60))

	return NewDriver(cfg, logger, cleanup).Run(ctx)
}

func printReport(r *RunReport) {
	fmt.Println()
	fmt.Println(strings.Repeat("-", 60))
	printPhaseResult(r.Build)
	printPhaseResult(r.Test)
	fmt.Printf("Warnings: %d\n", len(r.Warnings))
	fmt.Printf("Errors: %d\n", len(r.Errors))
	for _, line := range r.Errors {
		fmt.Printf("  ✗ %s\n", line)
	}

	var exitErr *PhaseExitError
	switch {
	case r.Success():
		fmt.Println("Result: PASSED")
	case errors.As(r.Err, &exitErr):
		fmt.Printf("Result: FAILED (%s)\n", exitErr)
	default:
		fmt.Println("Result: FAILED")
	}
}

func printPhaseResult(res PhaseResult) {
	if res.Phase == PhaseIdle {
		return
	}
	status := "✓"
	detail := fmt.Sprintf("exit %d", res.ExitCode)
	switch {
	case res.TimedOut:
		status = "✗"
		detail = "timed out, " + detail
	case res.ExitCode != 0:
		status = "✗"
	}
	fmt.Printf("%s %-8s %s (%s)\n", status, res.Phase, detail, FormatDuration(res.Duration))
}

func cmdStatus(args []string) {
	cfg := loadConfigOrExit()
	tag := cfg.Config.Package.Tag

	fmt.Printf("Project: %s\n", cfg.ProjectRoot)
	fmt.Printf("Package: UDK-Lite %s\n", tag)
	fmt.Printf("Root: %s\n", cfg.PackageRoot())
	fmt.Println()

	cache := NewArtifactCache(cfg.CacheDir())
	rec, err := cache.Load()
	switch {
	case errors.Is(err, ErrCacheNotFound):
		fmt.Println("Cache: empty (the package is downloaded on the next run)")
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	default:
		fmt.Printf("Cache: %s\n", cache.Dir())
		fmt.Printf("  Tag: %s\n", rec.PackageVersionTag)
		size := "missing"
		if info, err := os.Stat(rec.ArchiveIdentity); err == nil {
			size = humanize.IBytes(uint64(info.Size()))
		}
		fmt.Printf("  Archive: %s (%s)\n", filepath.Base(rec.ArchiveIdentity), size)
		fmt.Printf("  Extracted paths: %d\n", len(rec.ExtractedPaths))
		archivePath := cache.ArchivePath(archiveFileName(cfg))
		if reasons := cache.StaleReasons(tag, archivePath); len(reasons) > 0 {
			fmt.Println("  State: stale")
			for _, r := range reasons {
				fmt.Printf("    └─ %s\n", r)
			}
		} else {
			fmt.Println("  State: current")
		}
	}

	inputs, err := ResolveInputs(cfg.ProjectRoot, cfg.Config.Inputs.Glob)
	fmt.Println()
	if err != nil {
		fmt.Printf("Inputs: %v\n", err)
	} else {
		fmt.Printf("Inputs: %d file(s) matching %s\n", len(inputs), cfg.Config.Inputs.Glob)
	}

	if lock, _ := ReadLockStatus(cfg.ProjectRoot); lock != nil && isProcessAlive(lock.PID) {
		fmt.Printf("\n! udktest is currently running (PID %d, tag %s)\n", lock.PID, lock.Tag)
	}

	runs, _ := ListRuns(StateDir(cfg.ProjectRoot))
	if len(runs) > 0 {
		last := runs[0]
		result := "in progress"
		if last.Success != nil {
			result = "failed"
			if *last.Success {
				result = "passed"
			}
		}
		fmt.Printf("\nLast run: #%d %s (%s)\n", last.RunNumber, result, last.StartTime.Format("2006-01-02 15:04:05"))
		if last.Summary != "" {
			fmt.Printf("  └─ %s\n", last.Summary)
		}
	}
}

func cmdClean(args []string) {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	hard := fs.Bool("hard", false, "Delete the whole cache, including the downloaded archive")
	fs.Parse(args)

	cfg := loadConfigOrExit()

	lock := NewLockFile(cfg.ProjectRoot)
	if err := lock.Acquire(cfg.Config.Package.Tag, cfg.PackageRoot()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	cache := NewArtifactCache(cfg.CacheDir())
	if *hard {
		if err := cache.Reset(); err != nil {
			lock.Release()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cache reset: %s\n", cache.Dir())
		return
	}

	res, err := cleanExtracted(cache)
	if err != nil {
		lock.Release()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Use 'udktest clean --hard' to reset the cache.")
		os.Exit(1)
	}
	fmt.Printf("Removed %d file(s) and %d directory(ies)\n", len(res.RemovedFiles), len(res.RemovedDirs))
	if len(res.KeptDirs) > 0 {
		fmt.Printf("Kept %d non-empty directory(ies)\n", len(res.KeptDirs))
	}
}

// cleanExtracted removes everything the cached archive extracted and
// forgets it, keeping the archive itself.
func cleanExtracted(cache *ArtifactCache) (*PurgeResult, error) {
	rec, _, err := cache.LoadOrReset()
	if err != nil {
		return nil, err
	}
	res, err := cache.PurgeStale()
	if err != nil {
		return res, err
	}
	return res, cache.Rebind(rec.PackageVersionTag, rec.ArchiveIdentity)
}

func cmdPs(args []string) {
	fs := flag.NewFlagSet("ps", flag.ExitOnError)
	kill := fs.Bool("kill", false, "Kill every running engine process")
	fs.Parse(args)

	cfg := loadConfigOrExit()
	image := cfg.LaunchSpec(nil).ImageName()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *kill {
		n, err := KillProcessesByName(ctx, image)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Killed %d %s process(es)\n", n, image)
		return
	}

	procs, err := FindProcessesByName(ctx, image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(procs) == 0 {
		fmt.Printf("No %s processes running.\n", image)
		return
	}
	fmt.Printf("%-8s %-20s %s\n", "PID", "STARTED", "COMMAND")
	for _, p := range procs {
		started := ""
		if !p.StartedAt.IsZero() {
			started = humanize.Time(p.StartedAt)
		}
		cmdline := p.Cmdline
		if cmdline == "" {
			cmdline = p.Name
		}
		fmt.Printf("%-8d %-20s %s\n", p.PID, started, cmdline)
	}
}

func cmdDoctor(args []string) {
	projectRoot := GetProjectRoot()
	issues := 0

	fmt.Println("udktest Environment Check")
	fmt.Println()

	if fileExists(ConfigPath(projectRoot)) {
		fmt.Printf("✓ %s found\n", configFileName)
	} else {
		fmt.Printf("○ %s: not found, using defaults (run 'udktest init')\n", configFileName)
	}

	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		fmt.Printf("✗ config: %v\n", err)
		issues++
	} else {
		fmt.Printf("✓ Package tag: %s\n", cfg.Config.Package.Tag)
		if url := cfg.ReleaseURL(); url != "" {
			fmt.Printf("✓ Release URL: %s\n", url)
		} else {
			fmt.Printf("✓ Release repo: %s (asset %s)\n", cfg.Config.Package.ReleaseRepo, expandTag(cfg.Config.Package.AssetName, cfg.Config.Package.Tag))
		}

		for _, issue := range CheckReadiness(cfg) {
			fmt.Printf("✗ %s\n", issue)
			issues++
		}
		for _, w := range CheckReadinessWarnings(cfg) {
			fmt.Printf("○ %s\n", w)
		}

		if fileExists(cfg.EngineConfigPath()) {
			pkgs, err := EditPackages(cfg.EngineConfigPath())
			switch {
			case err != nil:
				fmt.Printf("✗ %s: %v\n", filepath.Base(cfg.EngineConfigPath()), err)
				issues++
			case slices.Contains(pkgs, cfg.Config.Inputs.Package):
				fmt.Printf("✓ %s lists %s\n", editPackagesKey, cfg.Config.Inputs.Package)
			default:
				fmt.Printf("○ %s does not list %s yet (added on the next run)\n", editPackagesKey, cfg.Config.Inputs.Package)
			}
		}

		if _, err := NewArtifactCache(cfg.CacheDir()).Load(); err != nil && !errors.Is(err, ErrCacheNotFound) {
			fmt.Printf("✗ cache: %v\n", err)
			issues++
		}
	}

	stateDir := StateDir(projectRoot)
	if fi, statErr := os.Stat(stateDir); statErr == nil && fi.IsDir() {
		testFile := filepath.Join(stateDir, ".write-test")
		if f, writeErr := os.Create(testFile); writeErr != nil {
			fmt.Printf("✗ %s directory not writable\n", stateDirName)
			issues++
		} else {
			f.Close()
			os.Remove(testFile)
			fmt.Printf("✓ %s directory writable\n", stateDirName)
		}
	}

	lock, _ := ReadLockStatus(projectRoot)
	if lock != nil {
		fmt.Println()
		if isProcessAlive(lock.PID) {
			fmt.Printf("! udktest is currently running (PID %d, tag %s)\n", lock.PID, lock.Tag)
		} else {
			fmt.Printf("○ Stale lock found (PID %d no longer running)\n", lock.PID)
		}
	}

	fmt.Println()
	if issues > 0 {
		fmt.Printf("%d issue(s) found.\n", issues)
		os.Exit(1)
	} else {
		fmt.Println("All checks passed.")
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	runNum := fs.Int("run", 0, "Show specific run number (default: latest)")
	listRuns := fs.Bool("list", false, "List all runs with summary")
	tail := fs.Int("tail", 50, "Show last N events")
	follow := fs.Bool("follow", false, "Follow log in real-time")
	fs.BoolVar(follow, "f", false, "Follow log in real-time (shorthand)")
	eventType := fs.String("type", "", "Filter by event type")
	phase := fs.String("phase", "", "Filter by phase (building, testing)")
	jsonOutput := fs.Bool("json", false, "Output raw JSONL")
	summaryMode := fs.Bool("summary", false, "Show run summary only")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: udktest logs [options]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  udktest logs                      # Latest run, last 50 events")
		fmt.Fprintln(os.Stderr, "  udktest logs --list               # List all runs")
		fmt.Fprintln(os.Stderr, "  udktest logs --run 2              # Show run #2")
		fmt.Fprintln(os.Stderr, "  udktest logs --follow             # Watch current run live")
		fmt.Fprintln(os.Stderr, "  udktest logs --type diagnostic    # Engine warnings and errors")
		fmt.Fprintln(os.Stderr, "  udktest logs --phase testing      # Events of the test phase")
		fmt.Fprintln(os.Stderr, "  udktest logs --summary            # Quick summary of latest run")
	}
	fs.Parse(args)

	projectRoot := GetProjectRoot()
	runs, err := ListRuns(StateDir(projectRoot))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading logs: %v\n", err)
		os.Exit(1)
	}

	if len(runs) == 0 {
		fmt.Println("No run logs found.")
		fmt.Println("Run 'udktest run' to create logs.")
		return
	}

	if *listRuns {
		fmt.Print("Runs:\n\n")
		for _, run := range runs {
			status := "○"
			if run.Success != nil {
				if *run.Success {
					status = "✓"
				} else {
					status = "✗"
				}
			}

			duration := ""
			if run.EndTime != nil {
				d := run.EndTime.Sub(run.StartTime)
				duration = fmt.Sprintf(" (%s)", FormatDuration(d))
			}

			fmt.Printf("  %s Run #%d - %s%s\n", status, run.RunNumber,
				run.StartTime.Format("2006-01-02 15:04:05"), duration)
			if run.Summary != "" {
				fmt.Printf("    └─ %s\n", run.Summary)
			}
		}
		return
	}

	var targetRun *RunSummary
	if *runNum > 0 {
		for i := range runs {
			if runs[i].RunNumber == *runNum {
				targetRun = &runs[i]
				break
			}
		}
		if targetRun == nil {
			fmt.Fprintf(os.Stderr, "Run #%d not found\n", *runNum)
			os.Exit(1)
		}
	} else {
		targetRun = &runs[0]
	}

	if *summaryMode {
		printRunSummary(targetRun.LogPath)
		return
	}

	filter := &EventFilter{EventType: EventType(*eventType), Phase: *phase}

	if *follow {
		followLog(targetRun.LogPath, filter, *jsonOutput)
		return
	}

	printEvents(os.Stdout, targetRun.LogPath, *tail, filter, *jsonOutput)
}

func printRunSummary(logPath string) {
	summary, err := GetRunSummary(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run #%d - %s\n", summary.RunNumber, summary.StartTime.Format("2006-01-02 15:04:05"))
	if summary.Tag != "" {
		fmt.Printf("Package: UDK-Lite %s\n", summary.Tag)
	}
	if summary.Duration != nil {
		fmt.Printf("Duration: %s\n", FormatDuration(*summary.Duration))
	}
	if summary.Success != nil {
		result := "FAILED"
		if *summary.Success {
			result = "PASSED"
		}
		fmt.Printf("Result: %s\n", result)
	}
	if summary.Result != "" {
		fmt.Printf("Summary: %s\n", summary.Result)
	}
	if summary.CacheRefreshed {
		fmt.Println("Cache: refreshed")
	}

	fmt.Println()
	fmt.Printf("Phases: %d\n", len(summary.Phases))
	for _, p := range summary.Phases {
		status := "✓"
		detail := fmt.Sprintf("exit %d", p.ExitCode)
		if p.TimedOut {
			status = "✗"
			detail = "timed out"
		} else if p.ExitCode != 0 {
			status = "✗"
		}
		fmt.Printf("  %s %s: %s (%s)\n", status, p.Phase, detail, FormatDuration(p.Duration))
	}

	if len(summary.EngineErrors) > 0 {
		fmt.Println()
		fmt.Println("Engine errors:")
		for _, line := range summary.EngineErrors {
			fmt.Printf("  ✗ %s\n", line)
		}
	}

	fmt.Println()
	fmt.Printf("Engine warnings: %d\n", len(summary.EngineWarnings))
	fmt.Printf("Engine errors: %d\n", len(summary.EngineErrors))
	fmt.Printf("Warnings: %d\n", summary.Warnings)
	fmt.Printf("Errors: %d\n", summary.Errors)
}

func printEvents(w io.Writer, logPath string, tailN int, filter *EventFilter, jsonOutput bool) {
	events, err := ReadEvents(logPath, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
		os.Exit(1)
	}

	if tailN > 0 && len(events) > tailN {
		events = events[len(events)-tailN:]
	}

	for _, e := range events {
		if jsonOutput {
			data, _ := json.Marshal(e)
			fmt.Fprintln(w, string(data))
		} else {
			printEvent(w, &e)
		}
	}
}

func eventDuration(e *Event) string {
	if e.Duration == nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", FormatDuration(time.Duration(*e.Duration)))
}

func eventStatus(e *Event) string {
	if e.Success != nil && *e.Success {
		return "✓"
	}
	return "✗"
}

func printEvent(w io.Writer, e *Event) {
	timestamp := e.Timestamp.Format("15:04:05")

	switch e.Type {
	case EventRunStart:
		tag, _ := e.Data["tag"].(string)
		fmt.Fprintf(w, "[%s] === Run started: UDK-Lite %s ===\n", timestamp, tag)

	case EventRunEnd:
		result := "failed"
		if e.Success != nil && *e.Success {
			result = "success"
		}
		fmt.Fprintf(w, "[%s] === Run ended: %s ===\n", timestamp, result)
		if e.Message != "" {
			fmt.Fprintf(w, "         %s\n", e.Message)
		}

	case EventCacheReset:
		fmt.Fprintf(w, "[%s] ↺ Cache reset: %s\n", timestamp, e.Message)

	case EventCacheStale:
		fmt.Fprintf(w, "[%s] ↺ Cache stale\n", timestamp)
		if reasons, ok := e.Data["reasons"].([]interface{}); ok {
			for _, r := range reasons {
				fmt.Fprintf(w, "         %v\n", r)
			}
		}

	case EventDownloadStart:
		url, _ := e.Data["url"].(string)
		fmt.Fprintf(w, "[%s] → Download: %s\n", timestamp, url)

	case EventDownloadEnd:
		size := ""
		if n, ok := e.Data["bytes"].(float64); ok {
			size = " " + humanize.IBytes(uint64(n))
		}
		fmt.Fprintf(w, "[%s] %s Download complete%s%s\n", timestamp, eventStatus(e), size, eventDuration(e))
		if errMsg, ok := e.Data["error"].(string); ok {
			fmt.Fprintf(w, "         %s\n", errMsg)
		}

	case EventExtract:
		extracted, _ := e.Data["extracted"].(float64)
		satisfied, _ := e.Data["satisfied"].(float64)
		fmt.Fprintf(w, "[%s] Extracted %d entries (%d already present)\n", timestamp, int(extracted), int(satisfied))

	case EventConfigEdit:
		key, _ := e.Data["key"].(string)
		value, _ := e.Data["value"].(string)
		changed, _ := e.Data["changed"].(bool)
		state := "unchanged"
		if changed {
			state = "added"
		}
		fmt.Fprintf(w, "[%s] Config %s=%s (%s)\n", timestamp, key, value, state)

	case EventStageInputs:
		files, _ := e.Data["files"].([]interface{})
		dest, _ := e.Data["dest"].(string)
		fmt.Fprintf(w, "[%s] Staged %d script file(s) into %s\n", timestamp, len(files), dest)

	case EventPhaseStart:
		cmd, _ := e.Data["cmd"].(string)
		fmt.Fprintf(w, "[%s] ─── Phase %s: %s ───\n", timestamp, e.Phase, cmd)

	case EventPhaseEnd:
		code, _ := e.Data["exit_code"].(float64)
		detail := fmt.Sprintf("exit %d", int(code))
		if timedOut, _ := e.Data["timed_out"].(bool); timedOut {
			detail = "timed out, " + detail
		}
		fmt.Fprintf(w, "[%s] %s Phase %s complete: %s%s\n", timestamp, eventStatus(e), e.Phase, detail, eventDuration(e))

	case EventMarkerDetected:
		marker, _ := e.Data["marker"].(string)
		fmt.Fprintf(w, "[%s]   ◆ %s\n", timestamp, marker)

	case EventDiagnostic:
		sev, _ := e.Data["severity"].(string)
		mark := "!"
		if sev == SeverityError.String() {
			mark = "✗"
		}
		fmt.Fprintf(w, "[%s]   %s %s\n", timestamp, mark, e.Message)

	case EventLogLine:
		fmt.Fprintf(w, "[%s]   %s\n", timestamp, e.Message)

	case EventProcessScan:
		count, _ := e.Data["count"].(float64)
		fmt.Fprintf(w, "[%s] Engine processes: %d\n", timestamp, int(count))

	case EventWarning:
		fmt.Fprintf(w, "[%s] ! Warning: %s\n", timestamp, e.Message)

	case EventError:
		fmt.Fprintf(w, "[%s] ✗ Error: %s\n", timestamp, e.Message)
		if errMsg, ok := e.Data["error"].(string); ok {
			fmt.Fprintf(w, "         %s\n", errMsg)
		}

	default:
		fmt.Fprintf(w, "[%s] %s", timestamp, e.Type)
		if e.Phase != "" {
			fmt.Fprintf(w, " [%s]", e.Phase)
		}
		if e.Message != "" {
			fmt.Fprintf(w, ": %s", e.Message)
		}
		fmt.Fprintln(w)
	}
}

func followLog(logPath string, filter *EventFilter, jsonOutput bool) {
	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	file.Seek(0, io.SeekEnd)

	fmt.Printf("Following %s (Ctrl+C to stop)\n\n", logPath)

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if !filter.Match(&event) {
			continue
		}

		if jsonOutput {
			fmt.Println(line)
		} else {
			printEvent(os.Stdout, &event)
		}
	}
}
