package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Downloader fetches a URL to a local path.
type Downloader interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// RunReport is the outcome of one build-then-test cycle.
type RunReport struct {
	Build    PhaseResult
	Test     PhaseResult
	Warnings []string
	Errors   []string
	// CacheRefreshed is set when the archive was downloaded this run.
	CacheRefreshed bool
	Err            error
}

// Success reports whether the run produced a passing verdict.
func (r *RunReport) Success() bool {
	return r.Err == nil
}

// ExitCodeSum is the combined exit code of both phases.
func (r *RunReport) ExitCodeSum() int {
	return r.Build.ExitCode + r.Test.ExitCode
}

// Driver sequences one run: refresh the engine package, stage the test
// sources, build, test and judge.
type Driver struct {
	Config     *ResolvedConfig
	Launcher   Launcher
	Downloader Downloader
	Logger     *RunLogger
	Cleanup    *CleanupCoordinator
	// ResolveURL returns the archive URL; defaults to archiveURL.
	ResolveURL func(ctx context.Context, rc *ResolvedConfig) (string, error)

	startPoker func(path string, interval time.Duration) *LogPoker
}

// NewDriver creates a driver that launches the real engine and downloads
// with retries.
func NewDriver(rc *ResolvedConfig, logger *RunLogger, cleanup *CleanupCoordinator) *Driver {
	fetcher := NewFetcher(rc.Config.Download.Retries, time.Duration(rc.Config.Download.Timeout)*time.Second)
	fetcher.Progress = func(done, total int64) {
		logger.LogPrint("  downloaded %s\n", FormatProgress(done, total))
	}
	return &Driver{
		Config:     rc,
		Launcher:   &ExecLauncher{},
		Downloader: fetcher,
		Logger:     logger,
		Cleanup:    cleanup,
		ResolveURL: archiveURL,
	}
}

// workers are the background tasks alive for the phases of a run.
type workers struct {
	watcher  *LogWatcher
	listener *LogListener
	poker    *LogPoker
	scanner  *ProcessScanner
}

// Run performs the full cycle. The returned report is never nil; its Err
// matches the returned error.
func (d *Driver) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}
	err := d.run(ctx, report)
	report.Err = err

	summary := fmt.Sprintf("%d warning(s), %d error(s)", len(report.Warnings), len(report.Errors))
	if err != nil {
		d.Logger.Error("run failed", err)
		summary = err.Error() + "; " + summary
	}
	d.Logger.RunEnd(err == nil, summary)
	return report, err
}

func (d *Driver) run(ctx context.Context, report *RunReport) error {
	rc := d.Config
	cfg := rc.Config

	cache := NewArtifactCache(rc.CacheDir())
	_, reset, err := cache.LoadOrReset()
	if err != nil {
		return err
	}
	if reset {
		d.Logger.CacheReset(cache.Dir(), "no cache record")
	}

	inputs, err := ResolveInputs(rc.ProjectRoot, cfg.Inputs.Glob)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: %s", ErrNoInputFiles, cfg.Inputs.Glob)
	}
	if missing := MissingAuxFiles(rc.ProjectRoot, cfg.Inputs.AuxFiles); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingAuxFiles, strings.Join(missing, ", "))
	}
	d.Logger.RunStart(cfg.Package.Tag, rc.PackageRoot(), len(inputs))

	refreshed, err := d.ensureArchive(ctx, cache)
	if err != nil {
		return err
	}
	report.CacheRefreshed = refreshed

	if err := d.stage(cache); err != nil {
		return err
	}

	changed, err := EnsureEditPackage(rc.EngineConfigPath(), cfg.Inputs.Package)
	if err != nil {
		return err
	}
	d.Logger.ConfigEdit(rc.EngineConfigPath(), editPackagesKey, cfg.Inputs.Package, changed)

	sources := append([]string{}, inputs...)
	for _, aux := range cfg.Inputs.AuxFiles {
		sources = append(sources, rc.abs(aux))
	}
	copied, err := CopyInputs(sources, rc.ClassesDir())
	if err != nil {
		return err
	}
	d.Logger.StageInputs(rc.ClassesDir(), copied)
	d.Logger.LogPrintln(fmt.Sprintf("Staged %d script file(s) into %s", len(copied), rc.ClassesDir()))

	w, err := d.startWorkers()
	if err != nil {
		return err
	}

	phaseErr := d.runPhases(ctx, w, report)
	teardownErr := d.stopWorkers(w)
	report.Warnings = w.watcher.Warnings()
	report.Errors = w.watcher.Errors()

	if err := errors.Join(phaseErr, teardownErr); err != nil {
		return err
	}

	if sum := report.ExitCodeSum(); sum != 0 {
		return fmt.Errorf("%w: %d (build %d, test %d)", ErrExitCodeSum, sum, report.Build.ExitCode, report.Test.ExitCode)
	}
	if len(report.Errors) > 0 {
		return fmt.Errorf("%w: %d error line(s)", ErrErrorsDetected, len(report.Errors))
	}
	return nil
}

// ensureArchive downloads the package archive when the cache is stale and
// drops what the previous archive extracted. Reports whether it downloaded.
func (d *Driver) ensureArchive(ctx context.Context, cache *ArtifactCache) (bool, error) {
	rc := d.Config
	tag := rc.Config.Package.Tag
	archivePath := cache.ArchivePath(archiveFileName(rc))

	if !cache.IsStale(tag, archivePath) {
		return false, nil
	}
	d.Logger.CacheStale(cache.StaleReasons(tag, archivePath))

	resolve := d.ResolveURL
	if resolve == nil {
		resolve = archiveURL
	}
	url, err := resolve(ctx, rc)
	if err != nil {
		return false, err
	}

	d.Logger.LogPrintln(fmt.Sprintf("Downloading %s", url))
	d.Logger.DownloadStart(url, archivePath)
	start := time.Now()
	n, err := d.Downloader.Fetch(ctx, url, archivePath)
	d.Logger.DownloadEnd(url, n, time.Since(start).Nanoseconds(), err)
	if err != nil {
		return false, err
	}

	purged, err := cache.PurgeStale()
	if err != nil {
		return false, err
	}
	if len(purged.KeptDirs) > 0 {
		d.Logger.Warning(fmt.Sprintf("kept %d non-empty director(ies) from the previous package", len(purged.KeptDirs)))
	}
	if err := cache.Rebind(tag, archivePath); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) stage(cache *ArtifactCache) error {
	rc := d.Config
	archivePath := cache.Record().ArchiveIdentity

	arc, err := OpenArchive(archivePath)
	if err != nil {
		return err
	}
	defer arc.Close()

	entries, err := arc.Entries()
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", archivePath, err)
	}
	res, err := Stage(entries, rc.PackageRoot(), cache.Record(), arc)
	if err != nil {
		return err
	}
	d.Logger.Extract(archivePath, len(res.Files), res.Satisfied)
	if len(res.Files) > 0 {
		d.Logger.LogPrintln(fmt.Sprintf("Extracted %d file(s) into %s", len(res.Files), rc.PackageRoot()))
	}
	return cache.ReconcileExtracted(res.Paths())
}

func (d *Driver) startWorkers() (*workers, error) {
	rc := d.Config
	eng := rc.Config.Engine

	w := &workers{watcher: NewLogWatcher(rc.LogPath(), Classifier{FailureMarker: eng.FailureMarker})}
	w.watcher.SetLineHandler(d.onLine)

	listener, err := StartLogListener(filepath.Dir(rc.LogPath()), rc.LogPath(), w.watcher)
	if err != nil {
		return nil, err
	}
	w.listener = listener
	startPoker := d.startPoker
	if startPoker == nil {
		startPoker = StartLogPoker
	}
	w.poker = startPoker(rc.LogPath(), millis(eng.PokeInterval))
	if eng.ScanInterval > 0 {
		image := rc.LaunchSpec(nil).ImageName()
		w.scanner = StartProcessScanner(image, time.Duration(eng.ScanInterval)*time.Second, d.Logger.ProcessScan)
	}

	join := millis(eng.JoinTimeout)
	d.Cleanup.AddStopper(func() { w.listener.Stop(join) })
	d.Cleanup.AddStopper(func() { w.poker.Stop(join) })
	if w.scanner != nil {
		d.Cleanup.AddStopper(func() { w.scanner.Stop(join) })
	}
	return w, nil
}

// runPhases runs build then test. A failed build is fatal; a non-zero test
// exit code is left for the verdict.
func (d *Driver) runPhases(ctx context.Context, w *workers, report *RunReport) error {
	rc := d.Config
	eng := rc.Config.Engine
	coord := &Coordinator{
		Watcher:   w.watcher,
		Launcher:  d.Launcher,
		Timeout:   time.Duration(eng.Timeout) * time.Second,
		ExitGrace: millis(eng.ExitGrace),
		KillGrace: millis(eng.KillGrace),
		Failures:  w.listener.Err(),
		Logger:    d.Logger,
		Cleanup:   d.Cleanup,
	}

	d.Logger.LogPrintln("Building script packages...")
	build, err := coord.RunPhase(ctx, PhaseBuilding, rc.LaunchSpec(eng.BuildArgs))
	report.Build = build
	if err != nil {
		return err
	}

	d.Logger.LogPrintln("Running tests...")
	test, err := coord.RunPhase(ctx, PhaseTesting, rc.LaunchSpec(rc.TestArgs()))
	report.Test = test
	var exitErr *PhaseExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

// stopWorkers stops every worker, each join bounded; any failure to stop
// is returned.
func (d *Driver) stopWorkers(w *workers) error {
	join := millis(d.Config.Config.Engine.JoinTimeout)
	var errs []error
	if err := w.listener.Stop(join); err != nil {
		errs = append(errs, err)
	}
	// A failure raised after the last phase stopped waiting.
	select {
	case err := <-w.listener.Err():
		errs = append(errs, err)
	default:
	}
	if err := w.poker.Stop(join); err != nil {
		errs = append(errs, err)
	}
	if w.scanner != nil && !w.scanner.Stop(join) {
		errs = append(errs, fmt.Errorf("process scanner did not stop within %s", join))
	}
	if err := w.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Driver) onLine(p Phase, line string, cls Classification) {
	d.Logger.LogLine(p, line)
	if cls.Severity != SeverityNone {
		d.Logger.Diagnostic(p, cls.Severity, line)
	}
	if cls.PhaseEnd {
		d.Logger.MarkerDetected(p, line)
	}
	d.Logger.EchoLine(p, line, cls.Severity)
}
