package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
)

const (
	configFileName = "udktest.config.json"
	stateDirName   = ".udktest"

	defaultTag        = "1.0.1"
	defaultRoot       = "./UDK-Lite/"
	defaultReleaseURL = "https://github.com/tuokri/UDK-Lite/releases/download/{tag}/UDK-Lite-{tag}.7z"
	defaultInputGlob  = "cmake-build-debug/generated/*.uc"
	defaultPackage    = "UMBTests"
	defaultTimeout    = 300
)

// Environment overrides, named as the engine test scripts have always named them.
const (
	envTimeout    = "UDK_TEST_TIMEOUT"
	envTag        = "UDK_LITE_TAG"
	envRoot       = "UDK_LITE_ROOT"
	envReleaseURL = "UDK_LITE_RELEASE_URL"
	envInputGlob  = "USCRIPT_MESSAGE_FILES"
)

// PackageConfig locates the engine package release and where it is staged.
type PackageConfig struct {
	Tag  string `json:"tag"`
	Root string `json:"root"`
	// ReleaseURL may contain {tag}. When empty the asset is looked up on
	// ReleaseRepo's release for Tag.
	ReleaseURL  string `json:"releaseUrl,omitempty"`
	ReleaseRepo string `json:"releaseRepo,omitempty"`
	AssetName   string `json:"assetName,omitempty"` // may contain {tag}
}

// InputsConfig selects the script sources compiled into the test package.
type InputsConfig struct {
	Glob    string `json:"glob"`
	Package string `json:"package"`
	// AuxFiles are hand-written sources copied alongside the generated
	// ones; every one must exist.
	AuxFiles []string `json:"auxFiles,omitempty"`
}

// EngineConfig configures how the engine is launched and observed.
type EngineConfig struct {
	Executable    string   `json:"executable"` // relative to package root
	Log           string   `json:"log"`        // relative to package root
	Config        string   `json:"config"`     // relative to package root
	BuildArgs     []string `json:"buildArgs"`
	TestArgs      []string `json:"testArgs"` // {package} is substituted
	Shell         bool     `json:"shell,omitempty"`
	Timeout       int      `json:"timeout"`       // seconds per phase
	PokeInterval  int      `json:"pokeInterval"`  // milliseconds
	ExitGrace     int      `json:"exitGrace"`     // milliseconds
	KillGrace     int      `json:"killGrace"`     // milliseconds
	JoinTimeout   int      `json:"joinTimeout"`   // milliseconds, poker join
	FailureMarker string   `json:"failureMarker"` // error token in test output
	// Wrapper runs the executable through another program, e.g. ["wine"].
	Wrapper []string `json:"wrapper,omitempty"`
	// ScanInterval in seconds; 0 disables the engine process scan.
	ScanInterval int `json:"scanInterval,omitempty"`
}

// DownloadConfig configures the archive fetcher.
type DownloadConfig struct {
	Retries int `json:"retries"`
	Timeout int `json:"timeout"` // seconds per attempt
}

// UDKTestConfig is the main configuration loaded from udktest.config.json
type UDKTestConfig struct {
	Package  PackageConfig   `json:"package"`
	Inputs   InputsConfig    `json:"inputs"`
	Engine   EngineConfig    `json:"engine"`
	Download *DownloadConfig `json:"download,omitempty"`
	Logging  *LoggingConfig  `json:"logging,omitempty"`
}

// ResolvedConfig is the fully resolved configuration
type ResolvedConfig struct {
	ProjectRoot string
	Config      UDKTestConfig
}

// ConfigPath returns the path to udktest.config.json
func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, configFileName)
}

// StateDir returns the directory holding the cache, logs and lock.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, stateDirName)
}

// CacheDir returns the artifact cache directory.
func (rc *ResolvedConfig) CacheDir() string {
	return filepath.Join(StateDir(rc.ProjectRoot), "cache")
}

// PackageRoot returns the absolute engine package root.
func (rc *ResolvedConfig) PackageRoot() string {
	return rc.abs(rc.Config.Package.Root)
}

// EnginePath returns the absolute path to the engine executable.
func (rc *ResolvedConfig) EnginePath() string {
	return filepath.Join(rc.PackageRoot(), filepath.FromSlash(rc.Config.Engine.Executable))
}

// LogPath returns the absolute path to the engine log.
func (rc *ResolvedConfig) LogPath() string {
	return filepath.Join(rc.PackageRoot(), filepath.FromSlash(rc.Config.Engine.Log))
}

// EngineConfigPath returns the absolute path to the engine ini file.
func (rc *ResolvedConfig) EngineConfigPath() string {
	return filepath.Join(rc.PackageRoot(), filepath.FromSlash(rc.Config.Engine.Config))
}

// ClassesDir returns where input scripts are copied.
func (rc *ResolvedConfig) ClassesDir() string {
	return filepath.Join(rc.PackageRoot(), "Development", "Src", rc.Config.Inputs.Package, "Classes")
}

// ReleaseURL returns the configured release URL with {tag} expanded.
func (rc *ResolvedConfig) ReleaseURL() string {
	return expandTag(rc.Config.Package.ReleaseURL, rc.Config.Package.Tag)
}

// LaunchSpec builds the engine launch for one phase.
func (rc *ResolvedConfig) LaunchSpec(args []string) LaunchSpec {
	spec := LaunchSpec{
		Command: rc.EnginePath(),
		Args:    args,
		Dir:     filepath.Dir(rc.EnginePath()),
		Shell:   rc.Config.Engine.Shell,
	}
	if w := rc.Config.Engine.Wrapper; len(w) > 0 {
		spec.Image = filepath.Base(spec.Command)
		spec.Command = w[0]
		spec.Args = append(append(append([]string{}, w[1:]...), rc.EnginePath()), args...)
	}
	return spec
}

// TestArgs returns the test phase arguments with {package} expanded.
func (rc *ResolvedConfig) TestArgs() []string {
	args := make([]string, len(rc.Config.Engine.TestArgs))
	for i, a := range rc.Config.Engine.TestArgs {
		args[i] = strings.ReplaceAll(a, "{package}", rc.Config.Inputs.Package)
	}
	return args
}

func (rc *ResolvedConfig) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(rc.ProjectRoot, filepath.FromSlash(p))
}

func expandTag(s, tag string) string {
	return strings.ReplaceAll(s, "{tag}", tag)
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// LoadConfig loads udktest.config.json, then applies .env and environment
// overrides. A missing config file is not an error: the defaults describe
// the stock UDK-Lite setup.
func LoadConfig(projectRoot string) (*ResolvedConfig, error) {
	var cfg UDKTestConfig

	data, err := os.ReadFile(ConfigPath(projectRoot))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", configFileName, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	lookup, err := envLookup(projectRoot)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &ResolvedConfig{
		ProjectRoot: projectRoot,
		Config:      cfg,
	}, nil
}

// envLookup resolves a variable from the process environment first, then
// from the project's .env file. An empty process value counts as unset.
func envLookup(projectRoot string) (func(string) (string, bool), error) {
	dotenv := map[string]string{}
	envFile := filepath.Join(projectRoot, ".env")
	if fileExists(envFile) {
		m, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("invalid .env: %w", err)
		}
		dotenv = m
	}
	return func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func applyEnvOverrides(cfg *UDKTestConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(envTimeout); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a number of seconds, got %q", envTimeout, v)
		}
		cfg.Engine.Timeout = n
	}
	if v, ok := lookup(envTag); ok && v != "" {
		cfg.Package.Tag = v
	}
	if v, ok := lookup(envRoot); ok && v != "" {
		cfg.Package.Root = v
	}
	if v, ok := lookup(envReleaseURL); ok && v != "" {
		cfg.Package.ReleaseURL = v
	}
	if v, ok := lookup(envInputGlob); ok && v != "" {
		cfg.Inputs.Glob = v
	}
	return nil
}

func applyDefaults(cfg *UDKTestConfig) {
	if cfg.Package.Tag == "" {
		cfg.Package.Tag = defaultTag
	}
	if cfg.Package.Root == "" {
		cfg.Package.Root = defaultRoot
	}
	if cfg.Package.ReleaseURL == "" && cfg.Package.ReleaseRepo == "" {
		cfg.Package.ReleaseURL = defaultReleaseURL
	}
	if cfg.Package.AssetName == "" {
		cfg.Package.AssetName = "UDK-Lite-{tag}.7z"
	}
	if cfg.Inputs.Glob == "" {
		cfg.Inputs.Glob = defaultInputGlob
	}
	if cfg.Inputs.Package == "" {
		cfg.Inputs.Package = defaultPackage
	}
	if cfg.Engine.Executable == "" {
		cfg.Engine.Executable = "Binaries/Win64/UDK.exe"
	}
	if cfg.Engine.Log == "" {
		cfg.Engine.Log = "UDKGame/Logs/Launch.log"
	}
	if cfg.Engine.Config == "" {
		cfg.Engine.Config = "UDKGame/Config/DefaultEngine.ini"
	}
	if cfg.Engine.BuildArgs == nil {
		cfg.Engine.BuildArgs = []string{"make", "-useunpublished", "-log"}
	}
	if cfg.Engine.TestArgs == nil {
		cfg.Engine.TestArgs = []string{"server", "Entry?Mutator={package}.{package}Mutator", "-UNATTENDED", "-log"}
	}
	if cfg.Engine.Timeout <= 0 {
		cfg.Engine.Timeout = defaultTimeout
	}
	if cfg.Engine.PokeInterval <= 0 {
		cfg.Engine.PokeInterval = 1000
	}
	if cfg.Engine.ExitGrace <= 0 {
		cfg.Engine.ExitGrace = 5000
	}
	if cfg.Engine.KillGrace <= 0 {
		cfg.Engine.KillGrace = 5000
	}
	if cfg.Engine.JoinTimeout <= 0 {
		cfg.Engine.JoinTimeout = 5000
	}
	if cfg.Engine.FailureMarker == "" {
		cfg.Engine.FailureMarker = DefaultFailureMarker
	}
	if cfg.Download == nil {
		cfg.Download = &DownloadConfig{}
	}
	if cfg.Download.Retries <= 0 {
		cfg.Download.Retries = 4
	}
	if cfg.Download.Timeout <= 0 {
		cfg.Download.Timeout = 60
	}
	if cfg.Logging == nil {
		cfg.Logging = DefaultLoggingConfig()
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *UDKTestConfig) error {
	if _, err := semver.NewVersion(cfg.Package.Tag); err != nil {
		return fmt.Errorf("package.tag %q is not a version: %w", cfg.Package.Tag, err)
	}
	if cfg.Package.ReleaseURL == "" && cfg.Package.ReleaseRepo == "" {
		return fmt.Errorf("package.releaseUrl or package.releaseRepo is required")
	}
	if cfg.Package.ReleaseRepo != "" && strings.Count(cfg.Package.ReleaseRepo, "/") != 1 {
		return fmt.Errorf("package.releaseRepo must be owner/name, got %q", cfg.Package.ReleaseRepo)
	}
	if strings.ContainsAny(cfg.Inputs.Package, `/\ `) {
		return fmt.Errorf("inputs.package must be a plain name, got %q", cfg.Inputs.Package)
	}
	return nil
}

// DefaultConfig returns the stock UDK-Lite configuration.
func DefaultConfig() UDKTestConfig {
	var cfg UDKTestConfig
	applyDefaults(&cfg)
	return cfg
}

// findGitRoot finds the git root from a starting directory
func findGitRoot(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// GetProjectRoot returns the project root: the nearest directory holding a
// config file, else the git root, else cwd.
func GetProjectRoot() string {
	cwd, _ := os.Getwd()
	for dir := cwd; ; {
		if fileExists(ConfigPath(dir)) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return findGitRoot(cwd)
}

// isCommandAvailable checks if a command is available in PATH
func isCommandAvailable(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// WriteDefaultConfig writes a default udktest.config.json
func WriteDefaultConfig(projectRoot string) error {
	return AtomicWriteJSON(ConfigPath(projectRoot), DefaultConfig())
}

// CheckReadiness validates that the project can run. Returns a list of
// issues; an empty list means ready.
func CheckReadiness(rc *ResolvedConfig) []string {
	var issues []string
	cfg := rc.Config

	inputs, err := ResolveInputs(rc.ProjectRoot, cfg.Inputs.Glob)
	if err != nil {
		issues = append(issues, fmt.Sprintf("inputs.glob: %v", err))
	} else if len(inputs) == 0 {
		issues = append(issues, fmt.Sprintf("inputs.glob %q matches no files", cfg.Inputs.Glob))
	}

	if missing := MissingAuxFiles(rc.ProjectRoot, cfg.Inputs.AuxFiles); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("inputs.auxFiles missing: %s", strings.Join(missing, ", ")))
	}

	if cfg.Engine.Shell {
		shell := "sh"
		if isWindows() {
			shell = "cmd"
		}
		if !isCommandAvailable(shell) {
			issues = append(issues, fmt.Sprintf("engine.shell is set but '%s' is not in PATH", shell))
		}
	}

	if cfg.Package.ReleaseURL != "" && !strings.HasPrefix(rc.ReleaseURL(), "http") {
		issues = append(issues, fmt.Sprintf("package.releaseUrl is not an http(s) URL: %s", rc.ReleaseURL()))
	}

	return issues
}

// CheckReadinessWarnings returns non-blocking warnings about the environment.
func CheckReadinessWarnings(rc *ResolvedConfig) []string {
	var warnings []string
	if !isWindows() && len(rc.Config.Engine.Wrapper) == 0 {
		warnings = append(warnings, "UDK.exe is a Windows binary; on this platform set engine.wrapper, e.g. [\"wine\"]")
	}
	if w := rc.Config.Engine.Wrapper; len(w) > 0 && !isCommandAvailable(w[0]) {
		warnings = append(warnings, fmt.Sprintf("engine.wrapper: '%s' not found in PATH", w[0]))
	}
	if !fileExists(rc.EnginePath()) {
		warnings = append(warnings, fmt.Sprintf("engine not staged yet: %s (it is extracted on the first run)", rc.EnginePath()))
	}
	return warnings
}
