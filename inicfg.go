package main

import (
	"bytes"
	"fmt"
	"slices"

	"gopkg.in/ini.v1"
)

const (
	editorEngineSection = "UnrealEd.EditorEngine"
	editPackagesKey     = "+EditPackages"
)

func init() {
	// Engine ini files are written key=value with no padding.
	ini.PrettyFormat = false
	ini.PrettyEqual = false
}

func loadEngineINI(path string) (*ini.File, error) {
	return ini.LoadSources(ini.LoadOptions{
		AllowShadows:             true,
		IgnoreInlineComment:      true,
		IgnoreContinuation:       true,
		SkipUnrecognizableLines:  true,
		KeyValueDelimiters:       "=",
		KeyValueDelimiterOnWrite: "=",
	}, path)
}

// EnsureEditPackage makes sure pkg is listed as an +EditPackages entry of
// the editor engine section in the ini file at path. It reports whether the
// file was changed.
func EnsureEditPackage(path, pkg string) (bool, error) {
	if !fileExists(path) {
		return false, fmt.Errorf("engine config not found: %s", path)
	}
	cfg, err := loadEngineINI(path)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	sec := cfg.Section(editorEngineSection)
	if sec.HasKey(editPackagesKey) {
		key := sec.Key(editPackagesKey)
		if slices.Contains(key.ValueWithShadows(), pkg) {
			return false, nil
		}
		if err := key.AddShadow(pkg); err != nil {
			return false, fmt.Errorf("failed to add %s: %w", editPackagesKey, err)
		}
	} else if _, err := sec.NewKey(editPackagesKey, pkg); err != nil {
		return false, fmt.Errorf("failed to add %s: %w", editPackagesKey, err)
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return false, fmt.Errorf("failed to render %s: %w", path, err)
	}
	if err := AtomicWriteFile(path, buf.Bytes()); err != nil {
		return false, err
	}
	return true, nil
}

// EditPackages returns the +EditPackages entries of the ini file at path.
func EditPackages(path string) ([]string, error) {
	cfg, err := loadEngineINI(path)
	if err != nil {
		return nil, err
	}
	sec, err := cfg.GetSection(editorEngineSection)
	if err != nil || !sec.HasKey(editPackagesKey) {
		return nil, nil
	}
	return sec.Key(editPackagesKey).ValueWithShadows(), nil
}
