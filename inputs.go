package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolveInputs expands pattern (which may use **) relative to projectRoot
// and returns the matching regular files as sorted absolute paths.
func ResolveInputs(projectRoot, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(projectRoot, pattern)
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		files = append(files, abs)
	}
	sort.Strings(files)
	return files, nil
}

// MissingAuxFiles returns the auxiliary files that do not exist.
func MissingAuxFiles(projectRoot string, aux []string) []string {
	var missing []string
	for _, f := range aux {
		p := f
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectRoot, p)
		}
		if !fileExists(p) {
			missing = append(missing, f)
		}
	}
	return missing
}

// CopyInputs copies files flat into dstDir, creating it as needed, and
// returns the destination paths.
func CopyInputs(files []string, dstDir string) ([]string, error) {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dstDir, err)
	}
	var copied []string
	for _, src := range files {
		dst := filepath.Join(dstDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return copied, fmt.Errorf("failed to copy %s: %w", src, err)
		}
		copied = append(copied, dst)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
