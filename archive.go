package main

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/ulikunitz/xz"
)

// ArchiveEntry is a single named entry of a package archive.
type ArchiveEntry struct {
	Name string
	Dir  bool
}

// Archive lists and extracts named entries of a package archive.
type Archive interface {
	Entries() ([]ArchiveEntry, error)
	// Extract writes the named entries under dst in a single pass.
	Extract(dst string, names []string) error
	Close() error
}

// OpenArchive opens path with the reader matching its extension.
func OpenArchive(path string) (Archive, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".7z"):
		r, err := sevenzip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open 7z archive: %w", err)
		}
		return &sevenZipArchive{r: r}, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		if !fileExists(path) {
			return nil, fmt.Errorf("archive not found: %s", path)
		}
		return &tarXZArchive{path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
	}
}

// entryName normalizes archive separators to forward slashes.
func entryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimSuffix(name, "/")
}

// safeJoin resolves name under root, rejecting entries that escape it.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(entryName(name)))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeEntry, name)
	}
	return filepath.Join(root, clean), nil
}

func writeEntry(dest string, mode os.FileMode, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if mode.Perm() == 0 {
		mode = 0644
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func nameSet(names []string) map[string]bool {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[entryName(n)] = true
	}
	return want
}

type sevenZipArchive struct {
	r *sevenzip.ReadCloser
}

func (a *sevenZipArchive) Entries() ([]ArchiveEntry, error) {
	entries := make([]ArchiveEntry, 0, len(a.r.File))
	for _, f := range a.r.File {
		entries = append(entries, ArchiveEntry{
			Name: entryName(f.Name),
			Dir:  f.FileInfo().IsDir(),
		})
	}
	return entries, nil
}

func (a *sevenZipArchive) Extract(dst string, names []string) error {
	want := nameSet(names)
	for _, f := range a.r.File {
		name := entryName(f.Name)
		if !want[name] || f.FileInfo().IsDir() {
			continue
		}
		dest, err := safeJoin(dst, name)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		err = writeEntry(dest, f.Mode(), rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}
	return nil
}

func (a *sevenZipArchive) Close() error {
	return a.r.Close()
}

// tarXZArchive streams the archive on every call; tar has no index.
type tarXZArchive struct {
	path string
}

func (a *tarXZArchive) walk(fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create xz reader: %w", err)
	}
	tr := tar.NewReader(xr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

func (a *tarXZArchive) Entries() ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	err := a.walk(func(hdr *tar.Header, _ io.Reader) error {
		switch hdr.Typeflag {
		case tar.TypeDir:
			entries = append(entries, ArchiveEntry{Name: entryName(hdr.Name), Dir: true})
		case tar.TypeReg:
			entries = append(entries, ArchiveEntry{Name: entryName(hdr.Name)})
		}
		return nil
	})
	return entries, err
}

func (a *tarXZArchive) Extract(dst string, names []string) error {
	want := nameSet(names)
	return a.walk(func(hdr *tar.Header, r io.Reader) error {
		name := entryName(hdr.Name)
		if hdr.Typeflag != tar.TypeReg || !want[name] {
			return nil
		}
		dest, err := safeJoin(dst, name)
		if err != nil {
			return err
		}
		if err := writeEntry(dest, os.FileMode(hdr.Mode), r); err != nil {
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
		return nil
	})
}

func (a *tarXZArchive) Close() error {
	return nil
}
