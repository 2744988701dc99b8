package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
)

// Fetcher downloads release archives with retries.
type Fetcher struct {
	client *retryablehttp.Client
	// Progress, if set, is called about once per ProgressEvery with the
	// bytes received so far and the expected total (-1 when unknown).
	Progress      func(done, total int64)
	ProgressEvery time.Duration
}

// NewFetcher creates a fetcher that retries up to retries times and bounds
// each attempt by timeout.
func NewFetcher(retries int, timeout time.Duration) *Fetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = retries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return &Fetcher{client: client, ProgressEvery: time.Second}
}

type countingWriter struct {
	n atomic.Int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n.Add(int64(len(p)))
	return len(p), nil
}

// Fetch downloads url to dest through a temp file in the same directory, so
// dest is either absent or complete. Returns the number of bytes written.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid download URL: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download %s: HTTP %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	counter := &countingWriter{}
	stop := f.reportProgress(counter, resp.ContentLength)
	n, copyErr := io.Copy(io.MultiWriter(tmp, counter), resp.Body)
	stop()

	if copyErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to download %s: %w", url, copyErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		tmp.Close()
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to download %s: got %s of %s", url,
			humanize.IBytes(uint64(n)), humanize.IBytes(uint64(resp.ContentLength)))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

func (f *Fetcher) reportProgress(counter *countingWriter, total int64) func() {
	if f.Progress == nil || f.ProgressEvery <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(f.ProgressEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				f.Progress(counter.n.Load(), total)
				return
			case <-ticker.C:
				f.Progress(counter.n.Load(), total)
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// FormatProgress renders download progress for the console.
func FormatProgress(done, total int64) string {
	if total <= 0 {
		return humanize.IBytes(uint64(done))
	}
	pct := float64(done) / float64(total) * 100
	return fmt.Sprintf("%s / %s (%.0f%%)", humanize.IBytes(uint64(done)), humanize.IBytes(uint64(total)), pct)
}
