package main

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo describes a running process matching the engine image.
type ProcessInfo struct {
	PID       int32
	Name      string
	Cmdline   string
	StartedAt time.Time
}

func sameImage(a, b string) bool {
	a = strings.TrimSuffix(strings.ToLower(a), ".exe")
	b = strings.TrimSuffix(strings.ToLower(b), ".exe")
	return a != "" && a == b
}

// FindProcessesByName lists running processes whose image matches name.
func FindProcessesByName(ctx context.Context, name string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var found []ProcessInfo
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || !sameImage(n, name) {
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: n}
		if cmdline, err := p.CmdlineWithContext(ctx); err == nil {
			info.Cmdline = cmdline
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.StartedAt = time.UnixMilli(ms)
		}
		found = append(found, info)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].PID < found[j].PID })
	return found, nil
}

// KillProcessesByName kills every process whose image matches name and
// returns how many were signalled.
func KillProcessesByName(ctx context.Context, name string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	killed := 0
	for _, p := range procs {
		n, err := p.NameWithContext(ctx)
		if err != nil || !sameImage(n, name) {
			continue
		}
		if err := p.KillWithContext(ctx); err == nil {
			killed++
		}
	}
	return killed, nil
}

// ProcessScanner periodically lists engine processes for operator visibility.
type ProcessScanner struct {
	name     string
	interval time.Duration
	onScan   func([]ProcessInfo)
	cancel   context.CancelFunc
	done     chan struct{}
}

// StartProcessScanner scans for name every interval, passing results to onScan.
func StartProcessScanner(name string, interval time.Duration, onScan func([]ProcessInfo)) *ProcessScanner {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ProcessScanner{
		name:     name,
		interval: interval,
		onScan:   onScan,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.loop(ctx)
	return s
}

func (s *ProcessScanner) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			procs, err := FindProcessesByName(ctx, s.name)
			if err != nil || ctx.Err() != nil {
				continue
			}
			s.onScan(procs)
		}
	}
}

// Stop cancels the scanner and waits up to timeout for it to exit.
func (s *ProcessScanner) Stop(timeout time.Duration) bool {
	s.cancel()
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
