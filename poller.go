package main

import (
	"context"
	"os"
	"sync/atomic"
	"time"
)

// LogPoker stats the engine log on an interval. The engine buffers its log
// and only flushes once something touches the file.
type LogPoker struct {
	path     string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	pokes    atomic.Int64
}

// StartLogPoker starts poking path every interval until Stop.
func StartLogPoker(path string, interval time.Duration) *LogPoker {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &LogPoker{
		path:     path,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.loop(ctx)
	return p
}

func (p *LogPoker) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			os.Stat(p.path)
			p.pokes.Add(1)
		}
	}
}

// Pokes returns how many times the file was touched.
func (p *LogPoker) Pokes() int64 {
	return p.pokes.Load()
}

// Stop cancels the poker and waits up to timeout for it to exit.
func (p *LogPoker) Stop(timeout time.Duration) error {
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return ErrPokerJoinTimeout
	}
}
