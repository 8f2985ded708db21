package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progressTracker prints embedding progress for long ingestions. Its Report
// method matches the embedding gateway's progress callback.
type progressTracker struct {
	writer    io.Writer
	startTime time.Time
	total     int
	current   int
	started   bool
	mu        sync.Mutex
}

func newProgressTracker(writer io.Writer) *progressTracker {
	return &progressTracker{writer: writer}
}

// Report records that done of total chunks are embedded. The first call
// starts the clock.
func (p *progressTracker) Report(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.startTime = time.Now()
		p.started = true
	}
	p.total = total
	p.current = min(done, total)
	p.report()
}

// Finish ends the progress line. It prints nothing if no progress was reported.
func (p *progressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	fmt.Fprintln(p.writer)
}

// report prints the current progress. Must be called with lock held.
func (p *progressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rEmbedding: %d/%d chunks (%.1f%%) - %.1f chunks/s",
		p.current, p.total, percentage, rate)
}
