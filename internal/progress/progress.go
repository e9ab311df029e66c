// Package progress prints a periodic status line while a batch runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"hogsim/internal/collector"
)

// DefaultInterval is how often the status line is refreshed.
const DefaultInterval = 2 * time.Second

// Source supplies the metrics shown on the status line.
type Source interface {
	Compute() *collector.Metrics
}

// Progress redraws one status line on an interval.
type Progress struct {
	startTime time.Time
	source    Source
	total     int
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

// NewProgress reports on source for a batch of total personas.
func NewProgress(source Source, total int, quiet bool) *Progress {
	return &Progress{
		source:   source,
		total:    total,
		interval: DefaultInterval,
		quiet:    quiet,
		output:   os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

// Line renders the current status.
func (p *Progress) Line(elapsed time.Duration) string {
	m := p.source.Compute()
	elapsed = elapsed.Round(time.Second)
	return fmt.Sprintf("[%02d:%02d] Personas: %d/%d | Actions: %d (skipped %d, failed %d) | Events: %d",
		int(elapsed.Minutes()), int(elapsed.Seconds())%60,
		m.Sessions.Total, p.total, m.Actions, m.Skipped, m.Failed, m.Emitted)
}

func (p *Progress) printProgress() {
	line := p.Line(time.Since(p.startTime))
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\r", line)
	p.mu.Unlock()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
