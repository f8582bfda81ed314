// Package output handles all posture CLI output formatting.
package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Progress writes collection progress to stderr. It implements
// engine.ProgressReporter and is safe for concurrent use by collectors.
type Progress struct {
	w       io.Writer
	verbose bool
	silent  bool
	clock   clockwork.Clock
	mu      sync.Mutex
	start   time.Time
	warned  int
}

// NewProgress creates a progress reporter.
func NewProgress(w io.Writer, verbose, silent bool) *Progress {
	return newProgress(w, verbose, silent, clockwork.NewRealClock())
}

func newProgress(w io.Writer, verbose, silent bool, clock clockwork.Clock) *Progress {
	return &Progress{
		w:       w,
		verbose: verbose,
		silent:  silent,
		clock:   clock,
		start:   clock.Now(),
	}
}

// Stage prints a stage header like "[1/2] Collecting signals for example.com..."
func (p *Progress) Stage(num, total int, msg string) {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s\n", num, total, msg)
}

// Detail prints per-block completion (only in verbose mode).
func (p *Progress) Detail(msg string) {
	if !p.verbose || p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %s\n", msg)
}

// Warn prints a failed block. Warnings show even without --verbose.
func (p *Progress) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warned++
	if p.silent {
		return
	}
	fmt.Fprintf(p.w, "  ! %s\n", msg)
}

// Complete prints the elapsed time and how many blocks failed.
func (p *Progress) Complete() {
	if p.silent {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := p.clock.Since(p.start)
	if p.warned > 0 {
		fmt.Fprintf(p.w, "\nCompleted in %.1fs (%d block(s) failed)\n", elapsed.Seconds(), p.warned)
		return
	}
	fmt.Fprintf(p.w, "\nCompleted in %.1fs\n", elapsed.Seconds())
}
