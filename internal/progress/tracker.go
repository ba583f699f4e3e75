package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// Tracker renders a progress line for the running prefix batch and a summary
// line per finished batch. It implements scanner.Observer.
type Tracker struct {
	out          io.Writer
	enabled      bool
	totalBatches int
	interval     time.Duration

	mu          sync.Mutex
	startTime   time.Time
	batchStart  time.Time
	batchesDone int
	current     titleid.Target
	batchTotal  int
	lastRender  time.Time

	done  atomic.Int64
	found atomic.Int64
	errs  atomic.Int64
}

// New creates a tracker for a run of totalBatches prefix batches.
func New(out io.Writer, enabled bool, totalBatches int) *Tracker {
	return &Tracker{
		out:          out,
		enabled:      enabled,
		totalBatches: totalBatches,
		interval:     250 * time.Millisecond,
		startTime:    time.Now(),
	}
}

func (t *Tracker) BatchStarted(target titleid.Target, total int) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = target
	t.batchTotal = total
	t.batchStart = time.Now()
	t.done.Store(0)
	t.found.Store(0)
	t.errs.Store(0)
	t.render()
}

func (t *Tracker) ProbeStarted(tmdb.Task) {}

func (t *Tracker) ProbeCompleted(o scanner.Outcome) {
	if !t.enabled {
		return
	}

	t.done.Add(1)
	switch o.Kind {
	case scanner.Found:
		t.found.Add(1)
	case scanner.TransportError:
		t.errs.Add(1)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Since(t.lastRender) >= t.interval {
		t.render()
	}
}

func (t *Tracker) BatchFinished(stats scanner.BatchStats) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.batchesDone++
	fmt.Fprint(t.out, "\r\033[K")

	found := fmt.Sprintf("%d found", stats.Found)
	if stats.Found > 0 {
		found = color.GreenString(found)
	}
	errs := fmt.Sprintf("%d errors", stats.Errors)
	if stats.Errors > 0 {
		errs = color.YellowString(errs)
	}

	fmt.Fprintf(t.out, "%s %s %s: %d probes, %s, %s (%s)\n",
		color.CyanString("[%d/%d]", t.batchesDone, t.totalBatches),
		stats.Category,
		stats.Prefix,
		stats.Attempted,
		found,
		errs,
		formatDuration(stats.Duration),
	)
}

// render draws the progress line for the running batch. Caller holds mu.
func (t *Tracker) render() {
	t.lastRender = time.Now()

	done := int(t.done.Load())
	pct := 0
	if t.batchTotal > 0 {
		pct = done * 100 / t.batchTotal
	}

	barWidth := 30
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	eta := "calculating..."
	if done > 0 && done < t.batchTotal {
		elapsed := time.Since(t.batchStart)
		remaining := elapsed * time.Duration(t.batchTotal-done) / time.Duration(done)
		eta = formatDuration(remaining)
	}

	fmt.Fprintf(t.out, "\r\033[K[%s] %3d%% | %s %s | batch %d/%d | found %d | errors %d | ETA: %s",
		bar,
		pct,
		t.current.Category,
		t.current.Prefix,
		t.batchesDone+1,
		t.totalBatches,
		t.found.Load(),
		t.errs.Load(),
		eta,
	)
}

// Complete prints the run summary.
func (t *Tracker) Complete(run scanner.RunStats) {
	if !t.enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	totals := run.Totals()
	fmt.Fprint(t.out, "\r\033[K")
	fmt.Fprintf(t.out, "\n%s Scan %s completed in %s\n",
		color.GreenString("✓"),
		run.RunID,
		formatDuration(time.Since(t.startTime)),
	)
	fmt.Fprintf(t.out, "  prefixes: %d  probes: %d  found: %d  not found: %d  errors: %d\n\n",
		len(run.Batches),
		totals.Attempted,
		totals.Found,
		totals.NotFound,
		totals.Errors,
	)
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
