package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

func init() {
	color.NoColor = true
}

func TestTracker_Disabled(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, false, 1)

	tr.BatchStarted(titleid.Target{Category: titleid.Disc4, Prefix: "CUSA"}, 10)
	tr.ProbeCompleted(scanner.Outcome{Kind: scanner.Found})
	tr.BatchFinished(scanner.BatchStats{Prefix: "CUSA"})
	tr.Complete(scanner.RunStats{})

	assert.Zero(t, buf.Len())
}

func TestTracker_RendersBatches(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf, true, 2)

	target := titleid.Target{Category: titleid.PhysicalLegacy, Prefix: "SCUS"}
	tr.BatchStarted(target, 4)
	tr.ProbeStarted(tmdb.Task{})
	tr.ProbeCompleted(scanner.Outcome{Kind: scanner.Found})
	tr.ProbeCompleted(scanner.Outcome{Kind: scanner.NotFound})
	tr.ProbeCompleted(scanner.Outcome{Kind: scanner.TransportError})
	tr.ProbeCompleted(scanner.Outcome{Kind: scanner.NotFound})

	stats := scanner.BatchStats{
		Category:  titleid.PhysicalLegacy,
		Prefix:    "SCUS",
		Attempted: 4,
		Found:     1,
		NotFound:  2,
		Errors:    1,
		Duration:  2 * time.Second,
	}
	tr.BatchFinished(stats)
	tr.Complete(scanner.RunStats{RunID: "run-1", Batches: []scanner.BatchStats{stats}})

	out := buf.String()
	assert.Contains(t, out, "physical-legacy SCUS")
	assert.Contains(t, out, "[1/2] physical-legacy SCUS: 4 probes, 1 found, 1 errors (2s)")
	assert.Contains(t, out, "Scan run-1 completed")
	assert.True(t, strings.Contains(out, "found: 1"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
