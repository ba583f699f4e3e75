// Package report writes a YAML summary of a finished scan.
package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
)

type Report struct {
	RunID        string    `yaml:"run_id"`
	Mode         string    `yaml:"mode"`
	Domain       string    `yaml:"domain"`
	Concurrency  int       `yaml:"concurrency"`
	PeakInFlight int64     `yaml:"peak_in_flight"`
	Categories   []string  `yaml:"categories"`
	StartedAt    time.Time `yaml:"started_at"`
	Duration     string    `yaml:"duration"`
	Totals       Counts    `yaml:"totals"`
	Recording    Recording `yaml:"recording"`
	Batches      []Batch   `yaml:"batches"`
}

type Counts struct {
	Attempted       int64 `yaml:"attempted"`
	Found           int64 `yaml:"found"`
	NotFound        int64 `yaml:"not_found"`
	TransportErrors int64 `yaml:"transport_errors"`
}

type Recording struct {
	Recorded      int64 `yaml:"recorded"`
	EmptyPayloads int64 `yaml:"empty_payloads"`
	StoreFailures int64 `yaml:"store_failures"`
	LogFailures   int64 `yaml:"log_failures"`
	IndexFailures int64 `yaml:"index_failures"`
	FeedFailures  int64 `yaml:"feed_failures"`
}

type Batch struct {
	Category string `yaml:"category"`
	Prefix   string `yaml:"prefix"`
	Counts   `yaml:",inline"`
	Duration string `yaml:"duration"`
}

// Meta carries run settings that RunStats does not.
type Meta struct {
	Mode         string
	Domain       string
	Concurrency  int
	PeakInFlight int64
	Categories   []string
}

func Build(run scanner.RunStats, meta Meta, rec recorder.Stats) *Report {
	totals := run.Totals()

	r := &Report{
		RunID:        run.RunID,
		Mode:         meta.Mode,
		Domain:       meta.Domain,
		Concurrency:  meta.Concurrency,
		PeakInFlight: meta.PeakInFlight,
		Categories:   meta.Categories,
		StartedAt:    run.StartedAt.UTC(),
		Duration:     run.Duration.Round(time.Millisecond).String(),
		Totals:       countsOf(totals),
		Recording: Recording{
			Recorded:      rec.Recorded,
			EmptyPayloads: rec.EmptyPayloads,
			StoreFailures: rec.StoreFailures,
			LogFailures:   rec.LogFailures,
			IndexFailures: rec.IndexFailures,
			FeedFailures:  rec.FeedFailures,
		},
		Batches: make([]Batch, 0, len(run.Batches)),
	}

	for _, b := range run.Batches {
		r.Batches = append(r.Batches, Batch{
			Category: b.Category.String(),
			Prefix:   b.Prefix,
			Counts:   countsOf(b),
			Duration: b.Duration.Round(time.Millisecond).String(),
		})
	}
	return r
}

func countsOf(b scanner.BatchStats) Counts {
	return Counts{
		Attempted:       b.Attempted,
		Found:           b.Found,
		NotFound:        b.NotFound,
		TransportErrors: b.Errors,
	}
}

// Write marshals r to path, creating parent directories.
func Write(fs afero.Fs, path string, r *Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func Read(fs afero.Fs, path string) (*Report, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
