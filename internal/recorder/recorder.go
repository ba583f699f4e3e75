// Package recorder persists discovered payloads: the raw body to a payload
// store, a line to the discovery log, and optionally a row to an index and
// an event to a feed.
package recorder

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// Discovery describes one found title.
type Discovery struct {
	RunID        string    `db:"run_id" json:"run_id"`
	TitleID      string    `db:"title_id" json:"title_id"`
	Category     string    `db:"category" json:"category"`
	URL          string    `db:"url" json:"url"`
	Path         string    `db:"path" json:"path"`
	Name         string    `db:"name" json:"name,omitempty"`
	Icon         string    `db:"icon" json:"icon,omitempty"`
	Size         int       `db:"size" json:"size"`
	Fingerprint  string    `db:"fingerprint" json:"fingerprint"`
	Empty        bool      `db:"empty" json:"empty"`
	DiscoveredAt time.Time `db:"discovered_at" json:"discovered_at"`
}

// Index stores discoveries for later querying.
type Index interface {
	SaveDiscovery(ctx context.Context, d *Discovery) error
}

// Feed publishes discoveries to other processes.
type Feed interface {
	Publish(ctx context.Context, d *Discovery) error
}

type Stats struct {
	Recorded      int64
	StoreFailures int64
	LogFailures   int64
	IndexFailures int64
	FeedFailures  int64
	EmptyPayloads int64
}

type Option func(*Recorder)

func WithIndex(idx Index) Option {
	return func(r *Recorder) { r.index = idx }
}

func WithFeed(f Feed) Option {
	return func(r *Recorder) { r.feed = f }
}

func WithRunID(id string) Option {
	return func(r *Recorder) { r.runID = id }
}

// Recorder is safe for concurrent use. Every write is best-effort: a failure
// is logged and counted, and the remaining writes still happen.
type Recorder struct {
	store  *PayloadStore
	log    *DiscoveryLog
	index  Index
	feed   Feed
	runID  string
	logger *logger.Logger

	recorded      atomic.Int64
	storeFailures atomic.Int64
	logFailures   atomic.Int64
	indexFailures atomic.Int64
	feedFailures  atomic.Int64
	empty         atomic.Int64
}

func New(store *PayloadStore, log *DiscoveryLog, lg *logger.Logger, opts ...Option) *Recorder {
	if lg == nil {
		lg = logger.NewNop()
	}
	r := &Recorder{
		store:  store,
		log:    log,
		logger: lg.WithComponent("recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes the payload, then the discovery line, then fans out to the
// index and feed.
func (r *Recorder) Record(ctx context.Context, task tmdb.Task, payload []byte) {
	r.recorded.Add(1)
	log := r.logger.WithFields("title_id", task.TitleID, "category", task.Category.String())

	path, err := r.store.Save(task.TitleID, task.Extension, payload)
	if err != nil {
		r.storeFailures.Add(1)
		log.LogError(ctx, err, "recorder.SavePayload")
	}

	if err := r.log.Append(task.TitleID, task.URL); err != nil {
		r.logFailures.Add(1)
		log.LogError(ctx, err, "recorder.AppendDiscovery")
	}

	md := ExtractMetadata(task.Extension, payload)
	if md.Empty {
		r.empty.Add(1)
	}
	log.LogDiscovery(ctx, task.TitleID, path, md.Size,
		"name", md.Name,
		"fingerprint", md.Fingerprint,
		"empty", md.Empty,
	)

	if r.index == nil && r.feed == nil {
		return
	}

	d := &Discovery{
		RunID:        r.runID,
		TitleID:      task.TitleID,
		Category:     task.Category.String(),
		URL:          task.URL,
		Path:         path,
		Name:         md.Name,
		Icon:         md.Icon,
		Size:         md.Size,
		Fingerprint:  md.Fingerprint,
		Empty:        md.Empty,
		DiscoveredAt: time.Now().UTC(),
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	if r.index != nil {
		g.Go(func() error {
			if err := r.index.SaveDiscovery(gctx, d); err != nil {
				r.indexFailures.Add(1)
				log.LogError(ctx, err, "recorder.IndexDiscovery")
			}
			return nil
		})
	}
	if r.feed != nil {
		g.Go(func() error {
			if err := r.feed.Publish(gctx, d); err != nil {
				r.feedFailures.Add(1)
				log.LogError(ctx, err, "recorder.PublishDiscovery")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded:      r.recorded.Load(),
		StoreFailures: r.storeFailures.Load(),
		LogFailures:   r.logFailures.Load(),
		IndexFailures: r.indexFailures.Load(),
		FeedFailures:  r.feedFailures.Load(),
		EmptyPayloads: r.empty.Load(),
	}
}

// Close closes the discovery log. The index and feed are owned by the
// caller.
func (r *Recorder) Close() error {
	return r.log.Close()
}
