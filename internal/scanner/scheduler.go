package scanner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// Prober performs a single GET. Status and body are meaningful only when err
// is nil; implementations read the body only for 200 responses.
type Prober interface {
	Probe(ctx context.Context, url string) (status int, body []byte, err error)
}

// Recorder persists a found payload. It is best-effort: failures are the
// recorder's to log and must not reach the scheduler.
type Recorder interface {
	Record(ctx context.Context, task tmdb.Task, payload []byte)
}

// Observer receives batch and probe events. Calls arrive from worker
// goroutines concurrently.
type Observer interface {
	BatchStarted(target titleid.Target, total int)
	ProbeStarted(task tmdb.Task)
	ProbeCompleted(outcome Outcome)
	BatchFinished(stats BatchStats)
}

type BatchStats struct {
	Category  titleid.Category
	Prefix    string
	Attempted int64
	Found     int64
	NotFound  int64
	Errors    int64
	StartedAt time.Time
	Duration  time.Duration
}

type RunStats struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Batches   []BatchStats
}

// Totals sums every batch in the run.
func (r RunStats) Totals() BatchStats {
	var t BatchStats
	for _, b := range r.Batches {
		t.Attempted += b.Attempted
		t.Found += b.Found
		t.NotFound += b.NotFound
		t.Errors += b.Errors
	}
	t.StartedAt = r.StartedAt
	t.Duration = r.Duration
	return t
}

type Option func(*Scheduler)

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// WithRunID fixes the run id instead of generating one per run, so other
// components can be tagged with it before the scan starts.
func WithRunID(id string) Option {
	return func(s *Scheduler) { s.runID = id }
}

// WithWorkers overrides the worker count, which defaults to the budget size.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// Scheduler sweeps every suffix of a prefix under a shared Budget. Batches
// run one after another; probes within a batch run concurrently.
type Scheduler struct {
	resolver  *tmdb.Resolver
	prober    Prober
	recorder  Recorder
	budget    *Budget
	logger    *logger.Logger
	observers []Observer
	workers   int
	runID     string

	// suffixSpace is the number of suffixes generated per prefix.
	suffixSpace int
}

func New(resolver *tmdb.Resolver, prober Prober, recorder Recorder, budget *Budget, log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		resolver:    resolver,
		prober:      prober,
		recorder:    recorder,
		budget:      budget,
		logger:      log.WithComponent("scheduler"),
		workers:     budget.Size(),
		suffixSpace: titleid.SuffixSpace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanAll sweeps every enumerated prefix of each category in order.
func (s *Scheduler) ScanAll(ctx context.Context, categories []titleid.Category) RunStats {
	run := s.newRun()

	for _, c := range categories {
		prefixes := titleid.EnumerateAll(c)
		s.logger.Infow("Scanning category",
			"run_id", run.RunID,
			"category", c.String(),
			"prefixes", len(prefixes),
		)
		for _, p := range prefixes {
			if ctx.Err() != nil {
				break
			}
			run.Batches = append(run.Batches, s.ScanPrefix(ctx, titleid.Target{Category: c, Prefix: p}))
		}
	}

	run.Duration = time.Since(run.StartedAt)
	return run
}

// ScanTarget sweeps a single validated prefix.
func (s *Scheduler) ScanTarget(ctx context.Context, target titleid.Target) RunStats {
	run := s.newRun()
	run.Batches = append(run.Batches, s.ScanPrefix(ctx, target))
	run.Duration = time.Since(run.StartedAt)
	return run
}

// ScanPrefix probes every title ID behind target.Prefix. Individual probe
// failures are counted and logged; nothing aborts the batch.
func (s *Scheduler) ScanPrefix(ctx context.Context, target titleid.Target) BatchStats {
	start := time.Now()
	log := s.logger.WithPrefix(target.Category.String(), target.Prefix)

	ctx, span := log.StartOperation(ctx, "scanner.ScanPrefix",
		"category", target.Category.String(),
		"prefix", target.Prefix,
		"candidates", s.suffixSpace,
	)

	for _, o := range s.observers {
		o.BatchStarted(target, s.suffixSpace)
	}

	var found, notFound, errs atomic.Int64

	ids := make(chan string, s.workers)
	go func() {
		defer close(ids)
		for i := 0; i < s.suffixSpace; i++ {
			select {
			case ids <- titleid.New(target.Prefix, i):
			case <-ctx.Done():
				return
			}
		}
	}()

	g := new(errgroup.Group)
	for w := 0; w < s.workers; w++ {
		g.Go(func() error {
			for id := range ids {
				outcome := s.execute(ctx, s.resolver.Resolve(id, target.Category))
				switch outcome.Kind {
				case Found:
					found.Add(1)
				case NotFound:
					notFound.Add(1)
				default:
					errs.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := BatchStats{
		Category:  target.Category,
		Prefix:    target.Prefix,
		Found:     found.Load(),
		NotFound:  notFound.Load(),
		Errors:    errs.Load(),
		StartedAt: start,
		Duration:  time.Since(start),
	}
	stats.Attempted = stats.Found + stats.NotFound + stats.Errors

	for _, o := range s.observers {
		o.BatchFinished(stats)
	}

	log.FinishOperation(ctx, span, "scanner.ScanPrefix", start, nil,
		"attempted", stats.Attempted,
		"found", stats.Found,
		"transport_errors", stats.Errors,
	)
	log.Infow("Prefix batch complete",
		"attempted", stats.Attempted,
		"found", stats.Found,
		"not_found", stats.NotFound,
		"transport_errors", stats.Errors,
		"duration", stats.Duration.String(),
	)

	return stats
}

// execute runs one task to a terminal outcome. The budget is held only for
// the network call; recording happens after release.
func (s *Scheduler) execute(ctx context.Context, task tmdb.Task) Outcome {
	for _, o := range s.observers {
		o.ProbeStarted(task)
	}

	start := time.Now()
	var outcome Outcome
	err := s.budget.Do(ctx, func(ctx context.Context) {
		status, body, err := s.prober.Probe(ctx, task.URL)
		outcome = Classify(task, status, body, err, time.Since(start))
	})
	if err != nil {
		outcome = Classify(task, 0, nil, err, time.Since(start))
	}

	s.logger.LogProbe(ctx, task.TitleID, task.URL, outcome.Status, outcome.Duration, outcome.Err)

	if outcome.Kind == Found {
		s.recorder.Record(ctx, task, outcome.Payload)
	}

	for _, o := range s.observers {
		o.ProbeCompleted(outcome)
	}
	return outcome
}

func (s *Scheduler) newRun() RunStats {
	id := s.runID
	if id == "" {
		id = uuid.New().String()
	}
	return RunStats{
		RunID:     id,
		StartedAt: time.Now(),
	}
}
