// Package engine orchestrates the two-phase resource query pipeline:
// parallel listing and normalization per query key, relationship linking
// over the complete set, then bounded-concurrency deep-describe
// enrichment merged back into the shared cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/karttahq/kartta/cache"
	"github.com/karttahq/kartta/normalize"
	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

var (
	ErrEmptyScope = errors.New("query scope is empty")

	// ErrSuppressed marks an on-demand enrichment skipped because the
	// same resource already failed this session.
	ErrSuppressed = errors.New("resource enrichment suppressed after earlier failure")
)

// SnapshotWriter persists each query key's results as they land. Optional.
type SnapshotWriter interface {
	RecordQuery(ctx context.Context, cacheKey string, entries []types.ResourceEntry) error
}

// Options tune one engine instance.
type Options struct {
	// Phase2Concurrency bounds the describe fan-out inside one cache-key
	// group. Defaults to 4.
	Phase2Concurrency int

	// EventBuffer sizes the event channel. A full channel blocks the
	// pipeline, which is the backpressure contract. Defaults to 64.
	EventBuffer int

	// MemoryBudgetBytes aborts an invocation when process heap use
	// exceeds it, checked before each phase. 0 disables the guard.
	MemoryBudgetBytes uint64

	// MaxStale lets a cache entry younger than this satisfy its query
	// key without re-listing. 0 always re-lists.
	MaxStale time.Duration

	// Phase2ProgressEvery is the describe count between progress events.
	// Defaults to 5.
	Phase2ProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.Phase2Concurrency <= 0 {
		o.Phase2Concurrency = 4
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Phase2ProgressEvery <= 0 {
		o.Phase2ProgressEvery = 5
	}
	return o
}

// Engine runs resource queries against one fetcher and one shared cache.
type Engine struct {
	fetcher  providers.Fetcher
	cache    *cache.Store
	registry *normalize.Registry
	store    SnapshotWriter
	logger   *telemetry.Logger
	opts     Options

	failed *failedSet
}

// New builds an Engine. The snapshot store is optional; pass nil to skip
// persistence.
func New(fetcher providers.Fetcher, store *cache.Store, registry *normalize.Registry, logger *telemetry.Logger, opts Options) *Engine {
	if logger == nil {
		logger = telemetry.NewLogger("engine")
	}
	return &Engine{
		fetcher:  fetcher,
		cache:    store,
		registry: registry,
		logger:   logger,
		opts:     opts.withDefaults(),
		failed:   newFailedSet(),
	}
}

// WithSnapshots attaches a persistent snapshot writer.
func (e *Engine) WithSnapshots(w SnapshotWriter) *Engine {
	e.store = w
	return e
}

// Query is the handle for one running invocation.
type Query struct {
	events chan Event
	done   chan struct{}

	result []types.ResourceEntry
	err    error
}

// Events returns the bounded progress stream. It is closed after the
// terminal event. Consumers that stop draining stall the pipeline.
func (q *Query) Events() <-chan Event {
	return q.events
}

// Wait blocks until the invocation terminates or ctx is done, draining
// any unconsumed events, and returns the final merged entry list.
func (q *Query) Wait(ctx context.Context) ([]types.ResourceEntry, error) {
	for {
		select {
		case _, ok := <-q.events:
			if !ok {
				<-q.done
				return q.result, q.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Execute starts the two-phase pipeline for one scope and returns
// immediately with a handle. It errors only when dispatch is impossible;
// runtime failures arrive as a Failed event instead.
func (e *Engine) Execute(ctx context.Context, scope types.QueryScope) (*Query, error) {
	if e.fetcher == nil {
		return nil, errors.New("engine has no fetcher")
	}
	if scope.IsEmpty() {
		return nil, ErrEmptyScope
	}

	keys := BuildQueryKeys(scope)
	if len(keys) == 0 {
		return nil, ErrEmptyScope
	}

	q := &Query{
		events: make(chan Event, e.opts.EventBuffer),
		done:   make(chan struct{}),
	}

	telemetry.QueriesStarted.Add(ctx, 1)
	go e.run(ctx, keys, q)

	return q, nil
}

func (e *Engine) run(ctx context.Context, keys []QueryKey, q *Query) {
	started := time.Now()

	if err := e.checkMemoryBudget(); err != nil {
		e.fail(ctx, q, err)
		return
	}

	entries, failedKeys := e.runPhase1(ctx, keys, q)

	if err := e.checkMemoryBudget(); err != nil {
		e.fail(ctx, q, err)
		return
	}

	entries = e.runPhase2(ctx, entries, q)

	telemetry.ResourcesDiscovered.Add(ctx, int64(len(entries)))
	e.logger.LogQueryCompleted(ctx, len(entries), failedKeys,
		float64(time.Since(started).Milliseconds()))

	q.result = entries
	q.emit(Event{Kind: EventCompleted, Resources: entries})
	close(q.events)
	close(q.done)
}

func (e *Engine) fail(ctx context.Context, q *Query, err error) {
	e.logger.WithContext(ctx).Error().Err(err).Msg("query failed")
	q.err = err
	q.emit(Event{Kind: EventFailed, Err: err, Category: Categorize(err), Severity: SeverityError})
	close(q.events)
	close(q.done)
}

func (q *Query) emit(ev Event) {
	q.events <- ev
}

// checkMemoryBudget is a read-only admission check, not a lock.
func (e *Engine) checkMemoryBudget() error {
	if e.opts.MemoryBudgetBytes == 0 {
		return nil
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapAlloc > e.opts.MemoryBudgetBytes {
		return fmt.Errorf("memory budget exceeded: %d bytes in use, budget %d",
			stats.HeapAlloc, e.opts.MemoryBudgetBytes)
	}
	return nil
}
