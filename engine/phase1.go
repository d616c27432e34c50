package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/karttahq/kartta/normalize"
	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

type keyResult struct {
	key     QueryKey
	entries []types.ResourceEntry
	cached  bool
	err     error
}

// runPhase1 lists every query key concurrently, normalizes the payloads,
// links relationships over the complete set and writes each key's
// results to the cache. Per-key failures are reported and skipped.
func (e *Engine) runPhase1(ctx context.Context, keys []QueryKey, q *Query) ([]types.ResourceEntry, int) {
	started := time.Now()

	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = k.CacheKey()
	}
	e.logger.LogQueryStarted(ctx, len(keys))
	q.emit(Event{Kind: EventPhase1Started, TotalQueries: len(keys), QueryKeys: cacheKeys})

	tags := &tagCounter{engine: e, query: q}
	results := make(chan keyResult, 8)
	for _, k := range keys {
		go func(k QueryKey) {
			results <- e.listKey(ctx, k, tags)
		}(k)
	}

	var all []types.ResourceEntry
	fresh := make(map[string]bool)
	failed := 0
	for range keys {
		res := <-results
		ck := res.key.CacheKey()

		if res.err != nil {
			failed++
			category := Categorize(res.err)
			e.logger.LogListingFailed(ctx, ck, res.err)
			telemetry.QueryKeysFailed.Add(ctx, 1)
			q.emit(Event{
				Kind:     EventPhase1QueryFailed,
				QueryKey: ck,
				Err:      res.err,
				Category: category,
				Severity: category.Severity(),
			})
			continue
		}

		if res.cached {
			telemetry.CacheServedKeys.Add(ctx, 1)
		} else {
			fresh[ck] = true
		}

		all = append(all, res.entries...)
		q.emit(Event{Kind: EventPhase1QueryCompleted, QueryKey: ck, Cumulative: len(all)})
	}

	if fetched := tags.count.Load(); fetched > 0 {
		q.emit(Event{Kind: EventTagFetchingCompleted, TagsFetched: int(fetched)})
	}

	all = normalize.Link(e.registry, all)
	e.writeResults(ctx, all, fresh)

	telemetry.PhaseDuration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(attribute.String("phase", "list")))
	q.emit(Event{Kind: EventPhase1Completed, Resources: all})

	return all, failed
}

// listKey produces one key's normalized entries, either from a
// sufficiently fresh cache slot or by listing the provider.
func (e *Engine) listKey(ctx context.Context, k QueryKey, tags *tagCounter) keyResult {
	ck := k.CacheKey()

	if e.opts.MaxStale > 0 {
		if storedAt, ok := e.cache.StoredAt(ck); ok && time.Since(storedAt) < e.opts.MaxStale {
			cached, _ := e.cache.Get(ck)
			return keyResult{key: k, entries: cached, cached: true}
		}
	}

	payloads, err := e.fetcher.List(ctx, k.Account, k.Region, k.ResourceType)
	if err != nil {
		return keyResult{key: k, err: fmt.Errorf("listing %s: %w", ck, err)}
	}

	in := normalize.Input{
		Account:      k.Account,
		Region:       k.RegionLabel(),
		ResourceType: k.ResourceType,
		QueriedAt:    time.Now().UTC(),
		Tags:         tags.bind(k.Account, k.Region),
	}
	normalizer := e.registry.Lookup(k.ResourceType)

	entries := make([]types.ResourceEntry, 0, len(payloads))
	for _, raw := range payloads {
		entry, err := normalizer.Normalize(ctx, raw, in)
		if err != nil {
			e.logger.LogNormalizeFailed(ctx, ck, err)
			continue
		}
		entries = append(entries, *entry)
	}

	return keyResult{key: k, entries: types.Dedupe(entries)}
}

// writeResults stores each freshly listed key's linked entries, one cache
// write and one snapshot per key per query. Cache-served keys keep their
// slot untouched so their freshness window is not extended.
func (e *Engine) writeResults(ctx context.Context, entries []types.ResourceEntry, fresh map[string]bool) {
	groups := make(map[string][]types.ResourceEntry, len(fresh))
	for ck := range fresh {
		// A fresh key that listed nothing still records its empty set.
		groups[ck] = nil
	}
	for _, entry := range entries {
		ck := entry.CacheKey()
		if fresh[ck] {
			groups[ck] = append(groups[ck], entry)
		}
	}
	for ck, group := range groups {
		e.cache.Put(ck, group)
		e.logger.LogCacheWrite(ctx, ck, len(group))
		e.snapshot(ctx, ck, group)
	}
}

func (e *Engine) snapshot(ctx context.Context, cacheKey string, entries []types.ResourceEntry) {
	if e.store == nil {
		return
	}
	if err := e.store.RecordQuery(ctx, cacheKey, entries); err != nil {
		e.logger.WithContext(ctx).Warn().Err(err).Str("cache_key", cacheKey).Msg("snapshot write failed")
	}
}

// tagCounter counts tag side-channel fetches across all keys and reports
// progress independently of per-key completion.
type tagCounter struct {
	engine *Engine
	query  *Query
	count  atomic.Int64
}

func (t *tagCounter) bind(account, region string) normalize.TagSource {
	return boundTags{counter: t, account: account, region: region}
}

type boundTags struct {
	counter *tagCounter
	account string
	region  string
}

func (b boundTags) FetchTags(ctx context.Context, resourceType, resourceID string) ([]types.Tag, error) {
	fetched, err := b.counter.engine.fetcher.FetchTags(ctx, resourceType, resourceID, b.account, b.region)
	if err != nil {
		return nil, err
	}
	if n := b.counter.count.Add(1); n%10 == 0 {
		b.counter.query.emit(Event{Kind: EventTagFetchingProgress, TagsFetched: int(n)})
	}
	return fetched, nil
}
