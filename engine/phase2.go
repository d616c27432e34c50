package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

// runPhase2 enriches entries of enrichable types that lack detail.
// Cache-key groups run sequentially; describes inside a group fan out
// under a semaphore. Describe failures keep the listing data and are
// skipped without failing the group.
func (e *Engine) runPhase2(ctx context.Context, entries []types.ResourceEntry, q *Query) []types.ResourceEntry {
	var candidates []int
	for i := range entries {
		if e.registry.Enrichable(entries[i].ResourceType) && !entries[i].HasDetail() {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return entries
	}

	started := time.Now()
	total := len(candidates)
	q.emit(Event{Kind: EventPhase2Started, TotalResources: total})

	groups := make(map[string][]int)
	for _, i := range candidates {
		ck := entries[i].CacheKey()
		groups[ck] = append(groups[ck], i)
	}
	groupKeys := make([]string, 0, len(groups))
	for ck := range groups {
		groupKeys = append(groupKeys, ck)
	}
	sort.Strings(groupKeys)

	var processed atomic.Int64
	for _, ck := range groupKeys {
		e.enrichGroup(ctx, ck, groups[ck], entries, total, &processed, q)
	}

	telemetry.PhaseDuration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(attribute.String("phase", "describe")))
	q.emit(Event{Kind: EventPhase2Completed, Resources: entries})

	return entries
}

// enrichGroup fans out describes for one cache key, waits for the group
// to drain, then writes the merged entries back into the cache slot.
// Untouched cached entries stay untouched.
func (e *Engine) enrichGroup(ctx context.Context, cacheKey string, idxs []int, entries []types.ResourceEntry, total int, processed *atomic.Int64, q *Query) {
	sem := make(chan struct{}, e.opts.Phase2Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var merged []types.ResourceEntry

	for _, i := range idxs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if ok := e.describeInto(ctx, &entries[i]); ok {
				mu.Lock()
				merged = append(merged, entries[i])
				mu.Unlock()
			}

			if n := processed.Add(1); n%int64(e.opts.Phase2ProgressEvery) == 0 {
				q.emit(Event{
					Kind:           EventPhase2Progress,
					ResourceType:   entries[i].ResourceType,
					Processed:      int(n),
					TotalResources: total,
				})
			}
		}(i)
	}
	wg.Wait()

	q.emit(Event{
		Kind:           EventPhase2Progress,
		ResourceType:   entries[idxs[0]].ResourceType,
		Processed:      int(processed.Load()),
		TotalResources: total,
	})

	if len(merged) == 0 {
		return
	}

	byIdentity := make(map[string]types.ResourceEntry, len(merged))
	for _, entry := range merged {
		byIdentity[entry.IdentityKey()] = entry
	}
	e.cache.Update(cacheKey, func(cached []types.ResourceEntry) []types.ResourceEntry {
		for j := range cached {
			if u, ok := byIdentity[cached[j].IdentityKey()]; ok {
				cached[j].Properties = u.Properties
				cached[j].DetailedProperties = u.DetailedProperties
				cached[j].DetailedAt = u.DetailedAt
			}
		}
		return cached
	})
	e.logger.LogCacheWrite(ctx, cacheKey, len(merged))
}

// describeInto merges describe data over the listing properties of one
// entry. Describe wins on conflicting keys, listing-only keys survive.
func (e *Engine) describeInto(ctx context.Context, entry *types.ResourceEntry) bool {
	detail, err := e.fetcher.Describe(ctx, entry)
	if err != nil {
		e.logger.LogDescribeFailed(ctx, entry.ResourceID, err)
		telemetry.DescribeFailures.Add(ctx, 1)
		return false
	}

	props := e.registry.Lookup(entry.ResourceType).NormalizeDetail(detail)
	entry.Properties = types.MergeProperties(entry.Properties, props)
	entry.DetailedProperties = detail
	entry.DetailedAt = time.Now().UTC()
	return true
}
