package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karttahq/kartta/types"
)

// failedSet remembers identities whose on-demand enrichment failed this
// session so repeat attempts are suppressed instead of retried.
type failedSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newFailedSet() *failedSet {
	return &failedSet{ids: make(map[string]bool)}
}

func (f *failedSet) contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

func (f *failedSet) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[id] = true
}

// Enrich runs the describe-and-merge logic for a single listed entry
// outside the pipeline, updating it in place and writing the merge back
// to the entry's cache slot. A failed identity is suppressed for the
// rest of the session.
func (e *Engine) Enrich(ctx context.Context, entry *types.ResourceEntry) error {
	identity := entry.IdentityKey()
	if e.failed.contains(identity) {
		return fmt.Errorf("%s: %w", identity, ErrSuppressed)
	}
	if !e.registry.Enrichable(entry.ResourceType) {
		return fmt.Errorf("resource type %q is not enrichable", entry.ResourceType)
	}

	detail, err := e.fetcher.Describe(ctx, entry)
	if err != nil {
		e.failed.add(identity)
		e.logger.LogDescribeFailed(ctx, entry.ResourceID, err)
		return fmt.Errorf("describing %s: %w", identity, err)
	}

	props := e.registry.Lookup(entry.ResourceType).NormalizeDetail(detail)
	entry.Properties = types.MergeProperties(entry.Properties, props)
	entry.DetailedProperties = detail
	entry.DetailedAt = time.Now().UTC()

	e.cache.Update(entry.CacheKey(), func(cached []types.ResourceEntry) []types.ResourceEntry {
		for j := range cached {
			if cached[j].IdentityKey() == identity {
				cached[j].Properties = entry.Properties
				cached[j].DetailedProperties = entry.DetailedProperties
				cached[j].DetailedAt = entry.DetailedAt
			}
		}
		return cached
	})

	return nil
}
