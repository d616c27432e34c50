// Package cache holds the shared, process-wide resource cache. One store
// instance is passed explicitly to every engine invocation and consumer;
// tests get an isolated instance instead of a singleton.
//
// Keys follow the "{account}:{region}:{type}" format from the types
// package. Different keys are fully independent: each key hashes to a
// stripe and only that stripe's lock guards it. Two writers to the same
// key race by design and the last writer wins; staleness is judged by
// consumers from each entry's QueriedAt, never by silent eviction.
package cache

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/karttahq/kartta/types"
)

const numStripes = 32

// Store is the shared resource cache.
type Store struct {
	stripes [numStripes]stripe
	ttl     time.Duration
}

type stripe struct {
	mu    sync.RWMutex
	slots map[string]slot
}

type slot struct {
	entries  []types.ResourceEntry
	storedAt time.Time
}

// New creates a store. ttl bounds how long RunPendingMaintenance keeps a
// key after its last write; zero disables trimming entirely.
func New(ttl time.Duration) *Store {
	s := &Store{ttl: ttl}
	for i := range s.stripes {
		s.stripes[i].slots = make(map[string]slot)
	}
	return s
}

func (s *Store) stripeFor(key string) *stripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%numStripes]
}

// Get returns the cached entry list for a key. The returned slice is the
// caller's to keep; the cached backing array is not shared.
func (s *Store) Get(key string) ([]types.ResourceEntry, bool) {
	st := s.stripeFor(key)
	st.mu.RLock()
	defer st.mu.RUnlock()

	sl, ok := st.slots[key]
	if !ok {
		return nil, false
	}
	out := make([]types.ResourceEntry, len(sl.entries))
	copy(out, sl.entries)
	return out, true
}

// Put stores the entry list for a key, replacing any previous value.
func (s *Store) Put(key string, entries []types.ResourceEntry) {
	stored := make([]types.ResourceEntry, len(entries))
	copy(stored, entries)

	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.slots[key] = slot{entries: stored, storedAt: time.Now()}
}

// Update applies a read-modify-write under the key's lock. fn receives the
// current entries (nil when absent) and returns the replacement. Used by
// phase-2 write-back so untouched entries in the same slot stay untouched.
func (s *Store) Update(key string, fn func(entries []types.ResourceEntry) []types.ResourceEntry) {
	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	current := st.slots[key].entries
	st.slots[key] = slot{entries: fn(current), storedAt: time.Now()}
}

// Keys returns all cached keys, sorted.
func (s *Store) Keys() []string {
	var keys []string
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		for key := range st.slots {
			keys = append(keys, key)
		}
		st.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// StoredAt returns when a key was last written.
func (s *Store) StoredAt(key string) (time.Time, bool) {
	st := s.stripeFor(key)
	st.mu.RLock()
	defer st.mu.RUnlock()
	sl, ok := st.slots[key]
	return sl.storedAt, ok
}

// RunPendingMaintenance trims keys not written within the TTL and returns
// how many were removed. Trimming only happens here, on explicit request.
func (s *Store) RunPendingMaintenance() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-s.ttl)

	removed := 0
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.Lock()
		for key, sl := range st.slots {
			if sl.storedAt.Before(cutoff) {
				delete(st.slots, key)
				removed++
			}
		}
		st.mu.Unlock()
	}
	return removed
}

// MemoryStats summarizes cache occupancy.
type MemoryStats struct {
	Keys        int   `json:"keys"`
	Entries     int   `json:"entries"`
	ApproxBytes int64 `json:"approx_bytes"`
}

// MemoryStats estimates the cache footprint. The byte count is a coarse
// estimate meant for budget checks, not accounting.
func (s *Store) MemoryStats() MemoryStats {
	var stats MemoryStats
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		for key, sl := range st.slots {
			stats.Keys++
			stats.Entries += len(sl.entries)
			stats.ApproxBytes += int64(len(key))
			for j := range sl.entries {
				stats.ApproxBytes += approxEntryBytes(&sl.entries[j])
			}
		}
		st.mu.RUnlock()
	}
	return stats
}

func approxEntryBytes(e *types.ResourceEntry) int64 {
	size := int64(len(e.ResourceID) + len(e.DisplayName) + len(e.AccountID) + len(e.Region) + len(e.ResourceType))
	size += int64(len(e.Properties)+len(e.RawProperties)+len(e.DetailedProperties)) * 64
	size += int64(len(e.Tags)) * 32
	size += int64(len(e.Relationships)) * 48
	return size + 128
}
