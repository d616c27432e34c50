// Package storage persists revisioned query snapshots so consumers can
// inspect how an inventory changed over time. Snapshots live in bbolt,
// a btree index keeps per-key bookkeeping in memory.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/karttahq/kartta/types"
)

// Bucket names in bbolt
var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

// Store is a revisioned snapshot store. Every RecordQuery bumps the
// global revision and writes the full entry list for one cache key.
type Store struct {
	mu sync.RWMutex

	// In-memory index for fast per-key lookups
	index *btree.BTreeG[*QueryRecord]

	// On-disk storage
	db *bbolt.DB

	// Current revision number
	currentRev int64

	dir string
}

// QueryRecord tracks one cache key's snapshot history in the index.
type QueryRecord struct {
	CacheKey     string
	FirstSeenRev int64
	LastSeenRev  int64
	EntryCount   int
	RecordedAt   time.Time
}

// NewStore opens or creates a snapshot store in dir.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "kartta.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{
		index: btree.NewG[*QueryRecord](32, func(a, b *QueryRecord) bool {
			return a.CacheKey < b.CacheKey
		}),
		db:  db,
		dir: dir,
	}

	store.loadRevision()
	if err := store.rebuildIndex(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordQuery persists one cache key's entries as a new revision.
func (s *Store) RecordQuery(_ context.Context, cacheKey string, entries []types.ResourceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		value, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		if err := bucket.Put(makeSnapshotKey(rev, cacheKey), value); err != nil {
			return err
		}

		metaBucket := tx.Bucket(bucketMeta)
		return metaBucket.Put([]byte("current_revision"), int64ToBytes(rev))
	})
	if err != nil {
		s.currentRev--
		return fmt.Errorf("recording snapshot for %s: %w", cacheKey, err)
	}

	s.updateIndex(cacheKey, rev, len(entries))
	return nil
}

// Snapshot returns the latest persisted entries for a cache key along
// with the revision that produced them.
func (s *Store) Snapshot(cacheKey string) ([]types.ResourceEntry, int64, error) {
	s.mu.RLock()
	record, found := s.index.Get(&QueryRecord{CacheKey: cacheKey})
	s.mu.RUnlock()
	if !found {
		return nil, 0, fmt.Errorf("no snapshot for %s", cacheKey)
	}
	entries, err := s.SnapshotAt(cacheKey, record.LastSeenRev)
	return entries, record.LastSeenRev, err
}

// SnapshotAt returns the entries stored for a cache key at an exact
// revision.
func (s *Store) SnapshotAt(cacheKey string, revision int64) ([]types.ResourceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []types.ResourceEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		value := bucket.Get(makeSnapshotKey(revision, cacheKey))
		if value == nil {
			return fmt.Errorf("no snapshot for %s at revision %d", cacheKey, revision)
		}
		return json.Unmarshal(value, &entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Revisions lists the revisions recorded for one cache key, oldest first.
func (s *Store) Revisions(cacheKey string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revs []int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rev, key := parseSnapshotKey(k)
			if key == cacheKey {
				revs = append(revs, rev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revs, nil
}

// Records returns the index records for every known cache key, ordered.
func (s *Store) Records() []QueryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []QueryRecord
	s.index.Ascend(func(r *QueryRecord) bool {
		records = append(records, *r)
		return true
	})
	return records
}

// CurrentRevision returns the current revision number.
func (s *Store) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// Compact removes snapshots older than the newest keepRevisions.
func (s *Store) Compact(keepRevisions int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.currentRev - keepRevisions
	if cutoff <= 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		c := bucket.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rev, _ := parseSnapshotKey(k)
			if rev < cutoff {
				toDelete = append(toDelete, k)
			}
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) updateIndex(cacheKey string, rev int64, count int) {
	existing, found := s.index.Get(&QueryRecord{CacheKey: cacheKey})
	if !found {
		existing = &QueryRecord{
			CacheKey:     cacheKey,
			FirstSeenRev: rev,
		}
	}
	existing.LastSeenRev = rev
	existing.EntryCount = count
	existing.RecordedAt = time.Now().UTC()
	s.index.ReplaceOrInsert(existing)
}

func (s *Store) loadRevision() {
	_ = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket == nil {
			return nil
		}
		if data := bucket.Get([]byte("current_revision")); data != nil {
			s.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex rescans the snapshot bucket so the index survives restarts.
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			rev, cacheKey := parseSnapshotKey(k)
			var entries []types.ResourceEntry
			if err := json.Unmarshal(v, &entries); err != nil {
				continue
			}
			s.updateIndex(cacheKey, rev, len(entries))
		}
		return nil
	})
}

// Snapshot keys order revision-first so compaction scans stay cheap.
// Cache keys contain colons, so the revision is fixed-width and split
// on the first separator only.
func makeSnapshotKey(rev int64, cacheKey string) []byte {
	return []byte(fmt.Sprintf("%016d|%s", rev, cacheKey))
}

func parseSnapshotKey(key []byte) (int64, string) {
	parts := strings.SplitN(string(key), "|", 2)
	if len(parts) != 2 {
		return 0, ""
	}
	var rev int64
	fmt.Sscanf(parts[0], "%d", &rev)
	return rev, parts[1]
}

func int64ToBytes(n int64) []byte {
	return []byte(fmt.Sprintf("%d", n))
}

func bytesToInt64(b []byte) int64 {
	var n int64
	fmt.Sscanf(string(b), "%d", &n)
	return n
}
