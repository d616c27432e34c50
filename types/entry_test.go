package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyFormat(t *testing.T) {
	assert.Equal(t, "123456789012:eu-west-1:ec2-instance",
		CacheKey("123456789012", "eu-west-1", "ec2-instance"))
	assert.Equal(t, "123456789012:Global:iam-role",
		CacheKey("123456789012", GlobalRegion, "iam-role"))
}

func TestChildResourceID(t *testing.T) {
	assert.Equal(t, "prod-cluster#api", ChildResourceID("prod-cluster", "api"))
}

func TestEntryIdentityKey(t *testing.T) {
	entry := ResourceEntry{
		ResourceType: "sqs-queue",
		AccountID:    "111122223333",
		Region:       "us-east-1",
		ResourceID:   "orders",
	}
	assert.Equal(t, "111122223333:us-east-1:sqs-queue:orders", entry.IdentityKey())
	assert.Equal(t, "111122223333:us-east-1:sqs-queue", entry.CacheKey())
}

func TestDedupeOverwritesNeverAppends(t *testing.T) {
	entries := []ResourceEntry{
		{ResourceType: "ec2-instance", AccountID: "a", Region: "r", ResourceID: "i-1", Status: "pending"},
		{ResourceType: "ec2-instance", AccountID: "a", Region: "r", ResourceID: "i-2", Status: "running"},
		{ResourceType: "ec2-instance", AccountID: "a", Region: "r", ResourceID: "i-1", Status: "running"},
	}

	deduped := Dedupe(entries)
	require.Len(t, deduped, 2)

	// Later duplicate overwrites in place, keeping first-seen order.
	assert.Equal(t, "i-1", deduped[0].ResourceID)
	assert.Equal(t, "running", deduped[0].Status)
	assert.Equal(t, "i-2", deduped[1].ResourceID)

	seen := map[string]bool{}
	for _, e := range deduped {
		require.False(t, seen[e.IdentityKey()], "duplicate identity %s", e.IdentityKey())
		seen[e.IdentityKey()] = true
	}
}

func TestMergeProperties(t *testing.T) {
	base := map[string]any{"A": 1, "B": 2}
	overlay := map[string]any{"B": 3, "C": 4}

	merged := MergeProperties(base, overlay)

	assert.Equal(t, map[string]any{"A": 1, "B": 3, "C": 4}, merged)
	// Inputs untouched.
	assert.Equal(t, map[string]any{"A": 1, "B": 2}, base)
	assert.Equal(t, map[string]any{"B": 3, "C": 4}, overlay)
}

func TestHasDetail(t *testing.T) {
	var entry ResourceEntry
	assert.False(t, entry.HasDetail())

	entry.DetailedAt = time.Now()
	assert.True(t, entry.HasDetail())
}

func TestEntryTagLookup(t *testing.T) {
	entry := ResourceEntry{Tags: []Tag{{Key: "Name", Value: "web"}, {Key: "env", Value: "prod"}}}
	assert.Equal(t, "web", entry.Tag("Name"))
	assert.Equal(t, "", entry.Tag("missing"))
}
