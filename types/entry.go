package types

import (
	"fmt"
	"time"
)

// GlobalRegion is the region label used for region-independent resource types.
const GlobalRegion = "Global"

// Tag is one key/value pair attached to a resource. Order is preserved
// exactly as the provider returned it.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ResourceEntry is one discovered cloud resource in canonical form.
type ResourceEntry struct {
	// Identity. The tuple (AccountID, Region, ResourceType, ResourceID)
	// is unique within any collection.
	ResourceType string `json:"resource_type"`
	AccountID    string `json:"account_id"`
	Region       string `json:"region"`
	ResourceID   string `json:"resource_id"`

	DisplayName string `json:"display_name"`
	Status      string `json:"status,omitempty"`

	// Color is a stable presentation hint derived from the resource
	// identifier, so the same resource renders the same everywhere.
	Color string `json:"color,omitempty"`

	// Properties is the normalized merge of listing data and, after
	// enrichment, describe data. RawProperties keeps the untouched
	// listing payload for debugging and re-normalization.
	Properties         map[string]any `json:"properties,omitempty"`
	RawProperties      map[string]any `json:"raw_properties,omitempty"`
	DetailedProperties map[string]any `json:"detailed_properties,omitempty"`
	DetailedAt         time.Time      `json:"detailed_at,omitzero"`

	Tags          []Tag          `json:"tags,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`

	// Child resources carry their parent so nesting needs no
	// relationship lookup.
	ParentResourceID   string `json:"parent_resource_id,omitempty"`
	ParentResourceType string `json:"parent_resource_type,omitempty"`
	IsChild            bool   `json:"is_child,omitempty"`

	// QueriedAt is when the producing list call ran. Staleness decisions
	// belong to consumers, not the cache.
	QueriedAt time.Time `json:"queried_at"`
}

// CacheKey builds the canonical cache key for one (account, region, type)
// tuple. The format is load-bearing: consumers parse it back.
func CacheKey(accountID, region, resourceType string) string {
	return fmt.Sprintf("%s:%s:%s", accountID, region, resourceType)
}

// ChildResourceID synthesizes an identifier for a nested resource that is
// unique within the parent's type, account and region.
func ChildResourceID(parentID, childID string) string {
	return parentID + "#" + childID
}

// CacheKey returns the key of the result set this entry belongs to.
func (e *ResourceEntry) CacheKey() string {
	return CacheKey(e.AccountID, e.Region, e.ResourceType)
}

// IdentityKey uniquely identifies this entry across all result sets.
func (e *ResourceEntry) IdentityKey() string {
	return e.CacheKey() + ":" + e.ResourceID
}

// HasDetail reports whether deep-describe data has been merged in.
func (e *ResourceEntry) HasDetail() bool {
	return !e.DetailedAt.IsZero()
}

// Tag returns the value of a tag by key, or "" when absent.
func (e *ResourceEntry) Tag(key string) string {
	for _, t := range e.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// ARN returns the entry's ARN property when the normalizer recorded one.
func (e *ResourceEntry) ARN() string {
	if v, ok := e.Properties["arn"].(string); ok {
		return v
	}
	return ""
}

// PropertyString returns a string property, or "" when absent or not a string.
func (e *ResourceEntry) PropertyString(key string) string {
	if v, ok := e.Properties[key].(string); ok {
		return v
	}
	return ""
}

// Dedupe collapses entries sharing an identity tuple. Later entries
// overwrite earlier ones in place; first-seen order is preserved.
func Dedupe(entries []ResourceEntry) []ResourceEntry {
	seen := make(map[string]int, len(entries))
	out := entries[:0:0]

	for _, entry := range entries {
		key := entry.IdentityKey()
		if idx, ok := seen[key]; ok {
			out[idx] = entry
			continue
		}
		seen[key] = len(out)
		out = append(out, entry)
	}

	return out
}

// MergeProperties overlays detail properties on top of listing properties.
// Overlay wins on conflict; base-only fields survive. Neither input is
// mutated.
func MergeProperties(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
