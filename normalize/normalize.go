// Package normalize turns heterogeneous raw provider payloads into
// canonical resource entries and derives the relationship graph between
// them. Normalizers are pure transforms: the only side channel they may
// touch is the tag fetch passed in via Input. Listing and describing stay
// with the engine, which keeps phase-1 normalization parallelizable and
// relationship extraction a separate pass over the complete entry set.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// ErrNoIdentifier means a payload carried no usable resource identifier.
// The surrounding batch must continue; only this item is dropped.
var ErrNoIdentifier = errors.New("payload has no usable identifier")

// TagSource is the optional tag side channel handed to normalizers for
// types whose listing payload carries no tags.
type TagSource interface {
	FetchTags(ctx context.Context, resourceType, resourceID string) ([]types.Tag, error)
}

// Input carries the query context a normalizer needs to stamp an entry.
// ResourceType is the type the query asked for; typed normalizers know
// their own, the generic fallback relies on it.
type Input struct {
	Account      string
	Region       string
	ResourceType string
	QueriedAt    time.Time
	Tags         TagSource
}

// Normalizer converts raw payloads of one resource type into canonical
// entries and, in a second pass, extracts edges against the full sibling
// set.
type Normalizer interface {
	// Type returns the resource type this normalizer owns.
	Type() string

	// Enrichable reports whether a deep describe yields properties
	// beyond the listing.
	Enrichable() bool

	// Normalize converts one raw payload. It must tolerate missing
	// optional fields via fallback identifiers and return
	// ErrNoIdentifier when nothing usable remains.
	Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error)

	// Relationships derives directed edges for one entry by scanning
	// the complete, already-normalized sibling set. Pure.
	Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship

	// NormalizeDetail flattens a describe payload into properties to be
	// merged over the listing properties. Nil for non-enrichable types.
	NormalizeDetail(detail providers.Payload) map[string]any
}

// base provides the defaults shared by most normalizers.
type base struct{}

func (base) Enrichable() bool { return false }

func (base) Relationships(*types.ResourceEntry, *EntrySet) []types.Relationship { return nil }

func (base) NormalizeDetail(providers.Payload) map[string]any { return nil }

// newEntry stamps the fields every entry shares. Properties maps are
// created by the caller; raw keeps the untouched payload.
func newEntry(in Input, resourceType, id, name, status string, raw providers.Payload, props map[string]any) *types.ResourceEntry {
	if name == "" {
		name = id
	}
	return &types.ResourceEntry{
		ResourceType:  resourceType,
		AccountID:     in.Account,
		Region:        in.Region,
		ResourceID:    id,
		DisplayName:   name,
		Status:        status,
		Color:         colorFor(id),
		Properties:    props,
		RawProperties: raw,
		QueriedAt:     in.QueriedAt,
	}
}

// colorPalette holds presentation colors assigned to resources. Selection
// hashes the identifier, so the mapping is stable across runs.
var colorPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

func colorFor(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return colorPalette[h.Sum32()%uint32(len(colorPalette))]
}

// fetchTags pulls tags through the side channel when one is wired. Tag
// fetch failures are non-fatal: the entry simply carries no tags.
func fetchTags(ctx context.Context, in Input, resourceType, resourceID string) []types.Tag {
	if in.Tags == nil {
		return nil
	}
	tags, err := in.Tags.FetchTags(ctx, resourceType, resourceID)
	if err != nil {
		return nil
	}
	return tags
}

// Payload field helpers. AWS SDK structures arrive JSON-decoded, so
// nested values are map[string]any / []any and all numbers are float64.

// str returns the first non-empty string among the given keys.
func str(p providers.Payload, keys ...string) string {
	for _, key := range keys {
		if v, ok := p[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func num(p providers.Payload, key string) (float64, bool) {
	v, ok := p[key].(float64)
	return v, ok
}

func boolean(p providers.Payload, key string) bool {
	v, _ := p[key].(bool)
	return v
}

func sub(p providers.Payload, key string) providers.Payload {
	v, _ := p[key].(map[string]any)
	return v
}

func items(p providers.Payload, key string) []providers.Payload {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]providers.Payload, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringItems(p providers.Payload, key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// awsTags converts AWS-style tag lists ([{Key,Value}] or [{TagKey,TagValue}])
// into the ordered canonical form.
func awsTags(p providers.Payload, key string) []types.Tag {
	var tags []types.Tag
	for _, item := range items(p, key) {
		k := str(item, "Key", "TagKey")
		if k == "" {
			continue
		}
		tags = append(tags, types.Tag{Key: k, Value: str(item, "Value", "TagValue")})
	}
	return tags
}

// tagValue finds one tag by key in an AWS-style tag list.
func tagValue(p providers.Payload, listKey, tagKey string) string {
	for _, item := range items(p, listKey) {
		if str(item, "Key", "TagKey") == tagKey {
			return str(item, "Value", "TagValue")
		}
	}
	return ""
}

// setIf adds a property only when the value is non-empty.
func setIf(props map[string]any, key, value string) {
	if value != "" {
		props[key] = value
	}
}

// requireID errors when no identifier survived the fallback chain.
func requireID(resourceType, id string) error {
	if id == "" {
		return fmt.Errorf("%s: %w", resourceType, ErrNoIdentifier)
	}
	return nil
}
