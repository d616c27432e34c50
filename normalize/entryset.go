package normalize

import "github.com/karttahq/kartta/types"

// EntrySet indexes a normalized entry collection for relationship
// extraction. Built once per linking pass; read-only afterwards.
type EntrySet struct {
	entries []types.ResourceEntry
	byRef   map[string]int // "{type}\x00{id}" -> index
	byARN   map[string]int
}

// NewEntrySet indexes entries by (type, id) and by ARN. On duplicate keys
// the first entry wins, matching first-seen order.
func NewEntrySet(entries []types.ResourceEntry) *EntrySet {
	s := &EntrySet{
		entries: entries,
		byRef:   make(map[string]int, len(entries)),
		byARN:   make(map[string]int),
	}
	for i := range entries {
		ref := refKey(entries[i].ResourceType, entries[i].ResourceID)
		if _, ok := s.byRef[ref]; !ok {
			s.byRef[ref] = i
		}
		if arn := entries[i].ARN(); arn != "" {
			if _, ok := s.byARN[arn]; !ok {
				s.byARN[arn] = i
			}
		}
	}
	return s
}

func refKey(resourceType, id string) string {
	return resourceType + "\x00" + id
}

// FindByID returns the sibling with the given type and resource ID.
func (s *EntrySet) FindByID(resourceType, id string) (*types.ResourceEntry, bool) {
	if id == "" {
		return nil, false
	}
	idx, ok := s.byRef[refKey(resourceType, id)]
	if !ok {
		return nil, false
	}
	return &s.entries[idx], true
}

// FindByARN returns the sibling whose arn property matches.
func (s *EntrySet) FindByARN(arn string) (*types.ResourceEntry, bool) {
	if arn == "" {
		return nil, false
	}
	idx, ok := s.byARN[arn]
	if !ok {
		return nil, false
	}
	return &s.entries[idx], true
}

// OfType calls fn for each sibling of the given type, in set order.
func (s *EntrySet) OfType(resourceType string, fn func(*types.ResourceEntry)) {
	for i := range s.entries {
		if s.entries[i].ResourceType == resourceType {
			fn(&s.entries[i])
		}
	}
}

// Len returns the number of indexed entries.
func (s *EntrySet) Len() int {
	return len(s.entries)
}

// edgeTo builds a relationship pointing at a resolved sibling.
func edgeTo(t types.RelationshipType, target *types.ResourceEntry) types.Relationship {
	return types.Relationship{
		Type:               t,
		TargetResourceID:   target.ResourceID,
		TargetResourceType: target.ResourceType,
	}
}
