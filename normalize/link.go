package normalize

import "github.com/karttahq/kartta/types"

// Link recomputes the relationship graph over a complete entry set.
// Existing edges are discarded first: relationships are derived data, and
// rebuilding from scratch keeps the pass idempotent. Entries are modified
// in place and returned for convenience.
func Link(reg *Registry, entries []types.ResourceEntry) []types.ResourceEntry {
	for i := range entries {
		entries[i].Relationships = nil
	}

	set := NewEntrySet(entries)

	for i := range entries {
		entry := &entries[i]
		var edges []types.Relationship

		// Nesting edges come straight from the parent fields so child
		// types need no extraction logic of their own.
		if entry.IsChild && entry.ParentResourceID != "" {
			if parent, ok := set.FindByID(entry.ParentResourceType, entry.ParentResourceID); ok {
				edges = append(edges, edgeTo(types.RelationChildOf, parent))
			}
		}

		edges = append(edges, reg.Lookup(entry.ResourceType).Relationships(entry, set)...)
		entry.Relationships = dedupeEdges(edges)
	}

	// Reverse ParentOf edges, in child set order for determinism.
	for i := range entries {
		child := &entries[i]
		if !child.IsChild || child.ParentResourceID == "" {
			continue
		}
		if parent, ok := set.FindByID(child.ParentResourceType, child.ParentResourceID); ok {
			parent.Relationships = appendEdge(parent.Relationships, edgeTo(types.RelationParentOf, child))
		}
	}

	return entries
}

func dedupeEdges(edges []types.Relationship) []types.Relationship {
	if len(edges) == 0 {
		return nil
	}
	seen := make(map[types.Relationship]bool, len(edges))
	out := edges[:0:0]
	for _, edge := range edges {
		if seen[edge] {
			continue
		}
		seen[edge] = true
		out = append(out, edge)
	}
	return out
}

func appendEdge(edges []types.Relationship, edge types.Relationship) []types.Relationship {
	for _, existing := range edges {
		if existing == edge {
			return edges
		}
	}
	return append(edges, edge)
}
