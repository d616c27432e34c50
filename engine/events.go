package engine

import "github.com/karttahq/kartta/types"

// EventKind identifies one step of the query pipeline.
type EventKind string

const (
	EventPhase1Started         EventKind = "phase1_started"
	EventPhase1QueryCompleted  EventKind = "phase1_query_completed"
	EventPhase1QueryFailed     EventKind = "phase1_query_failed"
	EventTagFetchingProgress   EventKind = "tag_fetching_progress"
	EventTagFetchingCompleted  EventKind = "tag_fetching_completed"
	EventPhase1Completed       EventKind = "phase1_completed"
	EventPhase2Started         EventKind = "phase2_started"
	EventPhase2Progress        EventKind = "phase2_progress"
	EventPhase2Completed       EventKind = "phase2_completed"
	EventCompleted             EventKind = "completed"
	EventFailed                EventKind = "failed"
)

// Event is one progress notification from a running query. Exactly one
// terminal event (Completed or Failed) closes the stream.
type Event struct {
	Kind EventKind

	// Phase1Started
	TotalQueries int
	QueryKeys    []string

	// Phase1QueryCompleted / Phase1QueryFailed
	QueryKey   string
	Cumulative int
	Err        error
	Category   ErrorCategory
	Severity   Severity

	// TagFetchingProgress / TagFetchingCompleted
	TagsFetched int

	// Phase2Started / Phase2Progress
	TotalResources int
	ResourceType   string
	Processed      int

	// Phase1Completed / Phase2Completed / Completed
	Resources []types.ResourceEntry
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}
