package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/karttahq/kartta/types"
)

// CollectResult is the drained outcome of one blocking invocation.
type CollectResult struct {
	Entries []types.ResourceEntry `json:"data"`
	Count   int                   `json:"count"`

	// Partial is set when the detail wait expired and the entries carry
	// listing data only.
	Partial bool `json:"partial,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Collect drives one invocation to completion and returns the merged
// result. A positive detailWait bounds how long Collect waits for
// enrichment after listing finishes; on expiry the listing-only entries
// are returned with Partial set. The pipeline itself runs on, its cache
// writes land whenever enrichment finishes.
func (e *Engine) Collect(ctx context.Context, scope types.QueryScope, detailWait time.Duration) (*CollectResult, error) {
	q, err := e.Execute(ctx, scope)
	if err != nil {
		return nil, err
	}

	result := &CollectResult{}
	var listed []types.ResourceEntry
	var detailDeadline <-chan time.Time

	for {
		select {
		case ev, ok := <-q.events:
			if !ok {
				result.Entries = listed
				result.Count = len(listed)
				return result, q.err
			}
			switch ev.Kind {
			case EventPhase1QueryFailed:
				msg := fmt.Sprintf("%s: %v (%s)", ev.QueryKey, ev.Err, ev.Category)
				if ev.Severity == SeverityWarning {
					result.Warnings = append(result.Warnings, msg)
				} else {
					result.Errors = append(result.Errors, msg)
				}
			case EventPhase1Completed:
				listed = ev.Resources
				if detailWait > 0 {
					detailDeadline = time.After(detailWait)
				}
			case EventCompleted:
				listed = ev.Resources
			case EventFailed:
				return nil, ev.Err
			}

		case <-detailDeadline:
			// Keep draining in the background so the event channel
			// never stalls the pipeline.
			go func() {
				for range q.events {
				}
			}()
			result.Entries = listed
			result.Count = len(listed)
			result.Partial = true
			return result, nil

		case <-ctx.Done():
			go func() {
				for range q.events {
				}
			}()
			return nil, ctx.Err()
		}
	}
}
