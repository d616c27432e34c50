package normalize

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// sqsQueueNormalizer handles SQS queues. The listing payload is the queue
// URL plus the basic attribute set; a deep describe fetches all
// attributes. Redrive policies become DLQ edges in both directions.
type sqsQueueNormalizer struct{ base }

func (sqsQueueNormalizer) Type() string { return "sqs-queue" }

func (sqsQueueNormalizer) Enrichable() bool { return true }

func (n sqsQueueNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	queueURL := str(raw, "QueueUrl")
	id := queueNameFromURL(queueURL)
	if id == "" {
		id = str(raw, "QueueName")
	}
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "queue_url", queueURL)

	attrs := sub(raw, "Attributes")
	if attrs != nil {
		setIf(props, "arn", str(attrs, "QueueArn"))
		setIf(props, "visibility_timeout", str(attrs, "VisibilityTimeout"))
		setIf(props, "message_retention_period", str(attrs, "MessageRetentionPeriod"))
		if target := redriveTarget(str(attrs, "RedrivePolicy")); target != "" {
			props["redrive_target_arn"] = target
		}
	}

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), queueURL)
	return entry, nil
}

func (sqsQueueNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship

	// Outgoing: this queue's redrive policy names its dead-letter queue.
	if dlq, ok := siblings.FindByARN(entry.PropertyString("redrive_target_arn")); ok {
		edges = append(edges, edgeTo(types.RelationDeadLetterQueue, dlq))
	}

	// Incoming: any sibling queue whose redrive policy targets this one.
	ownARN := entry.ARN()
	if ownARN != "" {
		siblings.OfType("sqs-queue", func(other *types.ResourceEntry) {
			if other.ResourceID == entry.ResourceID && other.AccountID == entry.AccountID && other.Region == entry.Region {
				return
			}
			if other.PropertyString("redrive_target_arn") == ownARN {
				edges = append(edges, edgeTo(types.RelationServesAsDlq, other))
			}
		})
	}

	return edges
}

func (sqsQueueNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	attrs := sub(detail, "Attributes")
	if attrs == nil {
		attrs = detail
	}

	props := map[string]any{}
	setIf(props, "arn", str(attrs, "QueueArn"))
	setIf(props, "approximate_messages", str(attrs, "ApproximateNumberOfMessages"))
	setIf(props, "approximate_messages_not_visible", str(attrs, "ApproximateNumberOfMessagesNotVisible"))
	setIf(props, "visibility_timeout", str(attrs, "VisibilityTimeout"))
	setIf(props, "message_retention_period", str(attrs, "MessageRetentionPeriod"))
	setIf(props, "created_timestamp", str(attrs, "CreatedTimestamp"))
	if target := redriveTarget(str(attrs, "RedrivePolicy")); target != "" {
		props["redrive_target_arn"] = target
	}
	return props
}

// queueNameFromURL extracts the queue name, the last path segment of the
// queue URL.
func queueNameFromURL(queueURL string) string {
	if queueURL == "" {
		return ""
	}
	idx := strings.LastIndex(queueURL, "/")
	if idx < 0 || idx == len(queueURL)-1 {
		return ""
	}
	return queueURL[idx+1:]
}

// redriveTarget parses the deadLetterTargetArn out of a redrive policy
// document.
func redriveTarget(policy string) string {
	if policy == "" {
		return ""
	}
	var doc struct {
		DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	}
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		return ""
	}
	return doc.DeadLetterTargetArn
}
