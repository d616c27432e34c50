package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// genericNormalizer is the fallback for resource types without a
// registered normalizer. It walks a chain of common identifier fields and
// fails per-item when none matches, so an unknown type still yields usable
// entries instead of aborting the batch.
type genericNormalizer struct{ base }

// idFallbacks is the identifier chain, most specific first.
var idFallbacks = []string{
	"Id", "ID", "Arn", "ARN", "Name", "ResourceId", "ResourceArn", "ResourceName",
}

func (genericNormalizer) Type() string { return "" }

func (genericNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, idFallbacks...)
	if id == "" {
		return nil, ErrNoIdentifier
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "Arn", "ARN", "ResourceArn"))
	setIf(props, "name", str(raw, "Name", "ResourceName"))

	resourceType := in.ResourceType
	if resourceType == "" {
		resourceType = "unknown"
	}
	entry := newEntry(in, resourceType, id, str(raw, "Name", "ResourceName"), str(raw, "Status", "State"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}
