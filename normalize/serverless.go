package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// lambdaFunctionNormalizer handles Lambda functions.
type lambdaFunctionNormalizer struct{ base }

func (lambdaFunctionNormalizer) Type() string { return "lambda-function" }

func (lambdaFunctionNormalizer) Enrichable() bool { return true }

func (n lambdaFunctionNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "FunctionName", "FunctionArn")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "FunctionArn"))
	setIf(props, "runtime", str(raw, "Runtime"))
	setIf(props, "handler", str(raw, "Handler"))
	setIf(props, "role_arn", str(raw, "Role"))
	setIf(props, "last_modified", str(raw, "LastModified"))
	if mem, ok := num(raw, "MemorySize"); ok {
		props["memory_mb"] = mem
	}
	if timeout, ok := num(raw, "Timeout"); ok {
		props["timeout_seconds"] = timeout
	}
	if dlc := sub(raw, "DeadLetterConfig"); dlc != nil {
		setIf(props, "dead_letter_target_arn", str(dlc, "TargetArn"))
	}
	if vpcCfg := sub(raw, "VpcConfig"); vpcCfg != nil {
		setIf(props, "vpc_id", str(vpcCfg, "VpcId"))
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "State"), raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), str(raw, "FunctionArn"))
	return entry, nil
}

func (lambdaFunctionNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if role, ok := siblings.FindByARN(entry.PropertyString("role_arn")); ok {
		edges = append(edges, edgeTo(types.RelationUses, role))
	}
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		edges = append(edges, edgeTo(types.RelationDeployedIn, vpc))
	}
	if dlq, ok := siblings.FindByARN(entry.PropertyString("dead_letter_target_arn")); ok {
		edges = append(edges, edgeTo(types.RelationDeadLetterQueue, dlq))
	}
	return edges
}

func (lambdaFunctionNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	cfg := sub(detail, "Configuration")
	if cfg == nil {
		cfg = detail
	}

	props := map[string]any{}
	setIf(props, "state_reason", str(cfg, "StateReason"))
	setIf(props, "last_update_status", str(cfg, "LastUpdateStatus"))
	setIf(props, "architecture", firstOf(stringItems(cfg, "Architectures")))
	if size, ok := num(cfg, "CodeSize"); ok {
		props["code_size_bytes"] = size
	}
	props["layer_count"] = len(items(cfg, "Layers"))
	if code := sub(detail, "Code"); code != nil {
		setIf(props, "code_repository_type", str(code, "RepositoryType"))
	}
	return props
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// logGroupNormalizer handles CloudWatch log groups.
type logGroupNormalizer struct{ base }

func (logGroupNormalizer) Type() string { return "log-group" }

func (n logGroupNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "LogGroupName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "Arn"))
	if days, ok := num(raw, "RetentionInDays"); ok {
		props["retention_days"] = days
	}
	if size, ok := num(raw, "StoredBytes"); ok {
		props["stored_bytes"] = size
	}

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	return entry, nil
}
