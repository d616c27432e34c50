package normalize

import (
	"context"
	"strings"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// iamRoleNormalizer handles IAM roles, a global type. Listing carries no
// tags, so the side channel is used when wired.
type iamRoleNormalizer struct{ base }

func (iamRoleNormalizer) Type() string { return "iam-role" }

func (n iamRoleNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "RoleName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "Arn"))
	setIf(props, "path", str(raw, "Path"))
	setIf(props, "create_date", str(raw, "CreateDate"))
	setIf(props, "description", str(raw, "Description"))
	if max, ok := num(raw, "MaxSessionDuration"); ok {
		props["max_session_duration"] = max
	}

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), id)
	return entry, nil
}

// kmsKeyNormalizer handles KMS keys. ListKeys returns bare identifiers;
// state and usage come from enrichment.
type kmsKeyNormalizer struct{ base }

func (kmsKeyNormalizer) Type() string { return "kms-key" }

func (kmsKeyNormalizer) Enrichable() bool { return true }

func (n kmsKeyNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "KeyId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "KeyArn"))

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	return entry, nil
}

func (kmsKeyNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	meta := sub(detail, "KeyMetadata")
	if meta == nil {
		meta = detail
	}

	props := map[string]any{}
	setIf(props, "key_state", str(meta, "KeyState"))
	setIf(props, "key_usage", str(meta, "KeyUsage"))
	setIf(props, "key_manager", str(meta, "KeyManager"))
	setIf(props, "description", str(meta, "Description"))
	setIf(props, "creation_date", str(meta, "CreationDate"))
	props["enabled"] = boolean(meta, "Enabled")
	return props
}

// route53ZoneNormalizer handles hosted zones, a global type. The API
// prefixes zone IDs with "/hostedzone/"; the bare ID is canonical.
type route53ZoneNormalizer struct{ base }

func (route53ZoneNormalizer) Type() string { return "route53-hosted-zone" }

func (n route53ZoneNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := strings.TrimPrefix(str(raw, "Id"), "/hostedzone/")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "zone_name", str(raw, "Name"))
	if count, ok := num(raw, "ResourceRecordSetCount"); ok {
		props["record_count"] = count
	}
	if cfg := sub(raw, "Config"); cfg != nil {
		props["private"] = boolean(cfg, "PrivateZone")
		setIf(props, "comment", str(cfg, "Comment"))
	}

	entry := newEntry(in, n.Type(), id, strings.TrimSuffix(str(raw, "Name"), "."), "", raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), id)
	return entry, nil
}
