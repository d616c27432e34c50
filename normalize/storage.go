package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// s3BucketNormalizer handles S3 buckets, a global type. Listing is just
// name and creation date; versioning and encryption come from enrichment,
// tags from the side channel.
type s3BucketNormalizer struct{ base }

func (s3BucketNormalizer) Type() string { return "s3-bucket" }

func (s3BucketNormalizer) Enrichable() bool { return true }

func (n s3BucketNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "Name")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "creation_date", str(raw, "CreationDate"))

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), id)
	return entry, nil
}

func (s3BucketNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	props := map[string]any{}
	setIf(props, "location", str(detail, "Location"))
	setIf(props, "versioning", str(detail, "Versioning"))
	setIf(props, "encryption", str(detail, "Encryption"))
	if v, ok := detail["PublicAccessBlocked"]; ok {
		props["public_access_blocked"] = v
	}
	return props
}

// cloudtrailTrailNormalizer handles CloudTrail trails.
type cloudtrailTrailNormalizer struct{ base }

func (cloudtrailTrailNormalizer) Type() string { return "cloudtrail-trail" }

func (cloudtrailTrailNormalizer) Enrichable() bool { return true }

func (n cloudtrailTrailNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "Name", "TrailARN")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "TrailARN"))
	setIf(props, "s3_bucket", str(raw, "S3BucketName"))
	setIf(props, "home_region", str(raw, "HomeRegion"))
	props["is_multi_region"] = boolean(raw, "IsMultiRegionTrail")
	props["is_organization_trail"] = boolean(raw, "IsOrganizationTrail")

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	return entry, nil
}

func (cloudtrailTrailNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	if bucket, ok := siblings.FindByID("s3-bucket", entry.PropertyString("s3_bucket")); ok {
		return []types.Relationship{edgeTo(types.RelationUses, bucket)}
	}
	return nil
}

func (cloudtrailTrailNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	props := map[string]any{}
	props["is_logging"] = boolean(detail, "IsLogging")
	setIf(props, "latest_delivery_time", str(detail, "LatestDeliveryTime"))
	setIf(props, "latest_delivery_error", str(detail, "LatestDeliveryError"))
	return props
}
