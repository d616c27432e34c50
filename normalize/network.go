package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

type vpcNormalizer struct{ base }

func (vpcNormalizer) Type() string { return "vpc" }

func (n vpcNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "VpcId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "cidr_block", str(raw, "CidrBlock"))
	props["is_default"] = boolean(raw, "IsDefault")

	entry := newEntry(in, n.Type(), id, tagValue(raw, "Tags", "Name"), str(raw, "State"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (vpcNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	siblings.OfType("subnet", func(subnet *types.ResourceEntry) {
		if subnet.PropertyString("vpc_id") == entry.ResourceID {
			edges = append(edges, edgeTo(types.RelationContains, subnet))
		}
	})
	return edges
}

type subnetNormalizer struct{ base }

func (subnetNormalizer) Type() string { return "subnet" }

func (n subnetNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "SubnetId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "vpc_id", str(raw, "VpcId"))
	setIf(props, "cidr_block", str(raw, "CidrBlock"))
	setIf(props, "availability_zone", str(raw, "AvailabilityZone"))
	if v, ok := num(raw, "AvailableIpAddressCount"); ok {
		props["available_ips"] = v
	}

	entry := newEntry(in, n.Type(), id, tagValue(raw, "Tags", "Name"), str(raw, "State"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (subnetNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		return []types.Relationship{edgeTo(types.RelationDeployedIn, vpc)}
	}
	return nil
}

type securityGroupNormalizer struct{ base }

func (securityGroupNormalizer) Type() string { return "security-group" }

func (n securityGroupNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "GroupId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "group_name", str(raw, "GroupName"))
	setIf(props, "vpc_id", str(raw, "VpcId"))
	setIf(props, "description", str(raw, "Description"))
	props["ingress_rules"] = len(items(raw, "IpPermissions"))
	props["egress_rules"] = len(items(raw, "IpPermissionsEgress"))

	entry := newEntry(in, n.Type(), id, str(raw, "GroupName"), "", raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (securityGroupNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		return []types.Relationship{edgeTo(types.RelationDeployedIn, vpc)}
	}
	return nil
}

// loadBalancerNormalizer handles ELBv2 load balancers. The ARN is the
// identifier; names are not unique across a region's lifetime.
type loadBalancerNormalizer struct{ base }

func (loadBalancerNormalizer) Type() string { return "load-balancer" }

func (n loadBalancerNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "LoadBalancerArn", "LoadBalancerName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{
		"arn": str(raw, "LoadBalancerArn"),
	}
	setIf(props, "dns_name", str(raw, "DNSName"))
	setIf(props, "scheme", str(raw, "Scheme"))
	setIf(props, "lb_type", str(raw, "Type"))
	setIf(props, "vpc_id", str(raw, "VpcId"))
	if sgs := stringItems(raw, "SecurityGroups"); len(sgs) > 0 {
		props["security_group_ids"] = sgs
	}

	status := ""
	if state := sub(raw, "State"); state != nil {
		status = str(state, "Code")
	}

	entry := newEntry(in, n.Type(), id, str(raw, "LoadBalancerName"), status, raw, props)
	entry.Tags = fetchTags(ctx, in, n.Type(), id)
	return entry, nil
}

func (loadBalancerNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		edges = append(edges, edgeTo(types.RelationDeployedIn, vpc))
	}
	if sgIDs, ok := entry.Properties["security_group_ids"].([]string); ok {
		for _, sgID := range sgIDs {
			if sg, ok := siblings.FindByID("security-group", sgID); ok {
				edges = append(edges, edgeTo(types.RelationProtectedBy, sg))
			}
		}
	}
	return edges
}

type targetGroupNormalizer struct{ base }

func (targetGroupNormalizer) Type() string { return "target-group" }

func (n targetGroupNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "TargetGroupArn", "TargetGroupName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{
		"arn": str(raw, "TargetGroupArn"),
	}
	setIf(props, "protocol", str(raw, "Protocol"))
	setIf(props, "target_type", str(raw, "TargetType"))
	setIf(props, "vpc_id", str(raw, "VpcId"))
	if port, ok := num(raw, "Port"); ok {
		props["port"] = port
	}
	if arns := stringItems(raw, "LoadBalancerArns"); len(arns) > 0 {
		props["load_balancer_arns"] = arns
	}

	entry := newEntry(in, n.Type(), id, str(raw, "TargetGroupName"), "", raw, props)
	return entry, nil
}

func (targetGroupNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if arns, ok := entry.Properties["load_balancer_arns"].([]string); ok {
		for _, arn := range arns {
			if lb, ok := siblings.FindByARN(arn); ok {
				edges = append(edges, edgeTo(types.RelationAttachedTo, lb))
			}
		}
	}
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		edges = append(edges, edgeTo(types.RelationDeployedIn, vpc))
	}
	return edges
}
