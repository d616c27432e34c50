package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

// ec2InstanceNormalizer handles EC2 instances. Tags arrive inline on the
// listing payload.
type ec2InstanceNormalizer struct{ base }

func (ec2InstanceNormalizer) Type() string { return "ec2-instance" }

func (n ec2InstanceNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "InstanceId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "instance_type", str(raw, "InstanceType"))
	setIf(props, "image_id", str(raw, "ImageId"))
	setIf(props, "vpc_id", str(raw, "VpcId"))
	setIf(props, "subnet_id", str(raw, "SubnetId"))
	setIf(props, "private_ip", str(raw, "PrivateIpAddress"))
	setIf(props, "public_ip", str(raw, "PublicIpAddress"))
	setIf(props, "launch_time", str(raw, "LaunchTime"))
	if placement := sub(raw, "Placement"); placement != nil {
		setIf(props, "availability_zone", str(placement, "AvailabilityZone"))
	}

	var sgIDs []string
	for _, group := range items(raw, "SecurityGroups") {
		if gid := str(group, "GroupId"); gid != "" {
			sgIDs = append(sgIDs, gid)
		}
	}
	if len(sgIDs) > 0 {
		props["security_group_ids"] = sgIDs
	}
	setIf(props, "autoscaling_group", tagValue(raw, "Tags", "aws:autoscaling:groupName"))

	status := ""
	if state := sub(raw, "State"); state != nil {
		status = str(state, "Name")
	}

	entry := newEntry(in, n.Type(), id, tagValue(raw, "Tags", "Name"), status, raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (ec2InstanceNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship

	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		edges = append(edges, edgeTo(types.RelationDeployedIn, vpc))
	}
	if subnet, ok := siblings.FindByID("subnet", entry.PropertyString("subnet_id")); ok {
		edges = append(edges, edgeTo(types.RelationUses, subnet))
	}
	if sgIDs, ok := entry.Properties["security_group_ids"].([]string); ok {
		for _, sgID := range sgIDs {
			if sg, ok := siblings.FindByID("security-group", sgID); ok {
				edges = append(edges, edgeTo(types.RelationProtectedBy, sg))
			}
		}
	}
	if asg, ok := siblings.FindByID("autoscaling-group", entry.PropertyString("autoscaling_group")); ok {
		edges = append(edges, edgeTo(types.RelationMemberOf, asg))
	}

	return edges
}

// ebsVolumeNormalizer handles EBS volumes.
type ebsVolumeNormalizer struct{ base }

func (ebsVolumeNormalizer) Type() string { return "ebs-volume" }

func (n ebsVolumeNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "VolumeId")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "volume_type", str(raw, "VolumeType"))
	setIf(props, "availability_zone", str(raw, "AvailabilityZone"))
	if size, ok := num(raw, "Size"); ok {
		props["size_gb"] = size
	}
	props["encrypted"] = boolean(raw, "Encrypted")

	var attached []string
	for _, att := range items(raw, "Attachments") {
		if instanceID := str(att, "InstanceId"); instanceID != "" {
			attached = append(attached, instanceID)
		}
	}
	if len(attached) > 0 {
		props["attached_instance_ids"] = attached
	}

	entry := newEntry(in, n.Type(), id, tagValue(raw, "Tags", "Name"), str(raw, "State"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (ebsVolumeNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if ids, ok := entry.Properties["attached_instance_ids"].([]string); ok {
		for _, id := range ids {
			if instance, ok := siblings.FindByID("ec2-instance", id); ok {
				edges = append(edges, edgeTo(types.RelationAttachedTo, instance))
			}
		}
	}
	return edges
}

// autoscalingGroupNormalizer handles auto scaling groups.
type autoscalingGroupNormalizer struct{ base }

func (autoscalingGroupNormalizer) Type() string { return "autoscaling-group" }

func (n autoscalingGroupNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "AutoScalingGroupName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "AutoScalingGroupARN"))
	if v, ok := num(raw, "MinSize"); ok {
		props["min_size"] = v
	}
	if v, ok := num(raw, "MaxSize"); ok {
		props["max_size"] = v
	}
	if v, ok := num(raw, "DesiredCapacity"); ok {
		props["desired_capacity"] = v
	}

	var instanceIDs []string
	for _, inst := range items(raw, "Instances") {
		if iid := str(inst, "InstanceId"); iid != "" {
			instanceIDs = append(instanceIDs, iid)
		}
	}
	if len(instanceIDs) > 0 {
		props["instance_ids"] = instanceIDs
	}

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (autoscalingGroupNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if ids, ok := entry.Properties["instance_ids"].([]string); ok {
		for _, id := range ids {
			if instance, ok := siblings.FindByID("ec2-instance", id); ok {
				edges = append(edges, edgeTo(types.RelationContains, instance))
			}
		}
	}
	return edges
}
