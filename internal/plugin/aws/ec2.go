package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// EC2Module discovers instances, volumes, security groups, elastic IPs and
// snapshots.
type EC2Module struct {
	module
	client func(aws.Config) EC2API
}

// NewEC2Module creates the EC2 module.
func NewEC2Module() *EC2Module {
	return &EC2Module{
		module: module{service: "ec2"},
		client: func(cfg aws.Config) EC2API { return ec2.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *EC2Module) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	steps := []func(context.Context, *discovery.Request, EC2API) error{
		m.instances,
		m.volumes,
		m.securityGroups,
		m.addresses,
		m.snapshots,
	}
	for _, step := range steps {
		if err := step(ctx, req, client); err != nil {
			return err
		}
	}
	return nil
}

func (m *EC2Module) instances(ctx context.Context, req *discovery.Request, client EC2API) error {
	var nextToken *string
	for {
		output, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe instances", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				id := aws.ToString(instance.InstanceId)
				b := req.NewBuilder(synthARN("ec2", req.Region, req.AccountID, "instance/"+id)).
					WithResourceID(id).
					WithResourceName(nameTag(instance.Tags, id)).
					WithConfiguration(instance).
					WithCreatedAt(instance.LaunchTime)

				err := publish(ctx, req, item{
					builder: b,
					typ:     "AWS::EC2::Instance",
					lookups: []discovery.Lookup{{
						Key: "disableApiTermination",
						Fetch: func(ctx context.Context) (any, error) {
							out, err := client.DescribeInstanceAttribute(ctx, &ec2.DescribeInstanceAttributeInput{
								InstanceId: aws.String(id),
								Attribute:  ec2types.InstanceAttributeNameDisableApiTermination,
							})
							if err != nil {
								return nil, err
							}
							return out.DisableApiTermination, nil
						},
					}},
					tags: []string{m.tag("instance")},
				})
				if err != nil {
					return err
				}
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}

func (m *EC2Module) volumes(ctx context.Context, req *discovery.Request, client EC2API) error {
	var nextToken *string
	for {
		output, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe volumes", err)
		}

		for _, vol := range output.Volumes {
			id := aws.ToString(vol.VolumeId)
			b := req.NewBuilder(synthARN("ec2", req.Region, req.AccountID, "volume/"+id)).
				WithResourceID(id).
				WithResourceName(nameTag(vol.Tags, id)).
				WithConfiguration(vol).
				WithCreatedAt(vol.CreateTime)
			if vol.Size != nil {
				b = b.WithMaxSizeInBytes(int64(*vol.Size) * gib)
			}

			if err := publish(ctx, req, item{builder: b, typ: "AWS::EC2::Volume", tags: []string{m.tag("volume")}}); err != nil {
				return err
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}

func (m *EC2Module) securityGroups(ctx context.Context, req *discovery.Request, client EC2API) error {
	var nextToken *string
	for {
		output, err := client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe security groups", err)
		}

		for _, sg := range output.SecurityGroups {
			id := aws.ToString(sg.GroupId)
			identity := aws.ToString(sg.SecurityGroupArn)
			if identity == "" {
				identity = synthARN("ec2", req.Region, req.AccountID, "security-group/"+id)
			}
			b := req.NewBuilder(identity).
				WithResourceID(id).
				WithResourceName(aws.ToString(sg.GroupName)).
				WithConfiguration(sg)

			if err := publish(ctx, req, item{builder: b, typ: "AWS::EC2::SecurityGroup", tags: []string{m.tag("securityGroup")}}); err != nil {
				return err
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}

func (m *EC2Module) addresses(ctx context.Context, req *discovery.Request, client EC2API) error {
	output, err := client.DescribeAddresses(ctx, &ec2.DescribeAddressesInput{})
	if err != nil {
		return listErr("describe addresses", err)
	}

	for _, addr := range output.Addresses {
		id := aws.ToString(addr.AllocationId)
		b := req.NewBuilder(synthARN("ec2", req.Region, req.AccountID, "elastic-ip/"+id)).
			WithResourceID(id).
			WithResourceName(aws.ToString(addr.PublicIp)).
			WithConfiguration(addr)

		if err := publish(ctx, req, item{builder: b, typ: "AWS::EC2::EIP", tags: []string{m.tag("eip")}}); err != nil {
			return err
		}
	}
	return nil
}

func (m *EC2Module) snapshots(ctx context.Context, req *discovery.Request, client EC2API) error {
	var nextToken *string
	for {
		output, err := client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
			OwnerIds:  []string{"self"},
			NextToken: nextToken,
		})
		if err != nil {
			return listErr("describe snapshots", err)
		}

		for _, snap := range output.Snapshots {
			id := aws.ToString(snap.SnapshotId)
			b := req.NewBuilder(synthARN("ec2", req.Region, req.AccountID, "snapshot/"+id)).
				WithResourceID(id).
				WithResourceName(nameTag(snap.Tags, id)).
				WithConfiguration(snap).
				WithCreatedAt(snap.StartTime)
			if snap.VolumeSize != nil {
				b = b.WithMaxSizeInBytes(int64(*snap.VolumeSize) * gib)
			}

			if err := publish(ctx, req, item{builder: b, typ: "AWS::EC2::Snapshot", tags: []string{m.tag("snapshot")}}); err != nil {
				return err
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}

// nameTag returns the Name tag, or fallback.
func nameTag(tags []ec2types.Tag, fallback string) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == "Name" {
			return aws.ToString(t.Value)
		}
	}
	return fallback
}
