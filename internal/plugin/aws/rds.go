package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/pkg/resource"
)

// RDSModule discovers database instances.
type RDSModule struct {
	module
	client  func(aws.Config) RDSAPI
	metrics func(aws.Config) CloudWatchAPI
}

// NewRDSModule creates the RDS module.
func NewRDSModule() *RDSModule {
	return &RDSModule{
		module:  module{service: "rds"},
		client:  func(cfg aws.Config) RDSAPI { return rds.NewFromConfig(cfg) },
		metrics: newCloudWatch,
	}
}

// Discover implements discovery.Module.
func (m *RDSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)
	cw := m.metrics(cfg)

	var marker *string
	for {
		output, err := client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
		if err != nil {
			return listErr("describe db instances", err)
		}

		for _, db := range output.DBInstances {
			if err := m.publishInstance(ctx, req, client, cw, db); err != nil {
				return err
			}
		}

		if aws.ToString(output.Marker) == "" {
			return nil
		}
		marker = output.Marker
	}
}

func (m *RDSModule) publishInstance(ctx context.Context, req *discovery.Request, client RDSAPI, cw CloudWatchAPI, db rdstypes.DBInstance) error {
	id := aws.ToString(db.DBInstanceIdentifier)
	arn := aws.ToString(db.DBInstanceArn)

	b := req.NewBuilder(arn).
		WithResourceID(aws.ToString(db.DbiResourceId)).
		WithResourceName(id).
		WithConfiguration(db).
		WithCreatedAt(db.InstanceCreateTime)

	return publish(ctx, req, item{
		builder: b,
		typ:     "AWS::RDS::DBInstance",
		lookups: []discovery.Lookup{
			{Key: "snapshots", Fetch: pages(func(ctx context.Context, marker *string) ([]rdstypes.DBSnapshot, *string, error) {
				out, err := client.DescribeDBSnapshots(ctx, &rds.DescribeDBSnapshotsInput{DBInstanceIdentifier: aws.String(id), Marker: marker})
				if err != nil {
					return nil, nil, err
				}
				return out.DBSnapshots, out.Marker, nil
			})},
			{Key: "tags", Fetch: discovery.Call(func(ctx context.Context) ([]rdstypes.Tag, error) {
				out, err := client.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{ResourceName: aws.String(arn)})
				if err != nil {
					return nil, err
				}
				return out.TagList, nil
			})},
		},
		derive: func(ctx context.Context, r *resource.Resource) {
			if db.AllocatedStorage == nil {
				return
			}
			capacity := int64(*db.AllocatedStorage) * gib
			r.SetMaxSizeInBytes(capacity)

			discovery.Derive(r, "sizeInBytes", func() (int64, bool, error) {
				free, err := maxMetric(ctx, cw, "AWS/RDS", "FreeStorageSpace", map[string]string{"DBInstanceIdentifier": id})
				if err != nil || free == nil {
					return 0, false, err
				}
				return capacity - int64(*free), true, nil
			}, r.SetSizeInBytes)
		},
		tags: []string{m.tag("dbInstance")},
	})
}
