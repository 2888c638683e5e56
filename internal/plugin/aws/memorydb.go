package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	mdbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// MemoryDBModule discovers MemoryDB clusters.
type MemoryDBModule struct {
	module
	client func(aws.Config) MemoryDBAPI
}

// NewMemoryDBModule creates the MemoryDB module.
func NewMemoryDBModule() *MemoryDBModule {
	return &MemoryDBModule{
		module: module{service: "memorydb"},
		client: func(cfg aws.Config) MemoryDBAPI { return memorydb.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *MemoryDBModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.DescribeClusters(ctx, &memorydb.DescribeClustersInput{
			NextToken:        nextToken,
			ShowShardDetails: aws.Bool(true),
		})
		if err != nil {
			return listErr("describe clusters", err)
		}

		for _, cluster := range output.Clusters {
			name := aws.String(aws.ToString(cluster.Name))
			clusterARN := aws.String(aws.ToString(cluster.ARN))
			b := req.NewBuilder(aws.ToString(clusterARN)).
				WithResourceID(aws.ToString(name)).
				WithResourceName(aws.ToString(name)).
				WithConfiguration(cluster)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::MemoryDB::Cluster",
				lookups: []discovery.Lookup{
					{Key: "snapshots", Fetch: pages(func(ctx context.Context, token *string) ([]mdbtypes.Snapshot, *string, error) {
						out, err := client.DescribeSnapshots(ctx, &memorydb.DescribeSnapshotsInput{ClusterName: name, NextToken: token})
						if err != nil {
							return nil, nil, err
						}
						return out.Snapshots, out.NextToken, nil
					})},
					{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.ListTags(ctx, &memorydb.ListTagsInput{ResourceArn: clusterARN})
						if err != nil {
							return nil, err
						}
						return out.TagList, nil
					}},
				},
				tags: []string{m.tag("cluster")},
			})
			if err != nil {
				return err
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}
