package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// describeClustersBatch is the most clusters DescribeClusters accepts.
const describeClustersBatch = 100

// ECSModule discovers container clusters.
type ECSModule struct {
	module
	client func(aws.Config) ECSAPI
}

// NewECSModule creates the ECS module.
func NewECSModule() *ECSModule {
	return &ECSModule{
		module: module{service: "ecs"},
		client: func(cfg aws.Config) ECSAPI { return ecs.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *ECSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return listErr("list clusters", err)
		}

		for start := 0; start < len(output.ClusterArns); start += describeClustersBatch {
			end := min(start+describeClustersBatch, len(output.ClusterArns))
			desc, err := client.DescribeClusters(ctx, &ecs.DescribeClustersInput{
				Clusters: output.ClusterArns[start:end],
				Include:  []ecstypes.ClusterField{ecstypes.ClusterFieldTags, ecstypes.ClusterFieldSettings},
			})
			if err != nil {
				return listErr("describe clusters", err)
			}

			for _, cluster := range desc.Clusters {
				if err := m.publishCluster(ctx, req, client, cluster); err != nil {
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

func (m *ECSModule) publishCluster(ctx context.Context, req *discovery.Request, client ECSAPI, cluster ecstypes.Cluster) error {
	clusterARN := aws.ToString(cluster.ClusterArn)
	b := req.NewBuilder(clusterARN).
		WithResourceID(clusterARN).
		WithResourceName(aws.ToString(cluster.ClusterName)).
		WithConfiguration(cluster)

	return publish(ctx, req, item{
		builder: b,
		typ:     "AWS::ECS::Cluster",
		lookups: []discovery.Lookup{{
			Key: "services",
			Fetch: pages(func(ctx context.Context, token *string) ([]string, *string, error) {
				out, err := client.ListServices(ctx, &ecs.ListServicesInput{Cluster: aws.String(clusterARN), NextToken: token})
				if err != nil {
					return nil, nil, err
				}
				return out.ServiceArns, out.NextToken, nil
			}),
		}},
		tags: []string{m.tag("cluster")},
	})
}
