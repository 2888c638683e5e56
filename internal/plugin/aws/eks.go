package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"

	"github.com/yairfalse/kartta/internal/discovery"
)

// EKSModule discovers Kubernetes clusters.
type EKSModule struct {
	module
	client func(aws.Config) EKSAPI
}

// NewEKSModule creates the EKS module.
func NewEKSModule() *EKSModule {
	return &EKSModule{
		module: module{service: "eks"},
		client: func(cfg aws.Config) EKSAPI { return eks.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *EKSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
		if err != nil {
			return listErr("list clusters", err)
		}

		for _, name := range output.Clusters {
			if err := m.publishCluster(ctx, req, client, name); err != nil {
				return err
			}
		}

		if aws.ToString(output.NextToken) == "" {
			return nil
		}
		nextToken = output.NextToken
	}
}

func (m *EKSModule) publishCluster(ctx context.Context, req *discovery.Request, client EKSAPI, name string) error {
	desc, err := client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		req.Skip("AWS::EKS::Cluster", fmt.Errorf("describe cluster %s: %w", name, err))
		return nil
	}
	cluster := desc.Cluster
	if cluster == nil {
		return nil
	}

	b := req.NewBuilder(aws.ToString(cluster.Arn)).
		WithResourceID(aws.ToString(cluster.Id)).
		WithResourceName(name).
		WithConfiguration(cluster).
		WithCreatedAt(cluster.CreatedAt)

	return publish(ctx, req, item{
		builder: b,
		typ:     "AWS::EKS::Cluster",
		lookups: []discovery.Lookup{
			{Key: "nodegroups", Fetch: pages(func(ctx context.Context, token *string) ([]string, *string, error) {
				out, err := client.ListNodegroups(ctx, &eks.ListNodegroupsInput{ClusterName: aws.String(name), NextToken: token})
				if err != nil {
					return nil, nil, err
				}
				return out.Nodegroups, out.NextToken, nil
			})},
			{Key: "addons", Fetch: pages(func(ctx context.Context, token *string) ([]string, *string, error) {
				out, err := client.ListAddons(ctx, &eks.ListAddonsInput{ClusterName: aws.String(name), NextToken: token})
				if err != nil {
					return nil, nil, err
				}
				return out.Addons, out.NextToken, nil
			})},
		},
		tags: []string{m.tag("cluster")},
	})
}
