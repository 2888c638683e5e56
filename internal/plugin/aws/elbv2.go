package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// ELBModule discovers application, network and gateway load balancers.
type ELBModule struct {
	module
	client func(aws.Config) ELBAPI
}

// NewELBModule creates the load balancer module.
func NewELBModule() *ELBModule {
	return &ELBModule{
		module: module{service: "elbv2"},
		client: func(cfg aws.Config) ELBAPI { return elbv2.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *ELBModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var marker *string
	for {
		output, err := client.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			return listErr("describe load balancers", err)
		}

		for _, lb := range output.LoadBalancers {
			lbARN := aws.String(aws.ToString(lb.LoadBalancerArn))
			b := req.NewBuilder(aws.ToString(lbARN)).
				WithResourceID(aws.ToString(lbARN)).
				WithResourceName(aws.ToString(lb.LoadBalancerName)).
				WithConfiguration(lb).
				WithCreatedAt(lb.CreatedTime)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::ElasticLoadBalancingV2::LoadBalancer",
				lookups: []discovery.Lookup{
					{Key: "attributes", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.DescribeLoadBalancerAttributes(ctx, &elbv2.DescribeLoadBalancerAttributesInput{LoadBalancerArn: lbARN})
						if err != nil {
							return nil, err
						}
						return out.Attributes, nil
					}},
					{Key: "listeners", Fetch: pages(func(ctx context.Context, marker *string) ([]elbv2types.Listener, *string, error) {
						out, err := client.DescribeListeners(ctx, &elbv2.DescribeListenersInput{LoadBalancerArn: lbARN, Marker: marker})
						if err != nil {
							return nil, nil, err
						}
						return out.Listeners, out.NextMarker, nil
					})},
					{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: []string{aws.ToString(lbARN)}})
						if err != nil {
							return nil, err
						}
						if len(out.TagDescriptions) == 0 {
							return nil, nil
						}
						return out.TagDescriptions[0].Tags, nil
					}},
				},
				tags: []string{m.tag("loadBalancer")},
			})
			if err != nil {
				return err
			}
		}

		if aws.ToString(output.NextMarker) == "" {
			return nil
		}
		marker = output.NextMarker
	}
}
