package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// AutoScalingModule discovers Auto Scaling groups.
type AutoScalingModule struct {
	module
	client func(aws.Config) AutoScalingAPI
}

// NewAutoScalingModule creates the Auto Scaling module.
func NewAutoScalingModule() *AutoScalingModule {
	return &AutoScalingModule{
		module: module{service: "autoscaling"},
		client: func(cfg aws.Config) AutoScalingAPI { return autoscaling.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *AutoScalingModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe auto scaling groups", err)
		}

		for _, group := range output.AutoScalingGroups {
			name := aws.String(aws.ToString(group.AutoScalingGroupName))
			b := req.NewBuilder(aws.ToString(group.AutoScalingGroupARN)).
				WithResourceID(aws.ToString(name)).
				WithResourceName(aws.ToString(name)).
				WithConfiguration(group).
				WithCreatedAt(group.CreatedTime)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::AutoScaling::AutoScalingGroup",
				lookups: []discovery.Lookup{
					{Key: "scalingPolicies", Fetch: pages(func(ctx context.Context, token *string) ([]astypes.ScalingPolicy, *string, error) {
						out, err := client.DescribePolicies(ctx, &autoscaling.DescribePoliciesInput{AutoScalingGroupName: name, NextToken: token})
						if err != nil {
							return nil, nil, err
						}
						return out.ScalingPolicies, out.NextToken, nil
					})},
					{Key: "scheduledActions", Fetch: pages(func(ctx context.Context, token *string) ([]astypes.ScheduledUpdateGroupAction, *string, error) {
						out, err := client.DescribeScheduledActions(ctx, &autoscaling.DescribeScheduledActionsInput{AutoScalingGroupName: name, NextToken: token})
						if err != nil {
							return nil, nil, err
						}
						return out.ScheduledUpdateGroupActions, out.NextToken, nil
					})},
				},
				tags: []string{m.tag("autoScalingGroup")},
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
