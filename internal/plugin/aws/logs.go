package aws

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// LogsModule discovers CloudWatch log groups.
type LogsModule struct {
	module
	client func(aws.Config) CloudWatchLogsAPI
}

// NewLogsModule creates the CloudWatch Logs module.
func NewLogsModule() *LogsModule {
	return &LogsModule{
		module: module{service: "logs"},
		client: func(cfg aws.Config) CloudWatchLogsAPI { return cloudwatchlogs.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *LogsModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe log groups", err)
		}

		for _, group := range output.LogGroups {
			name := aws.String(aws.ToString(group.LogGroupName))
			b := req.NewBuilder(strings.TrimSuffix(aws.ToString(group.Arn), ":*")).
				WithResourceID(aws.ToString(name)).
				WithResourceName(aws.ToString(name)).
				WithConfiguration(group)
			if group.CreationTime != nil {
				created := time.UnixMilli(*group.CreationTime)
				b = b.WithCreatedAt(&created)
			}
			if group.StoredBytes != nil {
				b = b.WithSizeInBytes(*group.StoredBytes)
			}

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::Logs::LogGroup",
				lookups: []discovery.Lookup{
					{Key: "metricFilters", Fetch: pages(func(ctx context.Context, token *string) ([]logstypes.MetricFilter, *string, error) {
						out, err := client.DescribeMetricFilters(ctx, &cloudwatchlogs.DescribeMetricFiltersInput{LogGroupName: name, NextToken: token})
						if err != nil {
							return nil, nil, err
						}
						return out.MetricFilters, out.NextToken, nil
					})},
					{Key: "subscriptionFilters", Fetch: pages(func(ctx context.Context, token *string) ([]logstypes.SubscriptionFilter, *string, error) {
						out, err := client.DescribeSubscriptionFilters(ctx, &cloudwatchlogs.DescribeSubscriptionFiltersInput{LogGroupName: name, NextToken: token})
						if err != nil {
							return nil, nil, err
						}
						return out.SubscriptionFilters, out.NextToken, nil
					})},
				},
				tags: []string{m.tag("logGroup")},
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
