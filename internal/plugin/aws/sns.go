package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// SNSModule discovers topics.
type SNSModule struct {
	module
	client func(aws.Config) SNSAPI
}

// NewSNSModule creates the SNS module.
func NewSNSModule() *SNSModule {
	return &SNSModule{
		module: module{service: "sns"},
		client: func(cfg aws.Config) SNSAPI { return sns.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *SNSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListTopics(ctx, &sns.ListTopicsInput{NextToken: nextToken})
		if err != nil {
			return listErr("list topics", err)
		}

		for _, topic := range output.Topics {
			topicARN := aws.ToString(topic.TopicArn)
			name := topicARN
			if parsed, err := arn.Parse(topicARN); err == nil {
				name = parsed.Resource
			}

			b := req.NewBuilder(topicARN).
				WithResourceID(topicARN).
				WithResourceName(name).
				WithConfiguration(topic)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::SNS::Topic",
				lookups: topicLookups(client, topicARN),
				tags:    []string{m.tag("topic")},
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

func topicLookups(client SNSAPI, topicARN string) []discovery.Lookup {
	topic := aws.String(topicARN)
	return []discovery.Lookup{
		{Key: "attributes", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: topic})
			if err != nil {
				return nil, err
			}
			return out.Attributes, nil
		}},
		{Key: "subscriptions", Fetch: pages(func(ctx context.Context, token *string) ([]snstypes.Subscription, *string, error) {
			out, err := client.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{TopicArn: topic, NextToken: token})
			if err != nil {
				return nil, nil, err
			}
			return out.Subscriptions, out.NextToken, nil
		})},
		{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.ListTagsForResource(ctx, &sns.ListTagsForResourceInput{ResourceArn: topic})
			if err != nil {
				return nil, err
			}
			return out.Tags, nil
		}},
	}
}
