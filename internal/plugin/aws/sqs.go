package aws

import (
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// SQSModule discovers queues.
type SQSModule struct {
	module
	client func(aws.Config) SQSAPI
}

// NewSQSModule creates the SQS module.
func NewSQSModule() *SQSModule {
	return &SQSModule{
		module: module{service: "sqs"},
		client: func(cfg aws.Config) SQSAPI { return sqs.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *SQSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListQueues(ctx, &sqs.ListQueuesInput{NextToken: nextToken})
		if err != nil {
			return listErr("list queues", err)
		}

		for _, queueURL := range output.QueueUrls {
			url := aws.String(queueURL)
			name := path.Base(queueURL)
			b := req.NewBuilder(synthARN("sqs", req.Region, req.AccountID, name)).
				WithResourceID(queueURL).
				WithResourceName(name).
				WithConfiguration(map[string]string{"QueueUrl": queueURL})

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::SQS::Queue",
				lookups: []discovery.Lookup{
					{Key: "attributes", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
							QueueUrl:       url,
							AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
						})
						if err != nil {
							return nil, err
						}
						return out.Attributes, nil
					}},
					{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.ListQueueTags(ctx, &sqs.ListQueueTagsInput{QueueUrl: url})
						if err != nil {
							return nil, err
						}
						return out.Tags, nil
					}},
				},
				tags: []string{m.tag("queue")},
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
