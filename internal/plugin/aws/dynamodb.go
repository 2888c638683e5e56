package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// DynamoDBModule discovers tables.
type DynamoDBModule struct {
	module
	client func(aws.Config) DynamoDBAPI
}

// NewDynamoDBModule creates the DynamoDB module.
func NewDynamoDBModule() *DynamoDBModule {
	return &DynamoDBModule{
		module: module{service: "dynamodb"},
		client: func(cfg aws.Config) DynamoDBAPI { return dynamodb.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *DynamoDBModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var start *string
	for {
		output, err := client.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: start})
		if err != nil {
			return listErr("list tables", err)
		}

		for _, name := range output.TableNames {
			if err := m.publishTable(ctx, req, client, name); err != nil {
				return err
			}
		}

		if aws.ToString(output.LastEvaluatedTableName) == "" {
			return nil
		}
		start = output.LastEvaluatedTableName
	}
}

func (m *DynamoDBModule) publishTable(ctx context.Context, req *discovery.Request, client DynamoDBAPI, name string) error {
	desc, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err != nil {
		req.Skip("AWS::DynamoDB::Table", fmt.Errorf("describe table %s: %w", name, err))
		return nil
	}
	table := desc.Table
	if table == nil {
		return nil
	}

	tableARN := aws.ToString(table.TableArn)
	b := req.NewBuilder(tableARN).
		WithResourceID(aws.ToString(table.TableId)).
		WithResourceName(name).
		WithConfiguration(table).
		WithCreatedAt(table.CreationDateTime)
	if table.TableSizeBytes != nil {
		b = b.WithSizeInBytes(*table.TableSizeBytes)
	}

	return publish(ctx, req, item{
		builder: b,
		typ:     "AWS::DynamoDB::Table",
		lookups: []discovery.Lookup{
			{Key: "continuousBackups", Fetch: func(ctx context.Context) (any, error) {
				out, err := client.DescribeContinuousBackups(ctx, &dynamodb.DescribeContinuousBackupsInput{TableName: aws.String(name)})
				if err != nil {
					return nil, err
				}
				return out.ContinuousBackupsDescription, nil
			}},
			{Key: "timeToLive", Fetch: func(ctx context.Context) (any, error) {
				out, err := client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{TableName: aws.String(name)})
				if err != nil {
					return nil, err
				}
				return out.TimeToLiveDescription, nil
			}},
			{Key: "tags", Fetch: pages(func(ctx context.Context, token *string) ([]ddbtypes.Tag, *string, error) {
				out, err := client.ListTagsOfResource(ctx, &dynamodb.ListTagsOfResourceInput{ResourceArn: aws.String(tableARN), NextToken: token})
				if err != nil {
					return nil, nil, err
				}
				return out.Tags, out.NextToken, nil
			})},
		},
		tags: []string{m.tag("table")},
	})
}
