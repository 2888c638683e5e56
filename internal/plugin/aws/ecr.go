package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"

	"github.com/yairfalse/kartta/internal/discovery"
)

// ECRModule discovers container image repositories.
type ECRModule struct {
	module
	client func(aws.Config) ECRAPI
}

// NewECRModule creates the ECR module.
func NewECRModule() *ECRModule {
	return &ECRModule{
		module: module{service: "ecr"},
		client: func(cfg aws.Config) ECRAPI { return ecr.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *ECRModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{NextToken: nextToken})
		if err != nil {
			return listErr("describe repositories", err)
		}

		for _, repo := range output.Repositories {
			name := aws.String(aws.ToString(repo.RepositoryName))
			repoARN := aws.String(aws.ToString(repo.RepositoryArn))
			b := req.NewBuilder(aws.ToString(repoARN)).
				WithResourceID(aws.ToString(name)).
				WithResourceName(aws.ToString(name)).
				WithConfiguration(repo).
				WithCreatedAt(repo.CreatedAt)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::ECR::Repository",
				lookups: []discovery.Lookup{
					{Key: "repositoryPolicy", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetRepositoryPolicy(ctx, &ecr.GetRepositoryPolicyInput{RepositoryName: name})
						if err != nil {
							return nil, err
						}
						return out.PolicyText, nil
					}},
					{Key: "lifecyclePolicy", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetLifecyclePolicy(ctx, &ecr.GetLifecyclePolicyInput{RepositoryName: name})
						if err != nil {
							return nil, err
						}
						return out.LifecyclePolicyText, nil
					}},
					{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.ListTagsForResource(ctx, &ecr.ListTagsForResourceInput{ResourceArn: repoARN})
						if err != nil {
							return nil, err
						}
						return out.Tags, nil
					}},
				},
				tags: []string{m.tag("repository")},
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
