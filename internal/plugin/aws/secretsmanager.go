package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/yairfalse/kartta/internal/discovery"
)

// SecretsManagerModule discovers secrets. Only metadata and resource
// policies are read.
type SecretsManagerModule struct {
	module
	client func(aws.Config) SecretsManagerAPI
}

// NewSecretsManagerModule creates the Secrets Manager module.
func NewSecretsManagerModule() *SecretsManagerModule {
	return &SecretsManagerModule{
		module: module{service: "secretsmanager"},
		client: func(cfg aws.Config) SecretsManagerAPI { return secretsmanager.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *SecretsManagerModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{NextToken: nextToken})
		if err != nil {
			return listErr("list secrets", err)
		}

		for _, secret := range output.SecretList {
			secretARN := aws.String(aws.ToString(secret.ARN))
			b := req.NewBuilder(aws.ToString(secretARN)).
				WithResourceID(aws.ToString(secretARN)).
				WithResourceName(aws.ToString(secret.Name)).
				WithConfiguration(secret).
				WithCreatedAt(secret.CreatedDate)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::SecretsManager::Secret",
				lookups: []discovery.Lookup{{
					Key: "resourcePolicy",
					Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetResourcePolicy(ctx, &secretsmanager.GetResourcePolicyInput{SecretId: secretARN})
						if err != nil {
							return nil, err
						}
						return out.ResourcePolicy, nil
					},
				}},
				tags: []string{m.tag("secret")},
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
