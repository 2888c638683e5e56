package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// KMSModule discovers customer and AWS managed keys.
type KMSModule struct {
	module
	client func(aws.Config) KMSAPI
}

// NewKMSModule creates the KMS module.
func NewKMSModule() *KMSModule {
	return &KMSModule{
		module: module{service: "kms"},
		client: func(cfg aws.Config) KMSAPI { return kms.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *KMSModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var marker *string
	for {
		output, err := client.ListKeys(ctx, &kms.ListKeysInput{Marker: marker})
		if err != nil {
			return listErr("list keys", err)
		}

		for _, key := range output.Keys {
			id := aws.ToString(key.KeyId)
			keyID := aws.String(id)
			b := req.NewBuilder(aws.ToString(key.KeyArn)).
				WithResourceID(id).
				WithResourceName(id).
				WithConfiguration(key)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::KMS::Key",
				lookups: []discovery.Lookup{
					{Key: "keyMetadata", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: keyID})
						if err != nil {
							return nil, err
						}
						return out.KeyMetadata, nil
					}},
					{Key: "keyRotationStatus", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetKeyRotationStatus(ctx, &kms.GetKeyRotationStatusInput{KeyId: keyID})
						if err != nil {
							return nil, err
						}
						return out.KeyRotationEnabled, nil
					}},
					{Key: "keyPolicy", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetKeyPolicy(ctx, &kms.GetKeyPolicyInput{KeyId: keyID, PolicyName: aws.String("default")})
						if err != nil {
							return nil, err
						}
						return out.Policy, nil
					}},
					{Key: "tags", Fetch: pages(func(ctx context.Context, marker *string) ([]kmstypes.Tag, *string, error) {
						out, err := client.ListResourceTags(ctx, &kms.ListResourceTagsInput{KeyId: keyID, Marker: marker})
						if err != nil {
							return nil, nil, err
						}
						if !out.Truncated {
							return out.Tags, nil, nil
						}
						return out.Tags, out.NextMarker, nil
					})},
				},
				tags: []string{m.tag("key")},
			})
			if err != nil {
				return err
			}
		}

		if !output.Truncated || aws.ToString(output.NextMarker) == "" {
			return nil
		}
		marker = output.NextMarker
	}
}
