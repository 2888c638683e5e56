package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yairfalse/kartta/internal/discovery"
)

// S3Module discovers buckets homed in the request region.
type S3Module struct {
	module
	client func(aws.Config) S3API
}

// NewS3Module creates the S3 module.
func NewS3Module() *S3Module {
	return &S3Module{
		module: module{service: "s3"},
		client: func(cfg aws.Config) S3API {
			return s3.NewFromConfig(cfg, func(o *s3.Options) {
				// emulators behind an endpoint override rarely do virtual hosting
				o.UsePathStyle = cfg.BaseEndpoint != nil
			})
		},
	}
}

// Discover implements discovery.Module.
func (m *S3Module) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var token *string
	for {
		output, err := client.ListBuckets(ctx, &s3.ListBucketsInput{
			BucketRegion:      aws.String(req.Region),
			ContinuationToken: token,
		})
		if err != nil {
			return listErr("list buckets", err)
		}

		for _, bucket := range output.Buckets {
			if r := aws.ToString(bucket.BucketRegion); r != "" && r != req.Region {
				continue
			}

			name := aws.ToString(bucket.Name)
			b := req.NewBuilder("arn:aws:s3:::" + name).
				WithResourceID(name).
				WithResourceName(name).
				WithConfiguration(bucket).
				WithCreatedAt(bucket.CreationDate)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::S3::Bucket",
				lookups: bucketLookups(client, name),
				tags:    []string{m.tag("bucket")},
			})
			if err != nil {
				return err
			}
		}

		if aws.ToString(output.ContinuationToken) == "" {
			return nil
		}
		token = output.ContinuationToken
	}
}

func bucketLookups(client S3API, name string) []discovery.Lookup {
	bucket := aws.String(name)
	return []discovery.Lookup{
		{Key: "bucketPolicy", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: bucket})
			if err != nil {
				return nil, err
			}
			return out.Policy, nil
		}},
		{Key: "serverSideEncryptionConfiguration", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket})
			if err != nil {
				return nil, err
			}
			return out.ServerSideEncryptionConfiguration, nil
		}},
		{Key: "versioningConfiguration", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket})
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"status":    string(out.Status),
				"mfaDelete": string(out.MFADelete),
			}, nil
		}},
		{Key: "publicAccessBlockConfiguration", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: bucket})
			if err != nil {
				return nil, err
			}
			return out.PublicAccessBlockConfiguration, nil
		}},
		{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: bucket})
			if err != nil {
				return nil, err
			}
			return out.TagSet, nil
		}},
	}
}
