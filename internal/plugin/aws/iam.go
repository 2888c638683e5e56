package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// IAMModule discovers roles. IAM is global, so it runs once per scan from the
// home region, or from the first scanned region when that is excluded.
type IAMModule struct {
	module
	client func(aws.Config) IAMAPI
}

// NewIAMModule creates the IAM module.
func NewIAMModule() *IAMModule {
	return &IAMModule{
		module: module{service: "iam", regions: []string{homeRegion}},
		client: func(cfg aws.Config) IAMAPI { return iam.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *IAMModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var marker *string
	for {
		output, err := client.ListRoles(ctx, &iam.ListRolesInput{Marker: marker})
		if err != nil {
			return listErr("list roles", err)
		}

		for _, role := range output.Roles {
			roleName := aws.ToString(role.RoleName)
			name := aws.String(roleName)
			b := req.NewBuilder(aws.ToString(role.Arn)).
				WithResourceID(aws.ToString(role.RoleId)).
				WithResourceName(roleName).
				WithConfiguration(role).
				WithCreatedAt(role.CreateDate)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::IAM::Role",
				lookups: []discovery.Lookup{
					{Key: "attachedPolicies", Fetch: pages(func(ctx context.Context, marker *string) ([]iamtypes.AttachedPolicy, *string, error) {
						out, err := client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: name, Marker: marker})
						if err != nil {
							return nil, nil, err
						}
						return out.AttachedPolicies, nextIAMMarker(out.IsTruncated, out.Marker), nil
					})},
					{Key: "inlinePolicies", Fetch: pages(func(ctx context.Context, marker *string) ([]string, *string, error) {
						out, err := client.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: name, Marker: marker})
						if err != nil {
							return nil, nil, err
						}
						return out.PolicyNames, nextIAMMarker(out.IsTruncated, out.Marker), nil
					})},
					{Key: "tags", Fetch: pages(func(ctx context.Context, marker *string) ([]iamtypes.Tag, *string, error) {
						out, err := client.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: name, Marker: marker})
						if err != nil {
							return nil, nil, err
						}
						return out.Tags, nextIAMMarker(out.IsTruncated, out.Marker), nil
					})},
				},
				tags: []string{m.tag("role")},
			})
			if err != nil {
				return err
			}
		}

		marker = nextIAMMarker(output.IsTruncated, output.Marker)
		if marker == nil {
			return nil
		}
	}
}

// nextIAMMarker returns the marker for the next page, or nil on the last one.
// IAM only honors Marker while IsTruncated is set.
func nextIAMMarker(truncated bool, marker *string) *string {
	if !truncated || aws.ToString(marker) == "" {
		return nil
	}
	return marker
}
