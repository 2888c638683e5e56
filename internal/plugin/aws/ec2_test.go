package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// newTestRequest returns a request for region whose envelopes land in the
// returned collector.
func newTestRequest(service, region string) (*discovery.Request, *emitter.Collector) {
	c := emitter.NewCollector()
	req := discovery.NewRequest(discovery.RequestParams{
		Session:    resource.NewSession(),
		Service:    service,
		Region:     region,
		AccountID:  "123456789012",
		Clients:    discovery.StaticClients{Cfg: aws.Config{Region: region}},
		Emitter:    c,
		PluginPath: []string{Name},
	})
	return req, c
}

type mockEC2Client struct {
	DescribeInstancesFunc         func(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeInstanceAttributeFunc func(ctx context.Context, params *ec2.DescribeInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceAttributeOutput, error)
	DescribeVolumesFunc           func(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSecurityGroupsFunc    func(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeAddressesFunc         func(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	DescribeSnapshotsFunc         func(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
}

func (m *mockEC2Client) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if m.DescribeInstancesFunc == nil {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	return m.DescribeInstancesFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeInstanceAttribute(ctx context.Context, params *ec2.DescribeInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceAttributeOutput, error) {
	if m.DescribeInstanceAttributeFunc == nil {
		return &ec2.DescribeInstanceAttributeOutput{}, nil
	}
	return m.DescribeInstanceAttributeFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if m.DescribeVolumesFunc == nil {
		return &ec2.DescribeVolumesOutput{}, nil
	}
	return m.DescribeVolumesFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if m.DescribeSecurityGroupsFunc == nil {
		return &ec2.DescribeSecurityGroupsOutput{}, nil
	}
	return m.DescribeSecurityGroupsFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error) {
	if m.DescribeAddressesFunc == nil {
		return &ec2.DescribeAddressesOutput{}, nil
	}
	return m.DescribeAddressesFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	if m.DescribeSnapshotsFunc == nil {
		return &ec2.DescribeSnapshotsOutput{}, nil
	}
	return m.DescribeSnapshotsFunc(ctx, params, optFns...)
}

func newTestEC2Module(client EC2API) *EC2Module {
	m := NewEC2Module()
	m.client = func(aws.Config) EC2API { return client }
	return m
}

func TestEC2_InstancesDrainAllPages(t *testing.T) {
	pages := map[string]string{"": "page-2", "page-2": "page-3", "page-3": ""}
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			current := aws.ToString(params.NextToken)
			next, ok := pages[current]
			require.True(t, ok, "unexpected token %q", current)

			instances := make([]ec2types.Instance, 10)
			for i := range instances {
				instances[i] = ec2types.Instance{
					InstanceId: aws.String(fmt.Sprintf("i-%s-%02d", current, i)),
					Tags:       []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(fmt.Sprintf("web-%d", i))}},
				}
			}
			out := &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{Instances: instances}},
			}
			if next != "" {
				out.NextToken = aws.String(next)
			}
			return out, nil
		},
		DescribeInstanceAttributeFunc: func(_ context.Context, _ *ec2.DescribeInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceAttributeOutput, error) {
			return &ec2.DescribeInstanceAttributeOutput{
				DisableApiTermination: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
			}, nil
		},
	}

	req, c := newTestRequest("ec2", "us-east-1")
	err := newTestEC2Module(mock).Discover(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 30, c.Len())
	assert.Equal(t, 30, req.Emitted())

	envs := c.ByType("AWS::EC2::Instance")
	require.Len(t, envs, 30)

	r := envs[0].Contents
	assert.Equal(t, "123456789012", r.AccountID())
	assert.Equal(t, "us-east-1", r.Region())
	assert.Contains(t, r.Identity(), "arn:aws:ec2:us-east-1:123456789012:instance/")
	assert.Contains(t, r.ResourceName(), "web-")
	assert.Equal(t, []string{"disableApiTermination"}, r.Supplementary().Keys())
	assert.Equal(t, []string{"aws.ec2:instance"}, envs[0].Tags)
}

func TestEC2_VolumeSizes(t *testing.T) {
	mock := &mockEC2Client{
		DescribeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			return &ec2.DescribeVolumesOutput{
				Volumes: []ec2types.Volume{{VolumeId: aws.String("vol-1"), Size: aws.Int32(8)}},
			}, nil
		},
	}

	req, c := newTestRequest("ec2", "eu-west-1")
	require.NoError(t, newTestEC2Module(mock).Discover(context.Background(), req))

	envs := c.ByType("AWS::EC2::Volume")
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].Contents.MaxSizeInBytes())
	assert.Equal(t, 8*gib, *envs[0].Contents.MaxSizeInBytes())
}

func TestEC2_ListingErrorStopsModule(t *testing.T) {
	volumesCalled := false
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return nil, errors.New("access denied")
		},
		DescribeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			volumesCalled = true
			return &ec2.DescribeVolumesOutput{}, nil
		},
	}

	req, c := newTestRequest("ec2", "us-east-1")
	err := newTestEC2Module(mock).Discover(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, discovery.ErrListing)
	assert.Contains(t, err.Error(), "access denied")
	assert.False(t, volumesCalled)
	assert.Zero(t, c.Len())
}

func TestEC2_AttributeFailureIsRecorded(t *testing.T) {
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			return &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{{InstanceId: aws.String("i-1")}}}},
			}, nil
		},
		DescribeInstanceAttributeFunc: func(_ context.Context, _ *ec2.DescribeInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceAttributeOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	req, c := newTestRequest("ec2", "us-east-1")
	require.NoError(t, newTestEC2Module(mock).Discover(context.Background(), req))

	envs := c.ByType("AWS::EC2::Instance")
	require.Len(t, envs, 1)
	f, ok := envs[0].Contents.Supplementary().Failure("disableApiTermination")
	require.True(t, ok)
	assert.True(t, f.Failed)
	assert.Equal(t, "throttled", f.Message)
	assert.Equal(t, "i-1", envs[0].Contents.ResourceName())
}
