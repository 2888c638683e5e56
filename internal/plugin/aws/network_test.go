package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════════════════════════════════════
// ELBv2 Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockELBClient struct {
	DescribeLoadBalancersFunc func(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error)
	DescribeListenersFunc     func(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error)
	DescribeTagsFunc          func(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error)
}

func (m *mockELBClient) DescribeLoadBalancers(ctx context.Context, params *elbv2.DescribeLoadBalancersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
	return m.DescribeLoadBalancersFunc(ctx, params, optFns...)
}

func (m *mockELBClient) DescribeLoadBalancerAttributes(_ context.Context, _ *elbv2.DescribeLoadBalancerAttributesInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancerAttributesOutput, error) {
	return &elbv2.DescribeLoadBalancerAttributesOutput{
		Attributes: []elbv2types.LoadBalancerAttribute{{Key: aws.String("deletion_protection.enabled"), Value: aws.String("true")}},
	}, nil
}

func (m *mockELBClient) DescribeListeners(ctx context.Context, params *elbv2.DescribeListenersInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error) {
	if m.DescribeListenersFunc == nil {
		return &elbv2.DescribeListenersOutput{}, nil
	}
	return m.DescribeListenersFunc(ctx, params, optFns...)
}

func (m *mockELBClient) DescribeTags(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error) {
	if m.DescribeTagsFunc == nil {
		return &elbv2.DescribeTagsOutput{}, nil
	}
	return m.DescribeTagsFunc(ctx, params, optFns...)
}

func loadBalancer(name string) elbv2types.LoadBalancer {
	return elbv2types.LoadBalancer{
		LoadBalancerName: aws.String(name),
		LoadBalancerArn:  aws.String("arn:aws:elasticloadbalancing:eu-west-1:123456789012:loadbalancer/app/" + name + "/abc"),
	}
}

func newTestELBModule(client ELBAPI) *ELBModule {
	m := NewELBModule()
	m.client = func(aws.Config) ELBAPI { return client }
	return m
}

func TestELB_PaginatesLoadBalancersAndListeners(t *testing.T) {
	var markers, listenerMarkers []string
	mock := &mockELBClient{
		DescribeLoadBalancersFunc: func(_ context.Context, params *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
			markers = append(markers, aws.ToString(params.Marker))
			if params.Marker == nil {
				return &elbv2.DescribeLoadBalancersOutput{LoadBalancers: []elbv2types.LoadBalancer{loadBalancer("public")}, NextMarker: aws.String("lb2")}, nil
			}
			return &elbv2.DescribeLoadBalancersOutput{LoadBalancers: []elbv2types.LoadBalancer{loadBalancer("internal")}}, nil
		},
		DescribeListenersFunc: func(_ context.Context, params *elbv2.DescribeListenersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeListenersOutput, error) {
			if aws.ToString(params.LoadBalancerArn) != aws.ToString(loadBalancer("public").LoadBalancerArn) {
				return &elbv2.DescribeListenersOutput{}, nil
			}
			listenerMarkers = append(listenerMarkers, aws.ToString(params.Marker))
			if params.Marker == nil {
				return &elbv2.DescribeListenersOutput{
					Listeners:  []elbv2types.Listener{{Port: aws.Int32(80)}},
					NextMarker: aws.String("l2"),
				}, nil
			}
			return &elbv2.DescribeListenersOutput{Listeners: []elbv2types.Listener{{Port: aws.Int32(443)}}}, nil
		},
		DescribeTagsFunc: func(_ context.Context, params *elbv2.DescribeTagsInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error) {
			return &elbv2.DescribeTagsOutput{TagDescriptions: []elbv2types.TagDescription{{
				ResourceArn: aws.String(params.ResourceArns[0]),
				Tags:        []elbv2types.Tag{{Key: aws.String("env"), Value: aws.String("prod")}},
			}}}, nil
		},
	}

	req, c := newTestRequest("elbv2", "eu-west-1")
	require.NoError(t, newTestELBModule(mock).Discover(context.Background(), req))

	assert.Equal(t, []string{"", "lb2"}, markers)
	assert.Equal(t, []string{"", "l2"}, listenerMarkers)

	envs := c.ByType("AWS::ElasticLoadBalancingV2::LoadBalancer")
	require.Len(t, envs, 2)

	r := envs[0].Contents
	assert.Equal(t, "public", r.ResourceName())
	assert.Equal(t, []string{"attributes", "listeners", "tags"}, r.Supplementary().Keys())

	v, ok := r.Supplementary().Get("listeners")
	require.True(t, ok)
	listeners, ok := v.([]elbv2types.Listener)
	require.True(t, ok)
	require.Len(t, listeners, 2)
	assert.Equal(t, int32(443), aws.ToInt32(listeners[1].Port))

	tags, ok := r.Supplementary().Path("tags")
	require.True(t, ok)
	assert.Len(t, tags, 1)
	assert.Equal(t, []string{"aws.elbv2:loadBalancer"}, envs[0].Tags)
}

func TestELB_TagsFailureMarker(t *testing.T) {
	mock := &mockELBClient{
		DescribeLoadBalancersFunc: func(_ context.Context, _ *elbv2.DescribeLoadBalancersInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeLoadBalancersOutput, error) {
			return &elbv2.DescribeLoadBalancersOutput{LoadBalancers: []elbv2types.LoadBalancer{loadBalancer("public")}}, nil
		},
		DescribeTagsFunc: func(_ context.Context, _ *elbv2.DescribeTagsInput, _ ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error) {
			return nil, apiErr("AccessDenied")
		},
	}

	req, c := newTestRequest("elbv2", "eu-west-1")
	require.NoError(t, newTestELBModule(mock).Discover(context.Background(), req))

	r := c.ByType("AWS::ElasticLoadBalancingV2::LoadBalancer")[0].Contents
	f, ok := r.Supplementary().Failure("tags")
	require.True(t, ok)
	assert.Equal(t, "AccessDenied", f.Code)

	attrs, ok := r.Supplementary().Path("attributes")
	require.True(t, ok)
	assert.Len(t, attrs, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// Route53 Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockRoute53Client struct {
	ListHostedZonesFunc func(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	GetHostedZoneFunc   func(ctx context.Context, params *route53.GetHostedZoneInput, optFns ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error)
	GetDNSSECFunc       func(ctx context.Context, params *route53.GetDNSSECInput, optFns ...func(*route53.Options)) (*route53.GetDNSSECOutput, error)
}

func (m *mockRoute53Client) ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
	return m.ListHostedZonesFunc(ctx, params, optFns...)
}

func (m *mockRoute53Client) GetHostedZone(ctx context.Context, params *route53.GetHostedZoneInput, optFns ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error) {
	if m.GetHostedZoneFunc == nil {
		return &route53.GetHostedZoneOutput{}, nil
	}
	return m.GetHostedZoneFunc(ctx, params, optFns...)
}

func (m *mockRoute53Client) ListTagsForResource(_ context.Context, params *route53.ListTagsForResourceInput, _ ...func(*route53.Options)) (*route53.ListTagsForResourceOutput, error) {
	return &route53.ListTagsForResourceOutput{ResourceTagSet: &r53types.ResourceTagSet{
		ResourceId: params.ResourceId,
		Tags:       []r53types.Tag{{Key: aws.String("owner"), Value: aws.String("dns")}},
	}}, nil
}

func (m *mockRoute53Client) GetDNSSEC(ctx context.Context, params *route53.GetDNSSECInput, optFns ...func(*route53.Options)) (*route53.GetDNSSECOutput, error) {
	if m.GetDNSSECFunc == nil {
		return &route53.GetDNSSECOutput{Status: &r53types.DNSSECStatus{ServeSignature: aws.String("NOT_SIGNING")}}, nil
	}
	return m.GetDNSSECFunc(ctx, params, optFns...)
}

func hostedZone(id, name string) r53types.HostedZone {
	return r53types.HostedZone{
		Id:              aws.String("/hostedzone/" + id),
		Name:            aws.String(name),
		CallerReference: aws.String("ref-" + id),
	}
}

func newTestRoute53Module(client Route53API) *Route53Module {
	m := NewRoute53Module()
	m.client = func(aws.Config) Route53API { return client }
	return m
}

func TestRoute53_PaginatesUntilNotTruncated(t *testing.T) {
	var markers []string
	mock := &mockRoute53Client{
		ListHostedZonesFunc: func(_ context.Context, params *route53.ListHostedZonesInput, _ ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
			markers = append(markers, aws.ToString(params.Marker))
			if params.Marker == nil {
				return &route53.ListHostedZonesOutput{
					HostedZones: []r53types.HostedZone{hostedZone("Z1", "example.com.")},
					IsTruncated: true,
					NextMarker:  aws.String("Z2"),
				}, nil
			}
			return &route53.ListHostedZonesOutput{
				HostedZones: []r53types.HostedZone{hostedZone("Z2", "internal.example.")},
				IsTruncated: false,
				NextMarker:  aws.String("stale"),
			}, nil
		},
	}

	req, c := newTestRequest("route53", homeRegion)
	require.NoError(t, newTestRoute53Module(mock).Discover(context.Background(), req))

	assert.Equal(t, []string{"", "Z2"}, markers)
	envs := c.ByType("AWS::Route53::HostedZone")
	require.Len(t, envs, 2)
	assert.Equal(t, "internal.example.", envs[1].Contents.ResourceName())
}

func TestRoute53_StripsHostedZonePrefix(t *testing.T) {
	var gotZoneID, gotDNSSECID string
	mock := &mockRoute53Client{
		ListHostedZonesFunc: func(_ context.Context, _ *route53.ListHostedZonesInput, _ ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error) {
			return &route53.ListHostedZonesOutput{HostedZones: []r53types.HostedZone{hostedZone("Z0123ABC", "example.com.")}}, nil
		},
		GetHostedZoneFunc: func(_ context.Context, params *route53.GetHostedZoneInput, _ ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error) {
			gotZoneID = aws.ToString(params.Id)
			return &route53.GetHostedZoneOutput{DelegationSet: &r53types.DelegationSet{NameServers: []string{"ns-1.awsdns.com"}}}, nil
		},
		GetDNSSECFunc: func(_ context.Context, params *route53.GetDNSSECInput, _ ...func(*route53.Options)) (*route53.GetDNSSECOutput, error) {
			gotDNSSECID = aws.ToString(params.HostedZoneId)
			return nil, apiErr("InvalidArgument")
		},
	}

	req, c := newTestRequest("route53", homeRegion)
	require.NoError(t, newTestRoute53Module(mock).Discover(context.Background(), req))

	r := c.ByType("AWS::Route53::HostedZone")[0].Contents
	assert.Equal(t, "arn:aws:route53:::hostedzone/Z0123ABC", r.Identity())
	assert.Equal(t, "Z0123ABC", r.ResourceID())
	assert.Equal(t, "Z0123ABC", gotZoneID)
	assert.Equal(t, "Z0123ABC", gotDNSSECID)

	assert.Equal(t, []string{"hostedZone", "tags", "dnssec"}, r.Supplementary().Keys())
	f, ok := r.Supplementary().Failure("dnssec")
	require.True(t, ok)
	assert.Equal(t, "InvalidArgument", f.Code)

	tags, ok := r.Supplementary().Path("tags")
	require.True(t, ok)
	assert.Len(t, tags, 1)
}
