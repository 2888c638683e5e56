package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// Route53Module discovers hosted zones. Route53 is global and runs once per scan.
type Route53Module struct {
	module
	client func(aws.Config) Route53API
}

// NewRoute53Module creates the Route53 module.
func NewRoute53Module() *Route53Module {
	return &Route53Module{
		module: module{service: "route53", regions: []string{homeRegion}},
		client: func(cfg aws.Config) Route53API { return route53.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *Route53Module) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var marker *string
	for {
		output, err := client.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
		if err != nil {
			return listErr("list hosted zones", err)
		}

		for _, zone := range output.HostedZones {
			id := strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
			zoneID := aws.String(id)
			b := req.NewBuilder("arn:aws:route53:::hostedzone/" + id).
				WithResourceID(id).
				WithResourceName(aws.ToString(zone.Name)).
				WithConfiguration(zone)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::Route53::HostedZone",
				lookups: []discovery.Lookup{
					{Key: "hostedZone", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetHostedZone(ctx, &route53.GetHostedZoneInput{Id: zoneID})
						if err != nil {
							return nil, err
						}
						return map[string]any{
							"delegationSet": out.DelegationSet,
							"vpcs":          out.VPCs,
						}, nil
					}},
					{Key: "tags", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.ListTagsForResource(ctx, &route53.ListTagsForResourceInput{
							ResourceId:   zoneID,
							ResourceType: r53types.TagResourceTypeHostedzone,
						})
						if err != nil {
							return nil, err
						}
						if out.ResourceTagSet == nil {
							return nil, nil
						}
						return out.ResourceTagSet.Tags, nil
					}},
					{Key: "dnssec", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetDNSSEC(ctx, &route53.GetDNSSECInput{HostedZoneId: zoneID})
						if err != nil {
							return nil, err
						}
						return out.Status, nil
					}},
				},
				tags: []string{m.tag("hostedZone")},
			})
			if err != nil {
				return err
			}
		}

		if !output.IsTruncated || aws.ToString(output.NextMarker) == "" {
			return nil
		}
		marker = output.NextMarker
	}
}
