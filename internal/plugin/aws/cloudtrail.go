package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"

	"github.com/yairfalse/kartta/internal/discovery"
)

// CloudTrailModule discovers trails whose home region is the request region.
// Multi-region trails are listed everywhere but emitted once.
type CloudTrailModule struct {
	module
	client func(aws.Config) CloudTrailAPI
}

// NewCloudTrailModule creates the CloudTrail module.
func NewCloudTrailModule() *CloudTrailModule {
	return &CloudTrailModule{
		module: module{service: "cloudtrail"},
		client: func(cfg aws.Config) CloudTrailAPI { return cloudtrail.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *CloudTrailModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var nextToken *string
	for {
		output, err := client.ListTrails(ctx, &cloudtrail.ListTrailsInput{NextToken: nextToken})
		if err != nil {
			return listErr("list trails", err)
		}

		for _, trail := range output.Trails {
			if aws.ToString(trail.HomeRegion) != req.Region {
				continue
			}

			trailARN := aws.String(aws.ToString(trail.TrailARN))
			b := req.NewBuilder(aws.ToString(trailARN)).
				WithResourceID(aws.ToString(trailARN)).
				WithResourceName(aws.ToString(trail.Name)).
				WithConfiguration(trail)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::CloudTrail::Trail",
				lookups: []discovery.Lookup{
					{Key: "trail", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetTrail(ctx, &cloudtrail.GetTrailInput{Name: trailARN})
						if err != nil {
							return nil, err
						}
						return out.Trail, nil
					}},
					{Key: "status", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{Name: trailARN})
						if err != nil {
							return nil, err
						}
						return map[string]any{
							"isLogging":           out.IsLogging,
							"latestDeliveryTime":  out.LatestDeliveryTime,
							"latestDeliveryError": out.LatestDeliveryError,
						}, nil
					}},
					{Key: "eventSelectors", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.GetEventSelectors(ctx, &cloudtrail.GetEventSelectorsInput{TrailName: trailARN})
						if err != nil {
							return nil, err
						}
						return map[string]any{
							"eventSelectors":         out.EventSelectors,
							"advancedEventSelectors": out.AdvancedEventSelectors,
						}, nil
					}},
				},
				tags: []string{m.tag("trail")},
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
