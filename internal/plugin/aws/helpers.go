package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/pkg/resource"
)

// homeRegion is where global services are discovered, once per scan.
const homeRegion = "us-east-1"

// module carries the service key and region scope shared by every module.
type module struct {
	service string
	regions []string
}

func (m module) Service() string   { return m.service }
func (m module) Regions() []string { return m.regions }

// tag builds the routing tag for kind within this module's service.
func (m module) tag(kind string) string {
	return resource.Tag("aws."+m.service, kind)
}

// item is one primary resource ready to be finalized.
type item struct {
	builder *resource.Builder
	typ     string
	lookups []discovery.Lookup
	derive  func(ctx context.Context, r *resource.Resource)
	tags    []string
}

// publish builds it, runs its sub-lookups and derivations, then emits.
// A build failure skips the resource; only an emit failure is returned.
func publish(ctx context.Context, req *discovery.Request, it item) error {
	r, err := it.builder.WithResourceType(it.typ).Build()
	if err != nil {
		req.Skip(it.typ, err)
		return nil
	}

	discovery.AugmentAll(ctx, r, it.lookups)
	if it.derive != nil {
		it.derive(ctx, r)
	}

	return req.Emit(ctx, r, it.tags...)
}

// pages adapts a token-paginated call into a Lookup fetch that drains every
// page. page returns one page and the next token; an empty token ends it.
func pages[T any](page func(ctx context.Context, token *string) ([]T, *string, error)) func(ctx context.Context) (any, error) {
	return discovery.Call(func(ctx context.Context) ([]T, error) {
		all := []T{}
		var token *string
		for {
			items, next, err := page(ctx, token)
			if err != nil {
				return nil, err
			}
			all = append(all, items...)
			if aws.ToString(next) == "" {
				return all, nil
			}
			token = next
		}
	})
}

// listErr marks a failed primary listing.
func listErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", discovery.ErrListing, op, err)
}

// synthARN builds an ARN for resources whose API does not return one.
func synthARN(service, region, account, res string) string {
	return arn.ARN{
		Partition: "aws",
		Service:   service,
		Region:    region,
		AccountID: account,
		Resource:  res,
	}.String()
}

// maxMetric returns the highest datapoint of a CloudWatch metric over the
// last hour, or nil when there are none.
func maxMetric(ctx context.Context, cw CloudWatchAPI, namespace, metric string, dims map[string]string) (*float64, error) {
	now := time.Now()

	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metric),
		Dimensions: dimensions,
		StartTime:  aws.Time(now.Add(-time.Hour)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(300),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticMaximum},
	})
	if err != nil {
		return nil, fmt.Errorf("get metric %s/%s: %w", namespace, metric, err)
	}

	var best *float64
	for _, dp := range out.Datapoints {
		if dp.Maximum == nil {
			continue
		}
		if best == nil || *dp.Maximum > *best {
			v := *dp.Maximum
			best = &v
		}
	}
	return best, nil
}

func newCloudWatch(cfg aws.Config) CloudWatchAPI {
	return cloudwatch.NewFromConfig(cfg)
}

const gib = int64(1) << 30
