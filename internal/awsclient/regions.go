package awsclient

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// DescribeRegionsAPI is the slice of EC2 used to enumerate regions.
type DescribeRegionsAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

// EC2Regions enumerates the regions enabled for the account. Transient
// failures are retried; the scan cannot start without a region list.
type EC2Regions struct {
	client     DescribeRegionsAPI
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// NewEC2Regions creates a region source backed by DescribeRegions.
func NewEC2Regions(client DescribeRegionsAPI) *EC2Regions {
	return &EC2Regions{
		client:   client,
		maxTries: 5,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
}

// Regions returns the sorted list of enabled region names.
func (e *EC2Regions) Regions(ctx context.Context) ([]string, error) {
	attempt := 0
	regions, err := backoff.Retry(ctx, func() ([]string, error) {
		attempt++
		out, err := e.client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("describe regions failed")
			return nil, err
		}

		names := make([]string, 0, len(out.Regions))
		for _, r := range out.Regions {
			if name := aws.ToString(r.RegionName); name != "" {
				names = append(names, name)
			}
		}
		return names, nil
	},
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(e.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("describe regions: %w", err)
	}

	slices.Sort(regions)
	return regions, nil
}
