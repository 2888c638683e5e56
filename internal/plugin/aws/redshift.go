package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshift"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/pkg/resource"
)

// RedshiftModule discovers provisioned clusters.
type RedshiftModule struct {
	module
	client  func(aws.Config) RedshiftAPI
	metrics func(aws.Config) CloudWatchAPI
}

// NewRedshiftModule creates the Redshift module.
func NewRedshiftModule() *RedshiftModule {
	return &RedshiftModule{
		module:  module{service: "redshift"},
		client:  func(cfg aws.Config) RedshiftAPI { return redshift.NewFromConfig(cfg) },
		metrics: newCloudWatch,
	}
}

// Discover implements discovery.Module.
func (m *RedshiftModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)
	cw := m.metrics(cfg)

	var marker *string
	for {
		output, err := client.DescribeClusters(ctx, &redshift.DescribeClustersInput{Marker: marker})
		if err != nil {
			return listErr("describe clusters", err)
		}

		for _, cluster := range output.Clusters {
			id := aws.ToString(cluster.ClusterIdentifier)
			name := aws.ToString(cluster.DBName)
			if name == "" {
				name = id
			}
			b := req.NewBuilder(synthARN("redshift", req.Region, req.AccountID, "cluster:"+id)).
				WithResourceID(id).
				WithResourceName(name).
				WithConfiguration(cluster).
				WithCreatedAt(cluster.ClusterCreateTime)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::Redshift::Cluster",
				lookups: []discovery.Lookup{
					{Key: "storage", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.DescribeStorage(ctx, &redshift.DescribeStorageInput{})
						if err != nil {
							return nil, err
						}
						return map[string]*float64{
							"TotalBackupSizeInMegaBytes":         out.TotalBackupSizeInMegaBytes,
							"TotalProvisionedStorageInMegaBytes": out.TotalProvisionedStorageInMegaBytes,
						}, nil
					}},
					{Key: diskUsedKey, Fetch: discovery.Call(func(ctx context.Context) (*float64, error) {
						return maxMetric(ctx, cw, "AWS/Redshift", "PercentageDiskSpaceUsed", map[string]string{"ClusterIdentifier": id})
					})},
					{Key: "loggingStatus", Fetch: func(ctx context.Context) (any, error) {
						out, err := client.DescribeLoggingStatus(ctx, &redshift.DescribeLoggingStatusInput{ClusterIdentifier: aws.String(id)})
						if err != nil {
							return nil, err
						}
						return map[string]any{
							"loggingEnabled":     out.LoggingEnabled,
							"bucketName":         out.BucketName,
							"s3KeyPrefix":        out.S3KeyPrefix,
							"logDestinationType": out.LogDestinationType,
							"logExports":         out.LogExports,
						}, nil
					}},
				},
				derive: func(_ context.Context, r *resource.Resource) {
					deriveRedshiftSize(r)
				},
				tags: []string{m.tag("cluster")},
			})
			if err != nil {
				return err
			}
		}

		if aws.ToString(output.Marker) == "" {
			return nil
		}
		marker = output.Marker
	}
}

// diskUsedKey holds the highest PercentageDiskSpaceUsed datapoint of the last hour.
const diskUsedKey = "PercentageDiskSpaceUsed"

// deriveRedshiftSize combines provisioned storage with the disk usage
// percentage, both read back from supplementary configuration.
func deriveRedshiftSize(r *resource.Resource) {
	capacityMB := discovery.SupplementaryNumber(r, "storage/TotalProvisionedStorageInMegaBytes")
	percent := discovery.SupplementaryNumber(r, diskUsedKey)

	discovery.Derive(r, "maxSizeInBytes", func() (int64, bool, error) {
		if capacityMB == nil {
			return 0, false, nil
		}
		return discovery.MegabytesToBytes(*capacityMB), true, nil
	}, r.SetMaxSizeInBytes)

	discovery.Derive(r, "sizeInBytes", func() (int64, bool, error) {
		usedMB, ok := discovery.DeriveUsedBytes(capacityMB, percent)
		if !ok {
			return 0, false, nil
		}
		return discovery.MegabytesToBytes(usedMB), true, nil
	}, r.SetSizeInBytes)
}
