package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	mdbtypes "github.com/aws/aws-sdk-go-v2/service/memorydb/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════════════════════════════════════
// RDS Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockRDSClient struct {
	DescribeDBInstancesFunc func(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DescribeDBSnapshotsFunc func(ctx context.Context, params *rds.DescribeDBSnapshotsInput, optFns ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error)
	ListTagsForResourceFunc func(ctx context.Context, params *rds.ListTagsForResourceInput, optFns ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error)
}

func (m *mockRDSClient) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return m.DescribeDBInstancesFunc(ctx, params, optFns...)
}

func (m *mockRDSClient) DescribeDBSnapshots(ctx context.Context, params *rds.DescribeDBSnapshotsInput, optFns ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error) {
	if m.DescribeDBSnapshotsFunc == nil {
		return &rds.DescribeDBSnapshotsOutput{}, nil
	}
	return m.DescribeDBSnapshotsFunc(ctx, params, optFns...)
}

func (m *mockRDSClient) ListTagsForResource(ctx context.Context, params *rds.ListTagsForResourceInput, optFns ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error) {
	if m.ListTagsForResourceFunc == nil {
		return &rds.ListTagsForResourceOutput{}, nil
	}
	return m.ListTagsForResourceFunc(ctx, params, optFns...)
}

func dbInstance(id string, allocatedGiB int32) rdstypes.DBInstance {
	db := rdstypes.DBInstance{
		DBInstanceIdentifier: aws.String(id),
		DBInstanceArn:        aws.String("arn:aws:rds:eu-west-1:123456789012:db:" + id),
		DbiResourceId:        aws.String("db-" + id),
	}
	if allocatedGiB > 0 {
		db.AllocatedStorage = aws.Int32(allocatedGiB)
	}
	return db
}

func oneDBInstance(db rdstypes.DBInstance) func(context.Context, *rds.DescribeDBInstancesInput, ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	return func(context.Context, *rds.DescribeDBInstancesInput, ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
		return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{db}}, nil
	}
}

func freeStorage(bytes float64) *mockCloudWatchClient {
	return &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, _ *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			return &cloudwatch.GetMetricStatisticsOutput{Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(bytes)}}}, nil
		},
	}
}

func newTestRDSModule(client RDSAPI, cw CloudWatchAPI) *RDSModule {
	m := NewRDSModule()
	m.client = func(aws.Config) RDSAPI { return client }
	m.metrics = func(aws.Config) CloudWatchAPI { return cw }
	return m
}

func TestRDS_PaginatesInstancesAndSnapshots(t *testing.T) {
	var markers, snapshotMarkers []string
	client := &mockRDSClient{
		DescribeDBInstancesFunc: func(_ context.Context, params *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
			markers = append(markers, aws.ToString(params.Marker))
			if params.Marker == nil {
				return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{dbInstance("orders", 20)}, Marker: aws.String("d2")}, nil
			}
			return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{dbInstance("users", 20)}}, nil
		},
		DescribeDBSnapshotsFunc: func(_ context.Context, params *rds.DescribeDBSnapshotsInput, _ ...func(*rds.Options)) (*rds.DescribeDBSnapshotsOutput, error) {
			if aws.ToString(params.DBInstanceIdentifier) != "orders" {
				return &rds.DescribeDBSnapshotsOutput{}, nil
			}
			snapshotMarkers = append(snapshotMarkers, aws.ToString(params.Marker))
			if params.Marker == nil {
				return &rds.DescribeDBSnapshotsOutput{
					DBSnapshots: []rdstypes.DBSnapshot{{DBSnapshotIdentifier: aws.String("nightly-1")}},
					Marker:      aws.String("s2"),
				}, nil
			}
			return &rds.DescribeDBSnapshotsOutput{DBSnapshots: []rdstypes.DBSnapshot{{DBSnapshotIdentifier: aws.String("nightly-2")}}}, nil
		},
	}

	req, c := newTestRequest("rds", "eu-west-1")
	require.NoError(t, newTestRDSModule(client, freeStorage(0)).Discover(context.Background(), req))

	assert.Equal(t, []string{"", "d2"}, markers)
	assert.Equal(t, []string{"", "s2"}, snapshotMarkers)

	envs := c.ByType("AWS::RDS::DBInstance")
	require.Len(t, envs, 2)

	r := envs[0].Contents
	assert.Equal(t, "arn:aws:rds:eu-west-1:123456789012:db:orders", r.Identity())
	assert.Equal(t, "db-orders", r.ResourceID())
	assert.Equal(t, "orders", r.ResourceName())
	assert.Equal(t, []string{"snapshots", "tags"}, r.Supplementary().Keys())

	v, ok := r.Supplementary().Get("snapshots")
	require.True(t, ok)
	snapshots, ok := v.([]rdstypes.DBSnapshot)
	require.True(t, ok)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "nightly-2", aws.ToString(snapshots[1].DBSnapshotIdentifier))
}

func TestRDS_DerivesSizeFromFreeStorageSpace(t *testing.T) {
	var gotDims []cwtypes.Dimension
	var gotMetric string
	cw := &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, params *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			gotDims = params.Dimensions
			gotMetric = aws.ToString(params.MetricName)
			return &cloudwatch.GetMetricStatisticsOutput{
				Datapoints: []cwtypes.Datapoint{{Maximum: aws.Float64(float64(3 * gib))}, {Maximum: aws.Float64(float64(5 * gib))}},
			}, nil
		},
	}
	client := &mockRDSClient{DescribeDBInstancesFunc: oneDBInstance(dbInstance("orders", 20))}

	req, c := newTestRequest("rds", "eu-west-1")
	require.NoError(t, newTestRDSModule(client, cw).Discover(context.Background(), req))

	r := c.ByType("AWS::RDS::DBInstance")[0].Contents
	require.NotNil(t, r.MaxSizeInBytes())
	assert.Equal(t, 20*gib, *r.MaxSizeInBytes())
	require.NotNil(t, r.SizeInBytes())
	assert.Equal(t, 15*gib, *r.SizeInBytes())

	assert.Equal(t, "FreeStorageSpace", gotMetric)
	require.Len(t, gotDims, 1)
	assert.Equal(t, "DBInstanceIdentifier", aws.ToString(gotDims[0].Name))
	assert.Equal(t, "orders", aws.ToString(gotDims[0].Value))
}

func TestRDS_MetricFailureKeepsCapacity(t *testing.T) {
	cw := &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, _ *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			return nil, errors.New("metrics unavailable")
		},
	}
	client := &mockRDSClient{DescribeDBInstancesFunc: oneDBInstance(dbInstance("orders", 20))}

	req, c := newTestRequest("rds", "eu-west-1")
	require.NoError(t, newTestRDSModule(client, cw).Discover(context.Background(), req))

	r := c.ByType("AWS::RDS::DBInstance")[0].Contents
	require.NotNil(t, r.MaxSizeInBytes())
	assert.Equal(t, 20*gib, *r.MaxSizeInBytes())
	assert.Nil(t, r.SizeInBytes())
}

func TestRDS_NoAllocatedStorageLeavesSizesUnset(t *testing.T) {
	cw := &mockCloudWatchClient{
		GetMetricStatisticsFunc: func(_ context.Context, _ *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
			t.Fatal("metric must not be read without allocated storage")
			return nil, nil
		},
	}
	client := &mockRDSClient{DescribeDBInstancesFunc: oneDBInstance(dbInstance("aurora-member", 0))}

	req, c := newTestRequest("rds", "eu-west-1")
	require.NoError(t, newTestRDSModule(client, cw).Discover(context.Background(), req))

	r := c.ByType("AWS::RDS::DBInstance")[0].Contents
	assert.Nil(t, r.MaxSizeInBytes())
	assert.Nil(t, r.SizeInBytes())
}

func TestRDS_TagsFailureMarker(t *testing.T) {
	client := &mockRDSClient{
		DescribeDBInstancesFunc: oneDBInstance(dbInstance("orders", 20)),
		ListTagsForResourceFunc: func(_ context.Context, _ *rds.ListTagsForResourceInput, _ ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error) {
			return nil, apiErr("AccessDenied")
		},
	}

	req, c := newTestRequest("rds", "eu-west-1")
	require.NoError(t, newTestRDSModule(client, freeStorage(float64(gib))).Discover(context.Background(), req))

	r := c.ByType("AWS::RDS::DBInstance")[0].Contents
	f, ok := r.Supplementary().Failure("tags")
	require.True(t, ok)
	assert.Equal(t, "AccessDenied", f.Code)
	_, failed := r.Supplementary().Failure("snapshots")
	assert.False(t, failed)
}

// ══════════════════════════════════════════════════════════════════════════════
// MemoryDB Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockMemoryDBClient struct {
	DescribeClustersFunc  func(ctx context.Context, params *memorydb.DescribeClustersInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error)
	DescribeSnapshotsFunc func(ctx context.Context, params *memorydb.DescribeSnapshotsInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeSnapshotsOutput, error)
	ListTagsFunc          func(ctx context.Context, params *memorydb.ListTagsInput, optFns ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error)
}

func (m *mockMemoryDBClient) DescribeClusters(ctx context.Context, params *memorydb.DescribeClustersInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
	return m.DescribeClustersFunc(ctx, params, optFns...)
}

func (m *mockMemoryDBClient) DescribeSnapshots(ctx context.Context, params *memorydb.DescribeSnapshotsInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeSnapshotsOutput, error) {
	if m.DescribeSnapshotsFunc == nil {
		return &memorydb.DescribeSnapshotsOutput{}, nil
	}
	return m.DescribeSnapshotsFunc(ctx, params, optFns...)
}

func (m *mockMemoryDBClient) ListTags(ctx context.Context, params *memorydb.ListTagsInput, optFns ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error) {
	if m.ListTagsFunc == nil {
		return &memorydb.ListTagsOutput{}, nil
	}
	return m.ListTagsFunc(ctx, params, optFns...)
}

func memoryDBCluster(name string) mdbtypes.Cluster {
	return mdbtypes.Cluster{
		Name: aws.String(name),
		ARN:  aws.String("arn:aws:memorydb:eu-west-1:123456789012:cluster/" + name),
	}
}

func newTestMemoryDBModule(client MemoryDBAPI) *MemoryDBModule {
	m := NewMemoryDBModule()
	m.client = func(aws.Config) MemoryDBAPI { return client }
	return m
}

func TestMemoryDB_PaginatesClustersAndSnapshots(t *testing.T) {
	var tokens []string
	var showShards bool
	client := &mockMemoryDBClient{
		DescribeClustersFunc: func(_ context.Context, params *memorydb.DescribeClustersInput, _ ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
			tokens = append(tokens, aws.ToString(params.NextToken))
			showShards = aws.ToBool(params.ShowShardDetails)
			if params.NextToken == nil {
				return &memorydb.DescribeClustersOutput{Clusters: []mdbtypes.Cluster{memoryDBCluster("sessions")}, NextToken: aws.String("c2")}, nil
			}
			return &memorydb.DescribeClustersOutput{Clusters: []mdbtypes.Cluster{memoryDBCluster("cache")}}, nil
		},
		DescribeSnapshotsFunc: func(_ context.Context, params *memorydb.DescribeSnapshotsInput, _ ...func(*memorydb.Options)) (*memorydb.DescribeSnapshotsOutput, error) {
			if params.NextToken == nil {
				return &memorydb.DescribeSnapshotsOutput{Snapshots: []mdbtypes.Snapshot{{Name: aws.String("daily-1")}}, NextToken: aws.String("s2")}, nil
			}
			return &memorydb.DescribeSnapshotsOutput{Snapshots: []mdbtypes.Snapshot{{Name: aws.String("daily-2")}}}, nil
		},
	}

	req, c := newTestRequest("memorydb", "eu-west-1")
	require.NoError(t, newTestMemoryDBModule(client).Discover(context.Background(), req))

	assert.Equal(t, []string{"", "c2"}, tokens)
	assert.True(t, showShards)

	envs := c.ByType("AWS::MemoryDB::Cluster")
	require.Len(t, envs, 2)

	r := envs[0].Contents
	assert.Equal(t, "arn:aws:memorydb:eu-west-1:123456789012:cluster/sessions", r.Identity())
	assert.Equal(t, []string{"snapshots", "tags"}, r.Supplementary().Keys())
	snapshots, ok := r.Supplementary().Get("snapshots")
	require.True(t, ok)
	assert.Len(t, snapshots, 2)
}

func TestMemoryDB_TagsFailureMarker(t *testing.T) {
	client := &mockMemoryDBClient{
		DescribeClustersFunc: func(_ context.Context, _ *memorydb.DescribeClustersInput, _ ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error) {
			return &memorydb.DescribeClustersOutput{Clusters: []mdbtypes.Cluster{memoryDBCluster("sessions")}}, nil
		},
		ListTagsFunc: func(_ context.Context, _ *memorydb.ListTagsInput, _ ...func(*memorydb.Options)) (*memorydb.ListTagsOutput, error) {
			return nil, apiErr("InvalidARNFault")
		},
	}

	req, c := newTestRequest("memorydb", "eu-west-1")
	require.NoError(t, newTestMemoryDBModule(client).Discover(context.Background(), req))

	r := c.ByType("AWS::MemoryDB::Cluster")[0].Contents
	f, ok := r.Supplementary().Failure("tags")
	require.True(t, ok)
	assert.Equal(t, "InvalidARNFault", f.Code)
}
