package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

func TestEnabled_NoFilters(t *testing.T) {
	f := New(nil, nil, nil)
	assert.True(t, f.Enabled("ec2"))
	assert.True(t, f.Enabled("rds"))
}

func TestEnabled_NilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.Enabled("ec2"))
	assert.True(t, f.ShouldEmitType("AWS::EC2::Instance"))
}

func TestEnabled_AllowList(t *testing.T) {
	f := New([]string{"s3", "lambda"}, nil, nil)
	assert.True(t, f.Enabled("s3"))
	assert.True(t, f.Enabled("lambda"))
	assert.False(t, f.Enabled("ec2"))
}

func TestEnabled_ExcludeWins(t *testing.T) {
	f := New([]string{"s3", "iam"}, []string{"iam"}, nil)
	assert.True(t, f.Enabled("s3"))
	assert.False(t, f.Enabled("iam"))
}

func TestEnabled_ExcludeOnly(t *testing.T) {
	f := New(nil, []string{"logs"}, nil)
	assert.True(t, f.Enabled("ec2"))
	assert.False(t, f.Enabled("logs"))
}

func TestShouldEmitType(t *testing.T) {
	f := New(nil, nil, []string{"AWS::EC2::Snapshot"})
	assert.True(t, f.ShouldEmitType("AWS::EC2::Instance"))
	assert.False(t, f.ShouldEmitType("AWS::EC2::Snapshot"))
}

func envelope(t *testing.T, typ string) resource.Envelope {
	t.Helper()
	r, err := resource.NewBuilder(resource.JSONCodec, "arn:aws:ec2:us-east-1:123456789012:thing/1").
		WithResourceType(typ).
		Build()
	require.NoError(t, err)
	return resource.NewEnvelope(resource.NewSession(), []string{"aws"}, nil, r)
}

func TestEmitter_DropsExcludedTypes(t *testing.T) {
	c := emitter.NewCollector()
	e := New(nil, nil, []string{"AWS::EC2::Snapshot"}).Emitter(c)

	require.NoError(t, e.Emit(context.Background(), envelope(t, "AWS::EC2::Instance")))
	err := e.Emit(context.Background(), envelope(t, "AWS::EC2::Snapshot"))
	assert.ErrorIs(t, err, emitter.ErrDropped)

	assert.Equal(t, 1, c.Len())
	assert.Len(t, c.ByType("AWS::EC2::Instance"), 1)
	require.NoError(t, e.Close())
}

func TestEmitter_PassThroughWithoutTypes(t *testing.T) {
	c := emitter.NewCollector()
	e := New([]string{"s3"}, nil, nil).Emitter(c)
	assert.Same(t, c, e)
}
