package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidResource is returned by Build when required fields are missing.
var ErrInvalidResource = errors.New("invalid resource")

// Codec serializes provider API responses into the configuration payload.
type Codec func(v any) ([]byte, error)

// JSONCodec is the default codec.
func JSONCodec(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Builder assembles a Resource. Build is the only way to obtain one.
type Builder struct {
	codec Codec
	r     Resource
	err   error
}

// NewBuilder seeds a builder with a codec and the resource identity.
func NewBuilder(codec Codec, identity string) *Builder {
	if codec == nil {
		codec = JSONCodec
	}
	return &Builder{codec: codec, r: Resource{identity: identity}}
}

// WithResourceName sets the human-readable name.
func (b *Builder) WithResourceName(name string) *Builder {
	b.r.resourceName = name
	return b
}

// WithResourceID sets the provider-native id.
func (b *Builder) WithResourceID(id string) *Builder {
	b.r.resourceID = id
	return b
}

// WithResourceType sets the taxonomy string.
func (b *Builder) WithResourceType(typ string) *Builder {
	b.r.resourceType = typ
	return b
}

// WithConfiguration serializes v with the builder's codec.
// A codec failure is reported by Build.
func (b *Builder) WithConfiguration(v any) *Builder {
	data, err := b.codec(v)
	if err != nil {
		b.err = fmt.Errorf("encode configuration: %w", err)
		return b
	}
	b.r.configuration = data
	return b
}

// WithAccountID sets the owning account.
func (b *Builder) WithAccountID(id string) *Builder {
	b.r.accountID = id
	return b
}

// WithRegion sets the region.
func (b *Builder) WithRegion(region string) *Builder {
	b.r.region = region
	return b
}

// WithCreatedAt sets the creation time; nil and zero times are ignored.
func (b *Builder) WithCreatedAt(t *time.Time) *Builder {
	if t == nil || t.IsZero() {
		return b
	}
	ts := t.UTC()
	b.r.createdAt = &ts
	return b
}

// WithSizeInBytes sets the used size.
func (b *Builder) WithSizeInBytes(n int64) *Builder {
	b.r.sizeInBytes = &n
	return b
}

// WithMaxSizeInBytes sets the capacity.
func (b *Builder) WithMaxSizeInBytes(n int64) *Builder {
	b.r.maxSizeInBytes = &n
	return b
}

// Build validates the builder and materializes a Resource with a fresh
// document id. The builder must not be reused afterwards.
func (b *Builder) Build() (*Resource, error) {
	if b.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResource, b.err)
	}
	if b.r.identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidResource)
	}
	if b.r.resourceType == "" {
		return nil, fmt.Errorf("%w: resource type is required for %s", ErrInvalidResource, b.r.identity)
	}

	r := b.r
	r.documentID = uuid.NewString()
	r.discoveredAt = time.Now().UTC()
	r.supplementary = NewSupplementary()
	return &r, nil
}
