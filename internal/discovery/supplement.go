package discovery

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Lookup is one named sub-lookup attached to a primary resource.
type Lookup struct {
	Key   string
	Fetch func(ctx context.Context) (any, error)
}

// NewFailure builds the marker recorded in place of a failed sub-lookup.
func NewFailure(err error) resource.Failure {
	return resource.Failure{
		Failed:  true,
		Kind:    string(Classify(err)),
		Code:    ErrorCode(err),
		Message: err.Error(),
	}
}

// Augment runs fetch and records its result under key. A failure is stored
// as a resource.Failure under the same key; nothing escapes.
func Augment(ctx context.Context, r *resource.Resource, key string, fetch func(ctx context.Context) (any, error)) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			r.Supplementary().Set(key, NewFailure(&PanicError{Value: v}))
			ok = false
		}
	}()

	value, err := fetch(ctx)
	if err != nil {
		log.Debug().
			Err(err).
			Str("key", key).
			Str("identity", r.Identity()).
			Msg("supplementary lookup failed")
		r.Supplementary().Set(key, NewFailure(err))
		return false
	}

	r.Supplementary().Set(key, value)
	return true
}

// AugmentAll runs lookups in order and returns how many failed.
func AugmentAll(ctx context.Context, r *resource.Resource, lookups []Lookup) int {
	failed := 0
	for _, l := range lookups {
		if !Augment(ctx, r, l.Key, l.Fetch) {
			failed++
		}
	}
	return failed
}

// Call adapts a typed SDK call to a Lookup fetch.
func Call[T any](fn func(ctx context.Context) (T, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		out, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
