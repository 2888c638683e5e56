// Package emitter defines the sinks that receive finished envelopes.
package emitter

import (
	"context"
	"errors"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Emitter receives finished envelopes. Emit may block under backpressure
// and must be safe for concurrent use.
type Emitter interface {
	// Emit hands one envelope to the backend. The caller gives up ownership.
	Emit(ctx context.Context, env resource.Envelope) error

	// Close flushes and releases the backend.
	Close() error
}

// ErrDropped is returned by emitters that deliberately discard an envelope.
// Callers count it apart from delivered envelopes and do not treat it as a failure.
var ErrDropped = errors.New("envelope dropped")

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, env resource.Envelope) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Func adapts a function to the Emitter interface.
type Func func(ctx context.Context, env resource.Envelope) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, env resource.Envelope) error { return f(ctx, env) }

// Close is a no-op.
func (f Func) Close() error { return nil }
