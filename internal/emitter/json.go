package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/yairfalse/kartta/pkg/resource"
)

// JSONEmitter writes envelopes to a stream, either one per line or indented.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter writes to w. The writer is never closed.
func NewJSONEmitter(w io.Writer, pretty bool) *JSONEmitter {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &JSONEmitter{enc: enc}
}

// Emit encodes env.
func (e *JSONEmitter) Emit(_ context.Context, env resource.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(env); err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return nil
}

// Close is a no-op; the caller owns the writer.
func (e *JSONEmitter) Close() error {
	return nil
}
