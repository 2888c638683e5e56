package emitter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/pkg/resource"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("emitter closed")

// QueueEmitter decouples modules from a slow downstream with a bounded buffer.
// Emit blocks once the buffer is full.
type QueueEmitter struct {
	next  Emitter
	queue chan resource.Envelope

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	failed atomic.Int64
}

// NewQueueEmitter forwards to next through a buffer of size envelopes.
func NewQueueEmitter(next Emitter, size int) *QueueEmitter {
	if size < 1 {
		size = 1
	}
	q := &QueueEmitter{
		next:  next,
		queue: make(chan resource.Envelope, size),
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

func (q *QueueEmitter) drain() {
	defer q.wg.Done()
	for env := range q.queue {
		if err := q.next.Emit(context.Background(), env); err != nil {
			q.failed.Add(1)
			log.Error().
				Err(err).
				Str("document_id", env.Contents.DocumentID()).
				Msg("downstream emit failed")
		}
	}
}

// Emit enqueues env, waiting for space or ctx cancellation.
func (q *QueueEmitter) Emit(ctx context.Context, env resource.Envelope) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.queue <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failed returns how many envelopes the downstream rejected.
func (q *QueueEmitter) Failed() int64 {
	return q.failed.Load()
}

// Close drains the buffer and closes the downstream emitter.
func (q *QueueEmitter) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()

	q.wg.Wait()
	return q.next.Close()
}
