package emitter

import (
	"context"
	"sync"

	"github.com/google/btree"

	"github.com/yairfalse/kartta/pkg/resource"
)

// Collector keeps envelopes in memory, ordered by type, region, then identity.
// Used by the services listing and by tests.
type Collector struct {
	mu    sync.RWMutex
	index *btree.BTreeG[resource.Envelope]
}

func lessEnvelope(a, b resource.Envelope) bool {
	ra, rb := a.Contents, b.Contents
	if ra.ResourceType() != rb.ResourceType() {
		return ra.ResourceType() < rb.ResourceType()
	}
	if ra.Region() != rb.Region() {
		return ra.Region() < rb.Region()
	}
	if ra.Identity() != rb.Identity() {
		return ra.Identity() < rb.Identity()
	}
	return ra.DocumentID() < rb.DocumentID()
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{index: btree.NewG[resource.Envelope](32, lessEnvelope)}
}

// Emit stores env.
func (c *Collector) Emit(_ context.Context, env resource.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.ReplaceOrInsert(env)
	return nil
}

// Len returns the number of envelopes collected.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Len()
}

// Envelopes returns everything collected, in order.
func (c *Collector) Envelopes() []resource.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]resource.Envelope, 0, c.index.Len())
	c.index.Ascend(func(env resource.Envelope) bool {
		out = append(out, env)
		return true
	})
	return out
}

// ByType returns the envelopes whose resource type equals resourceType.
func (c *Collector) ByType(resourceType string) []resource.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []resource.Envelope
	c.index.Ascend(func(env resource.Envelope) bool {
		switch t := env.Contents.ResourceType(); {
		case t < resourceType:
			return true
		case t == resourceType:
			out = append(out, env)
			return true
		default:
			return false
		}
	})
	return out
}

// Close is a no-op.
func (c *Collector) Close() error {
	return nil
}
