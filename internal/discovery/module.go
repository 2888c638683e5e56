// Package discovery drives modules across regions and normalizes what they
// find into envelopes.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Module discovers the resources of one cloud service. Implementations are
// stateless; one instance serves every region of a scan.
type Module interface {
	// Service is the unique, stable key used by the allow-list.
	Service() string

	// Regions lists the regions the module supports. Nil means all regions.
	Regions() []string

	// Discover lists every primary resource in req.Region, draining all
	// pages, and emits one envelope per resource through req.
	Discover(ctx context.Context, req *Request) error
}

// Clients hands out provider configuration scoped to one (region, module)
// invocation.
type Clients interface {
	// Config returns a configuration for building service clients. Errors
	// wrap ErrClientConstruction.
	Config(ctx context.Context) (aws.Config, error)

	// Close releases connections held by clients built from Config.
	Close()
}

// ClientFactory produces Clients for a region under the configured
// credential strategy.
type ClientFactory interface {
	ForRegion(region string) Clients
}

// StaticClients serves a fixed configuration. Close is a no-op.
type StaticClients struct {
	Cfg aws.Config
}

func (s StaticClients) Config(context.Context) (aws.Config, error) { return s.Cfg, nil }
func (s StaticClients) Close()                                     {}

// RequestParams seeds a Request.
type RequestParams struct {
	Session    resource.Session
	Service    string
	Region     string
	AccountID  string
	Clients    Clients
	Emitter    emitter.Emitter
	Codec      resource.Codec
	PluginPath []string
}

// Request is everything one module invocation needs. It is owned by a single
// goroutine.
type Request struct {
	Session   resource.Session
	Service   string
	Region    string
	AccountID string
	Clients   Clients

	emitter    emitter.Emitter
	codec      resource.Codec
	pluginPath []string
	logger     zerolog.Logger

	emitted int
	dropped int
	skipped int
}

// NewRequest builds a Request.
func NewRequest(p RequestParams) *Request {
	codec := p.Codec
	if codec == nil {
		codec = resource.JSONCodec
	}
	return &Request{
		Session:    p.Session,
		Service:    p.Service,
		Region:     p.Region,
		AccountID:  p.AccountID,
		Clients:    p.Clients,
		emitter:    p.Emitter,
		codec:      codec,
		pluginPath: p.PluginPath,
		logger: log.With().
			Str("module", p.Service).
			Str("region", p.Region).
			Str("session", p.Session.ID).
			Logger(),
	}
}

// Config is shorthand for req.Clients.Config.
func (r *Request) Config(ctx context.Context) (aws.Config, error) {
	return r.Clients.Config(ctx)
}

// NewBuilder starts an envelope seeded with the request's account and region.
func (r *Request) NewBuilder(identity string) *resource.Builder {
	return resource.NewBuilder(r.codec, identity).
		WithAccountID(r.AccountID).
		WithRegion(r.Region)
}

// Emit wraps res in an envelope and hands it to the sink. The request keeps
// no reference to res afterwards.
func (r *Request) Emit(ctx context.Context, res *resource.Resource, tags ...string) error {
	env := resource.NewEnvelope(r.Session, r.pluginPath, tags, res)
	if err := r.emitter.Emit(ctx, env); err != nil {
		if errors.Is(err, emitter.ErrDropped) {
			r.dropped++
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrEmit, res.Identity(), err)
	}
	r.emitted++
	return nil
}

// Skip records a resource whose envelope could not be built.
func (r *Request) Skip(resourceType string, err error) {
	r.skipped++
	r.logger.Warn().
		Err(err).
		Str("resource_type", resourceType).
		Msg("skipping resource")
}

// Logger returns a logger carrying module, region and session fields.
func (r *Request) Logger() *zerolog.Logger {
	return &r.logger
}

// Emitted is the number of envelopes accepted so far.
func (r *Request) Emitted() int { return r.emitted }

// Dropped is the number of envelopes the sink discarded on purpose.
func (r *Request) Dropped() int { return r.dropped }

// Skipped is the number of resources dropped at build time.
func (r *Request) Skipped() int { return r.skipped }
