package discovery

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// ServiceFilter decides which modules run. A nil filter enables everything.
type ServiceFilter interface {
	Enabled(service string) bool
}

// Recorder receives spans and per-unit outcomes.
type Recorder interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordUnit(ctx context.Context, result UnitResult)
}

type nopRecorder struct {
	tracer trace.Tracer
}

func (n nopRecorder) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return n.tracer.Start(ctx, name)
}

func (nopRecorder) RecordUnit(context.Context, UnitResult) {}

// Orchestrator runs every enabled module in every applicable region.
type Orchestrator struct {
	modules       []Module
	regions       RegionSource
	clients       ClientFactory
	emitter       emitter.Emitter
	workers       int
	moduleTimeout time.Duration
	recorder      Recorder
	codec         resource.Codec
	pluginPath    []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds how many (region, module) units run at once. One or
// less runs them sequentially.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workers = n }
}

// WithModuleTimeout caps each unit's duration. Zero disables the cap.
func WithModuleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.moduleTimeout = d }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithCodec sets the configuration serializer handed to modules.
func WithCodec(c resource.Codec) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithPluginPath sets the origin path stamped on envelopes.
func WithPluginPath(path ...string) Option {
	return func(o *Orchestrator) { o.pluginPath = path }
}

// New creates an Orchestrator over a fixed module list.
func New(modules []Module, regions RegionSource, clients ClientFactory, emit emitter.Emitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		modules:  modules,
		regions:  regions,
		clients:  clients,
		emitter:  emit,
		workers:  1,
		recorder: nopRecorder{tracer: noop.NewTracerProvider().Tracer("")},
		codec:    resource.JSONCodec,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Modules returns the registered modules.
func (o *Orchestrator) Modules() []Module {
	return o.modules
}

type unit struct {
	region string
	module Module
}

// Run scans every enabled module across the region list. It fails only when
// no regions can be obtained; unit failures are logged and reported.
func (o *Orchestrator) Run(ctx context.Context, session resource.Session, accountID string, services ServiceFilter) (*Report, error) {
	start := time.Now()

	ctx, span := o.recorder.StartSpan(ctx, "discovery.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session", session.ID),
		attribute.String("account_id", accountID),
	)

	regions, err := o.regions.Regions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrNoRegions, err)
	}
	if len(regions) == 0 {
		span.SetStatus(codes.Error, ErrNoRegions.Error())
		return nil, ErrNoRegions
	}

	enabled := o.enabled(services)
	units := plan(regions, enabled)

	report := &Report{
		Session:   session,
		AccountID: accountID,
		Regions:   regions,
		Services:  make([]string, 0, len(enabled)),
	}
	for _, m := range enabled {
		report.Services = append(report.Services, m.Service())
	}

	log.Info().
		Str("session", session.ID).
		Int("regions", len(regions)).
		Int("modules", len(enabled)).
		Int("units", len(units)).
		Int("workers", o.workers).
		Msg("starting discovery")

	results := make([]UnitResult, len(units))
	if o.workers <= 1 {
		for i, u := range units {
			results[i] = o.runUnit(ctx, session, accountID, u)
		}
	} else {
		p := pool.New().WithMaxGoroutines(o.workers)
		for i, u := range units {
			p.Go(func() {
				results[i] = o.runUnit(ctx, session, accountID, u)
			})
		}
		p.Wait()
	}

	report.Units = results
	report.Duration = time.Since(start)

	log.Info().
		Str("session", session.ID).
		Int("envelopes", report.Envelopes()).
		Int("failed_units", len(report.Failed())).
		Int("cancelled_units", report.Cancelled()).
		Dur("duration", report.Duration).
		Msg("discovery complete")

	return report, nil
}

func (o *Orchestrator) enabled(services ServiceFilter) []Module {
	var out []Module
	for _, m := range o.modules {
		on := services == nil || services.Enabled(m.Service())
		log.Debug().
			Str("service", m.Service()).
			Bool("enabled", on).
			Msg("service filter")
		if on {
			out = append(out, m)
		}
	}
	return out
}

func plan(regions []string, modules []Module) []unit {
	var units []unit
	for _, region := range regions {
		for _, m := range modules {
			if supports(m, region) {
				units = append(units, unit{region: region, module: m})
			}
		}
	}

	// A module pinned to regions outside the scan still runs once, from the
	// first planned region.
	for _, m := range modules {
		pinned := m.Regions()
		if len(pinned) == 0 || slices.ContainsFunc(regions, func(r string) bool { return slices.Contains(pinned, r) }) {
			continue
		}
		log.Warn().
			Str("module", m.Service()).
			Strs("home_regions", pinned).
			Str("region", regions[0]).
			Msg("module home region not scanned, running from first region")
		units = append(units, unit{region: regions[0], module: m})
	}
	return units
}

func (o *Orchestrator) runUnit(ctx context.Context, session resource.Session, accountID string, u unit) (res UnitResult) {
	res = UnitResult{Service: u.module.Service(), Region: u.region}

	if err := ctx.Err(); err != nil {
		res.Cancelled = true
		res.Kind = KindCancelled
		return res
	}

	start := time.Now()
	ctx, span := o.recorder.StartSpan(ctx, "discovery.Unit")
	span.SetAttributes(
		attribute.String("module", res.Service),
		attribute.String("region", res.Region),
	)

	if o.moduleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.moduleTimeout)
		defer cancel()
	}

	clients := o.clients.ForRegion(u.region)
	req := NewRequest(RequestParams{
		Session:    session,
		Service:    res.Service,
		Region:     u.region,
		AccountID:  accountID,
		Clients:    clients,
		Emitter:    o.emitter,
		Codec:      o.codec,
		PluginPath: o.pluginPath,
	})

	defer func() {
		clients.Close()

		res.Envelopes = req.Emitted()
		res.Dropped = req.Dropped()
		res.Skipped = req.Skipped()
		res.Duration = time.Since(start)
		span.SetAttributes(attribute.Int("envelopes", res.Envelopes))

		if res.Err != nil {
			res.Kind = Classify(res.Err)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())

			evt := log.Error().
				Err(res.Err).
				Str("module", res.Service).
				Str("region", res.Region).
				Str("error_kind", string(res.Kind)).
				Int("envelopes", res.Envelopes)
			if p, ok := res.Err.(*PanicError); ok {
				evt = evt.Bytes("stack", p.Stack)
			}
			evt.Msg("module failed")
		} else {
			log.Debug().
				Str("module", res.Service).
				Str("region", res.Region).
				Int("envelopes", res.Envelopes).
				Dur("duration", res.Duration).
				Msg("module complete")
		}

		span.End()
		o.recorder.RecordUnit(ctx, res)
	}()

	res.Err = invoke(ctx, u.module, req)
	return res
}

func invoke(ctx context.Context, m Module, req *Request) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return m.Discover(ctx, req)
}
