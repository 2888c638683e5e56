package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yairfalse/kartta/internal/discovery"
)

// Loader loads an AWS configuration. config.LoadDefaultConfig in production.
type Loader func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error)

// Factory produces per-region configurations under one strategy.
type Factory struct {
	strategy  Strategy
	endpoint  string
	profile   string
	transport *http.Transport
	load      Loader
}

// Option configures a Factory.
type Option func(*Factory)

// WithEndpoint points every client at endpoint (an emulator, for example).
func WithEndpoint(endpoint string) Option {
	return func(f *Factory) { f.endpoint = endpoint }
}

// WithProfile selects a shared config profile.
func WithProfile(profile string) Option {
	return func(f *Factory) { f.profile = profile }
}

// WithTransport sets the base transport cloned for each invocation.
func WithTransport(t *http.Transport) Option {
	return func(f *Factory) {
		if t != nil {
			f.transport = t
		}
	}
}

// WithLoader replaces config.LoadDefaultConfig.
func WithLoader(l Loader) Option {
	return func(f *Factory) {
		if l != nil {
			f.load = l
		}
	}
}

// NewFactory creates a Factory. A nil strategy means Local.
func NewFactory(strategy Strategy, opts ...Option) *Factory {
	if strategy == nil {
		strategy = Local{}
	}
	f := &Factory{
		strategy:  strategy,
		transport: http.DefaultTransport.(*http.Transport),
		load:      config.LoadDefaultConfig,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Strategy returns the credential strategy in use.
func (f *Factory) Strategy() Strategy {
	return f.strategy
}

// ForRegion returns lazily built clients for region. Nothing is loaded until
// Config is first called.
func (f *Factory) ForRegion(region string) discovery.Clients {
	return &Regional{factory: f, region: region}
}

// Base loads a configuration for region without verifying the strategy.
// Used for bootstrap calls such as region enumeration.
func (f *Factory) Base(ctx context.Context, region string) (aws.Config, error) {
	cfg, _, err := f.build(ctx, region, false)
	return cfg, err
}

func (f *Factory) build(ctx context.Context, region string, verify bool) (aws.Config, *http.Transport, error) {
	transport := f.transport.Clone()

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID("kartta"),
		config.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(transport)}),
	}
	if f.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(f.profile))
	}
	opts = append(opts, f.strategy.LoadOptions()...)

	cfg, err := f.load(ctx, opts...)
	if err != nil {
		transport.CloseIdleConnections()
		return aws.Config{}, nil, fmt.Errorf("%w: load config for %s: %w", discovery.ErrClientConstruction, region, err)
	}

	if f.endpoint != "" {
		cfg.BaseEndpoint = aws.String(f.endpoint)
	}

	if verify {
		if err := f.strategy.Verify(ctx, cfg); err != nil {
			transport.CloseIdleConnections()
			return aws.Config{}, nil, fmt.Errorf("%w: %s strategy in %s: %w", discovery.ErrClientConstruction, f.strategy.Name(), region, err)
		}
	}

	return cfg, transport, nil
}

// Regional is the client scope of one (region, module) invocation.
type Regional struct {
	factory *Factory
	region  string

	once      sync.Once
	cfg       aws.Config
	err       error
	transport *http.Transport
}

// Region is the region this scope serves.
func (r *Regional) Region() string {
	return r.region
}

// Config builds the configuration on first call and returns the same result
// afterwards.
func (r *Regional) Config(ctx context.Context) (aws.Config, error) {
	r.once.Do(func() {
		r.cfg, r.transport, r.err = r.factory.build(ctx, r.region, true)
	})
	return r.cfg, r.err
}

// Close drops idle connections held by this scope.
func (r *Regional) Close() {
	if r.transport != nil {
		r.transport.CloseIdleConnections()
	}
}
