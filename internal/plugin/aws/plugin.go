// Package aws implements the AWS discovery plugin for kartta.
package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/awsclient"
	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/pkg/resource"
)

// Name is the plugin identifier and the first element of every plugin path.
const Name = "aws"

// Modules returns every AWS discovery module.
func Modules() []discovery.Module {
	return []discovery.Module{
		NewEC2Module(),
		NewS3Module(),
		NewRDSModule(),
		NewLambdaModule(),
		NewRedshiftModule(),
		NewKMSModule(),
		NewSQSModule(),
		NewSNSModule(),
		NewDynamoDBModule(),
		NewIAMModule(),
		NewEKSModule(),
		NewECSModule(),
		NewELBModule(),
		NewRoute53Module(),
		NewLogsModule(),
		NewAutoScalingModule(),
		NewCloudTrailModule(),
		NewECRModule(),
		NewMemoryDBModule(),
		NewSecretsManagerModule(),
	}
}

// Config holds AWS plugin configuration.
type Config struct {
	Strategy   string
	RoleARN    string
	ExternalID string
	Profile    string
	Endpoint   string

	// Regions fixes the region list. Empty enumerates enabled regions.
	Regions []string

	// AccountID skips the STS lookup when set.
	AccountID string

	Workers       int
	ModuleTimeout time.Duration
	Recorder      discovery.Recorder
}

// Plugin discovers AWS resources through the orchestrator.
type Plugin struct {
	factory      *awsclient.Factory
	orchestrator *discovery.Orchestrator
	accountID    string
	identity     func(ctx context.Context) (string, error)
}

// New creates the AWS plugin. Nothing is called on AWS until Scan.
func New(ctx context.Context, cfg Config, emit emitter.Emitter, opts ...awsclient.Option) (*Plugin, error) {
	opts = append(opts, awsclient.WithEndpoint(cfg.Endpoint), awsclient.WithProfile(cfg.Profile))

	base, err := awsclient.NewFactory(awsclient.Local{}, opts...).Base(ctx, homeRegion)
	if err != nil {
		return nil, fmt.Errorf("load base aws config: %w", err)
	}

	strategy, err := awsclient.NewStrategy(cfg.Strategy, cfg.RoleARN, cfg.ExternalID, base)
	if err != nil {
		return nil, fmt.Errorf("create credential strategy: %w", err)
	}

	factory := awsclient.NewFactory(strategy, opts...)
	return newPlugin(factory, Modules(), cfg, emit), nil
}

func newPlugin(factory *awsclient.Factory, modules []discovery.Module, cfg Config, emit emitter.Emitter) *Plugin {
	var regions discovery.RegionSource = discovery.StaticRegions(cfg.Regions)
	if len(cfg.Regions) == 0 {
		regions = enabledRegions{factory: factory}
	}

	p := &Plugin{
		factory:   factory,
		accountID: cfg.AccountID,
	}
	p.identity = p.callerIdentity
	p.orchestrator = discovery.New(modules, regions, factory, emit,
		discovery.WithWorkers(cfg.Workers),
		discovery.WithModuleTimeout(cfg.ModuleTimeout),
		discovery.WithRecorder(cfg.Recorder),
		discovery.WithPluginPath(Name),
	)
	return p
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return Name
}

// Services returns the modules this plugin can run.
func (p *Plugin) Services() []discovery.Module {
	return p.orchestrator.Modules()
}

// Scan runs one discovery pass.
func (p *Plugin) Scan(ctx context.Context, session resource.Session, services discovery.ServiceFilter) (*discovery.Report, error) {
	accountID := p.accountID
	if accountID == "" {
		id, err := p.identity(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve account: %w", err)
		}
		accountID = id
	}

	log.Info().
		Str("session", session.ID).
		Str("account", accountID).
		Str("strategy", p.factory.Strategy().Name()).
		Msg("starting aws scan")

	return p.orchestrator.Run(ctx, session, accountID, services)
}

func (p *Plugin) callerIdentity(ctx context.Context) (string, error) {
	cfg, err := p.factory.Base(ctx, homeRegion)
	if err != nil {
		return "", err
	}
	return awsclient.AccountID(ctx, sts.NewFromConfig(cfg))
}

// enabledRegions enumerates regions with the scan's own credentials.
type enabledRegions struct {
	factory *awsclient.Factory
}

func (e enabledRegions) Regions(ctx context.Context) ([]string, error) {
	cfg, err := e.factory.Base(ctx, homeRegion)
	if err != nil {
		return nil, err
	}
	return awsclient.NewEC2Regions(ec2.NewFromConfig(cfg)).Regions(ctx)
}
