package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kartta/internal/daemon"
	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/internal/emitter"
	"github.com/yairfalse/kartta/internal/filter"
	"github.com/yairfalse/kartta/internal/plugin"
	"github.com/yairfalse/kartta/internal/plugin/aws"
	"github.com/yairfalse/kartta/internal/telemetry"
	"github.com/yairfalse/kartta/pkg/resource"
)

var (
	scanRegions         []string
	scanServices        []string
	scanExcludeServices []string
	scanOnce            bool
	scanStrategy        string
	scanRoleARN         string
	scanExternalID      string
	scanEndpoint        string
	scanWorkers         int
	scanPretty          bool
	scanOutput          string
	scanNoServer        bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover resources",
	Long: `Discover resources in every enabled region and service and emit one
envelope per resource.

By default kartta keeps running and rescans on scan.interval, serving
/metrics, /healthz, /readyz and /status on metrics.addr. Pass --once to run a
single pass and exit.`,
	Example: `  kartta scan --once --region eu-west-1 --service s3,ec2
  kartta scan --strategy assume-role --role-arn arn:aws:iam::123456789012:role/kartta --external-id ext`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringSliceVarP(&scanRegions, "region", "r", nil, "Regions to scan (default: all enabled)")
	f.StringSliceVarP(&scanServices, "service", "s", nil, "Services to scan (default: all)")
	f.StringSliceVar(&scanExcludeServices, "exclude-service", nil, "Services to skip")
	f.BoolVar(&scanOnce, "once", false, "Run a single scan and exit")
	f.StringVar(&scanStrategy, "strategy", "", "Credential strategy: local or assume-role")
	f.StringVar(&scanRoleARN, "role-arn", "", "Role to assume")
	f.StringVar(&scanExternalID, "external-id", "", "External ID for the assumed role")
	f.StringVar(&scanEndpoint, "endpoint", "", "Custom AWS endpoint (e.g. LocalStack)")
	f.IntVarP(&scanWorkers, "workers", "w", 0, "Concurrent (region, service) units")
	f.BoolVar(&scanPretty, "pretty", false, "Indent JSON output")
	f.StringVarP(&scanOutput, "output", "o", "", "Write envelopes to a file instead of stdout")
	f.BoolVar(&scanNoServer, "no-server", false, "Do not start the metrics server")

	rootCmd.AddCommand(scanCmd)
}

// applyScanFlags folds command-line overrides into cfg and revalidates it.
func applyScanFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("region") {
		cfg.AWS.Regions = scanRegions
	}
	if f.Changed("service") {
		cfg.AWS.Services = scanServices
	}
	if f.Changed("exclude-service") {
		cfg.AWS.ExcludeServices = scanExcludeServices
	}
	if f.Changed("once") {
		cfg.Scan.OneShot = scanOnce
	}
	if f.Changed("strategy") {
		cfg.AWS.Strategy = scanStrategy
	}
	if f.Changed("role-arn") {
		cfg.AWS.RoleARN = scanRoleARN
	}
	if f.Changed("external-id") {
		cfg.AWS.ExternalID = scanExternalID
	}
	if f.Changed("endpoint") {
		cfg.AWS.Endpoint = scanEndpoint
	}
	if f.Changed("workers") {
		cfg.Scan.Workers = scanWorkers
	}
	if f.Changed("pretty") {
		cfg.Emit.Pretty = scanPretty
	}
	if f.Changed("output") {
		cfg.Emit.Output = scanOutput
	}
	return cfg.Validate()
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := applyScanFlags(cmd); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	var extra []emitter.Emitter
	var collected *emitter.Collector
	if cfg.Scan.OneShot {
		collected = emitter.NewCollector()
		extra = append(extra, collected)
	}

	out, err := buildSinks(cfg.Emit, cmd.OutOrStdout(), provider.Meter(), extra...)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			log.Warn().Err(err).Msg("close sinks")
		}
	}()

	services := filter.New(cfg.AWS.Services, cfg.AWS.ExcludeServices, cfg.AWS.ExcludeTypes)

	p, err := aws.New(ctx, aws.Config{
		Strategy:      cfg.AWS.Strategy,
		RoleARN:       cfg.AWS.RoleARN,
		ExternalID:    cfg.AWS.ExternalID,
		Profile:       cfg.AWS.Profile,
		Endpoint:      cfg.AWS.Endpoint,
		Regions:       cfg.AWS.Regions,
		AccountID:     cfg.AWS.AccountID,
		Workers:       cfg.Scan.Workers,
		ModuleTimeout: cfg.Scan.ModuleTimeout,
		Recorder:      provider,
	}, services.Emitter(out))
	if err != nil {
		return err
	}
	plugin.Register(p)
	defer plugin.Clear()

	scan := func(ctx context.Context, s resource.Session) (*discovery.Report, error) {
		return p.Scan(ctx, s, services)
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval: cfg.Scan.Interval,
		Provider: p.Name(),
	}, scan, daemon.NewDaemonMetrics())
	if err != nil {
		return err
	}

	var g run.Group

	if !scanNoServer && cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMux(provider.Handler(), d),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(serverActor(srv))
	}

	var (
		report  *discovery.Report
		scanErr error
	)
	scanCtx, scanCancel := context.WithCancel(ctx)
	if cfg.Scan.OneShot {
		g.Add(func() error {
			report, scanErr = d.RunOnce(scanCtx)
			return errScanDone
		}, func(error) {
			scanCancel()
		})
	} else {
		g.Add(func() error {
			return d.Start(scanCtx)
		}, func(error) {
			scanCancel()
		})
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	runErr := g.Run()
	scanCancel()

	var sigErr run.SignalError
	switch {
	case errors.As(runErr, &sigErr):
		log.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
	case runErr == nil, errors.Is(runErr, errScanDone), errors.Is(runErr, context.Canceled):
	default:
		return runErr
	}

	if !cfg.Scan.OneShot {
		return nil
	}
	if report != nil {
		printSummary(cmd.ErrOrStderr(), report, collected)
	}
	return scanErr
}

// errScanDone ends the run group after a one-shot scan.
var errScanDone = errors.New("scan complete")

// printSummary writes per-type envelope counts and any failed units.
func printSummary(w io.Writer, report *discovery.Report, collected *emitter.Collector) {
	fmt.Fprintf(w, "\nScan %s: account %s, %d regions, %d services, %d resources in %s\n",
		report.Session.ID, report.AccountID, len(report.Regions), len(report.Services),
		report.Envelopes(), report.Duration.Round(time.Millisecond))

	if collected != nil && collected.Len() > 0 {
		counts := map[string]int{}
		for _, env := range collected.Envelopes() {
			counts[env.Contents.ResourceType()]++
		}
		types := slices.Sorted(maps.Keys(counts))

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tCOUNT")
		for _, t := range types {
			fmt.Fprintf(tw, "%s\t%d\n", t, counts[t])
		}
		_ = tw.Flush()
	}

	if failed := report.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "\n%d units failed:\n", len(failed))
		for _, u := range failed {
			fmt.Fprintf(w, "  %s/%s [%s]: %v\n", u.Region, u.Service, u.Kind, u.Err)
		}
	}
	if n := report.Cancelled(); n > 0 {
		fmt.Fprintf(w, "%d units cancelled\n", n)
	}
}
