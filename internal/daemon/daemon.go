// Package daemon runs discovery scans repeatedly on an interval.
package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kartta/internal/discovery"
	"github.com/yairfalse/kartta/pkg/resource"
)

// ScanFunc runs one discovery pass under session.
type ScanFunc func(ctx context.Context, session resource.Session) (*discovery.Report, error)

// Config holds daemon configuration
type Config struct {
	Interval time.Duration
	Provider string
}

// Daemon manages continuous discovery
type Daemon struct {
	interval  time.Duration
	provider  string
	scan      ScanFunc
	metrics   *DaemonMetrics
	startTime time.Time
	scanCount atomic.Int64

	mu       sync.RWMutex
	last     *discovery.Report
	lastErr  error
	lastScan time.Time
}

// NewDaemon creates a new daemon instance
func NewDaemon(config Config, scan ScanFunc, metrics *DaemonMetrics) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, errors.New("daemon interval must be positive")
	}
	if scan == nil {
		return nil, errors.New("daemon requires a scan function")
	}
	return &Daemon{
		interval:  config.Interval,
		provider:  config.Provider,
		scan:      scan,
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// Start scans immediately and then on every tick until ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce runs a scan under a fresh session and records its outcome.
func (d *Daemon) RunOnce(ctx context.Context) (*discovery.Report, error) {
	session := resource.NewSession()
	start := time.Now()

	report, err := d.scan(ctx, session)
	d.scanCount.Add(1)

	status := "success"
	switch {
	case err != nil:
		status = "error"
		log.Error().Err(err).Str("session", session.ID).Msg("scan failed")
	case report != nil && len(report.Failed()) > 0:
		status = "partial"
	}

	if d.metrics != nil {
		d.metrics.RecordScan(ctx, status, d.provider)
		d.metrics.RecordScanDuration(ctx, time.Since(start).Seconds(), status)
		if report != nil {
			for _, u := range report.Units {
				if !u.Cancelled {
					d.metrics.RecordEnvelopes(ctx, int64(u.Envelopes), u.Service, d.provider, u.Region)
				}
			}
		}
	}

	d.mu.Lock()
	d.lastErr = err
	d.lastScan = time.Now()
	if report != nil {
		d.last = report
	}
	d.mu.Unlock()

	if report != nil {
		log.Info().
			Str("session", session.ID).
			Int("envelopes", report.Envelopes()).
			Int("dropped", report.Dropped()).
			Int("failed_units", len(report.Failed())).
			Dur("duration", report.Duration).
			Msg("scan complete")
	}
	return report, err
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := HealthStatus{
		Status: "healthy",
		Uptime: int64(time.Since(d.startTime).Seconds()),
		Scans:  d.scanCount.Load(),
	}
	if !d.lastScan.IsZero() {
		h.LastScan = d.lastScan
	}
	if d.lastErr != nil {
		h.Status = "degraded"
		h.LastError = d.lastErr.Error()
	}
	return h
}

// Ready reports whether at least one scan produced a report.
func (d *Daemon) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last != nil
}

// LastReport returns the most recent report, or nil.
func (d *Daemon) LastReport() *discovery.Report {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime"`
	Scans     int64     `json:"scans"`
	LastScan  time.Time `json:"lastScan,omitzero"`
	LastError string    `json:"lastError,omitempty"`
}

// ScanCount returns total scans run
func (d *Daemon) ScanCount() int64 {
	return d.scanCount.Load()
}
