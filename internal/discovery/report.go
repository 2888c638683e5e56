package discovery

import (
	"time"

	"github.com/yairfalse/kartta/pkg/resource"
)

// UnitResult is the outcome of one (region, module) invocation.
type UnitResult struct {
	Service   string
	Region    string
	Envelopes int
	Dropped   int
	Skipped   int
	Duration  time.Duration
	Err       error
	Kind      ErrorKind
	Cancelled bool
}

// OK reports whether the unit ran to completion without error.
func (u UnitResult) OK() bool {
	return u.Err == nil && !u.Cancelled
}

// Report summarizes a scan.
type Report struct {
	Session   resource.Session
	AccountID string
	Regions   []string
	Services  []string
	Units     []UnitResult
	Duration  time.Duration
}

// Envelopes is the total emitted across all units.
func (r *Report) Envelopes() int {
	total := 0
	for _, u := range r.Units {
		total += u.Envelopes
	}
	return total
}

// Dropped is the total of envelopes discarded by the sink, such as those
// removed by a type filter.
func (r *Report) Dropped() int {
	total := 0
	for _, u := range r.Units {
		total += u.Dropped
	}
	return total
}

// Failed returns the units that ended in error.
func (r *Report) Failed() []UnitResult {
	var out []UnitResult
	for _, u := range r.Units {
		if u.Err != nil {
			out = append(out, u)
		}
	}
	return out
}

// Cancelled counts units never started because the scan was cancelled.
func (r *Report) Cancelled() int {
	n := 0
	for _, u := range r.Units {
		if u.Cancelled {
			n++
		}
	}
	return n
}
