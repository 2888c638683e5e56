package discovery

import (
	"context"
	"slices"
)

// RegionSource enumerates the regions a scan covers.
type RegionSource interface {
	Regions(ctx context.Context) ([]string, error)
}

// StaticRegions is a fixed region list from configuration.
type StaticRegions []string

// Regions returns a copy of the list.
func (s StaticRegions) Regions(context.Context) ([]string, error) {
	return slices.Clone(s), nil
}

// supports reports whether m should run in region.
func supports(m Module, region string) bool {
	regions := m.Regions()
	if regions == nil {
		return true
	}
	return slices.Contains(regions, region)
}
