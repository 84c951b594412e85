// Package geo defines the IP geolocation capability. Lookup is optional and
// off by default; the shipped implementation resolves nothing, mirroring the
// pluggable-provider design of the tracking pipeline.
package geo

import (
	"context"

	"github.com/shammaa/url-shortener/internal/entity"
)

// Lookup resolves an IP to a location, or nil when the IP cannot be placed.
// Implementations must be bounded by the passed context.
type Lookup interface {
	Lookup(ctx context.Context, ip string) (*entity.GeoLocation, error)
}

// Noop is the default lookup: it places no IP.
type Noop struct{}

func (Noop) Lookup(_ context.Context, _ string) (*entity.GeoLocation, error) {
	return nil, nil
}
