package provider

import "context"

// PageSize is how many locations a provider returns per page.
const PageSize = 8

// LocationProvider is the interface for all location data sources.
type LocationProvider interface {
	// Name returns a human-readable provider name for logging.
	Name() string

	// SearchLocations returns cities and airports matching keyword, starting
	// at offset. Page.NextOffset is nil when there is no further page.
	SearchLocations(ctx context.Context, keyword string, offset int) (Page, error)
}
