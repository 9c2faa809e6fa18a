package amadeus

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when no client id/secret is configured.
	ErrMissingCredentials = errors.New("amadeus: missing credentials")
	// ErrToken is returned when the token endpoint rejects the client.
	ErrToken = errors.New("amadeus: unable to obtain access token")
	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("amadeus: unexpected response body")
)

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("amadeus: HTTP %d: %s", e.Status, e.Body)
}

// Location is one entry of the reference-data/locations response. Address
// fields take precedence over the top-level ones when both are present.
type Location struct {
	ID          string
	IATACode    string
	SubType     string // "AIRPORT" or "CITY"
	Name        string
	CityName    string
	CityCode    string
	CountryCode string
}

// LocationsPage is one page of location search results.
type LocationsPage struct {
	Locations []Location
	// NextOffset is the page[offset] of the next page, nil on the last page.
	NextOffset *int
}
