package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/subham/flightsearch/internal/amadeus"
	"github.com/subham/flightsearch/internal/location"
)

// AmadeusProvider implements LocationProvider using the Amadeus
// reference-data/locations endpoint.
type AmadeusProvider struct {
	client   *amadeus.Client
	pageSize int
}

// NewAmadeusProvider creates a new Amadeus provider.
func NewAmadeusProvider(client *amadeus.Client) *AmadeusProvider {
	return &AmadeusProvider{client: client, pageSize: PageSize}
}

func (a *AmadeusProvider) Name() string { return "amadeus" }

// SearchLocations returns one page of cities and airports matching keyword.
func (a *AmadeusProvider) SearchLocations(ctx context.Context, keyword string, offset int) (Page, error) {
	raw, err := a.client.SearchLocations(ctx, keyword, offset, a.pageSize)
	if err != nil {
		return Page{}, a.classify(err)
	}

	page := Page{NextOffset: raw.NextOffset}
	for _, l := range raw.Locations {
		kind := location.Kind(strings.ToUpper(l.SubType))
		if kind != location.City && kind != location.Airport {
			continue
		}
		if !location.IsCode(l.IATACode) {
			continue
		}
		page.Records = append(page.Records, location.New(
			l.IATACode, l.CityCode, titleCase(l.Name), titleCase(l.CityName), l.CountryCode, kind))
	}
	return page, nil
}

func (a *AmadeusProvider) classify(err error) error {
	pe := &Error{Provider: a.Name(), Err: err, Message: DefaultMessage}

	var httpErr *amadeus.HTTPError
	switch {
	case errors.Is(err, amadeus.ErrMissingCredentials):
		pe.Kind = KindConfig
		pe.Message = "Location search is not configured"
	case errors.Is(err, amadeus.ErrToken):
		pe.Kind = KindAuth
	case errors.Is(err, amadeus.ErrDecode):
		pe.Kind = KindParse
	case errors.As(err, &httpErr):
		switch httpErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			pe.Kind = KindAuth
		case http.StatusTooManyRequests:
			pe.Kind = KindRateLimited
			pe.Message = "Too many searches, please wait a moment"
		default:
			pe.Kind = KindTransport
		}
	default:
		pe.Kind = KindTransport
	}
	return pe
}

// titleCase turns the API's upper-case names ("LONDON HEATHROW") into
// "London Heathrow".
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}
