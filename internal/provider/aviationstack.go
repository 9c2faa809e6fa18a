package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/subham/flightsearch/internal/location"
)

const aviationstackBaseURL = "http://api.aviationstack.com/v1"

// AviationStackProvider implements LocationProvider using the AviationStack
// airports endpoint. It only knows airports, never cities.
type AviationStackProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAviationStackProvider creates a new AviationStack provider. An empty
// baseURL selects the public endpoint.
func NewAviationStackProvider(apiKey, baseURL string) *AviationStackProvider {
	if baseURL == "" {
		baseURL = aviationstackBaseURL
	}
	return &AviationStackProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (a *AviationStackProvider) Name() string { return "aviationstack" }

// SearchLocations returns airports whose name or code matches keyword.
func (a *AviationStackProvider) SearchLocations(ctx context.Context, keyword string, offset int) (Page, error) {
	if a.apiKey == "" {
		return Page{}, &Error{Kind: KindConfig, Provider: a.Name(), Message: "Location search is not configured"}
	}

	params := url.Values{
		"access_key": {a.apiKey},
		"search":     {keyword},
		"limit":      {strconv.Itoa(PageSize)},
		"offset":     {strconv.Itoa(offset)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/airports?"+params.Encode(), nil)
	if err != nil {
		return Page{}, &Error{Kind: KindTransport, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: creating request: %w", err)}
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Page{}, &Error{Kind: KindTransport, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Page{}, &Error{Kind: KindRateLimited, Provider: a.Name(),
			Message: "Too many searches, please wait a moment", Err: fmt.Errorf("aviationstack: HTTP %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Page{}, &Error{Kind: KindAuth, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Page{}, &Error{Kind: KindTransport, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: HTTP %d", resp.StatusCode)}
	}

	var raw asResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Page{}, &Error{Kind: KindParse, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: decode error: %w", err)}
	}
	// AviationStack reports API errors with a 200 and an error object.
	if raw.Error != nil {
		kind := KindTransport
		if raw.Error.Code == "usage_limit_reached" || raw.Error.Code == "rate_limit_reached" {
			kind = KindRateLimited
		} else if strings.Contains(raw.Error.Code, "access_key") {
			kind = KindAuth
		}
		return Page{}, &Error{Kind: kind, Provider: a.Name(), Message: DefaultMessage,
			Err: fmt.Errorf("aviationstack: %s: %s", raw.Error.Code, raw.Error.Message)}
	}

	page := Page{}
	for _, ap := range raw.Data {
		if rec, ok := ap.toRecord(); ok {
			page.Records = append(page.Records, rec)
		}
	}
	if raw.Pagination != nil {
		page.NextOffset = nextOffset(offset, raw.Pagination.Count, raw.Pagination.Total)
	}
	return page, nil
}

// ── AviationStack JSON types ──

type asResponse struct {
	Pagination *asPagination `json:"pagination"`
	Data       []asAirport   `json:"data"`
	Error      *asError      `json:"error"`
}

type asPagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Count  int `json:"count"`
	Total  int `json:"total"`
}

type asError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type asAirport struct {
	AirportName  string `json:"airport_name"`
	IATA         string `json:"iata_code"`
	ICAO         string `json:"icao_code"`
	CountryISO2  string `json:"country_iso2"`
	CityIATACode string `json:"city_iata_code"`
}

func (a *asAirport) toRecord() (location.Record, bool) {
	if !location.IsCode(a.IATA) {
		return location.Record{}, false
	}
	return location.New(a.IATA, a.CityIATACode, a.AirportName, "", a.CountryISO2, location.Airport), true
}
