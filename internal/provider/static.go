package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/subham/flightsearch/internal/location"
)

//go:embed assets/locations.json
var locationsJSON []byte

// StaticProvider serves lookups from an embedded dataset of major cities and
// airports. It never fails at request time and is the last provider in the
// failover chain.
type StaticProvider struct {
	records []location.Record
}

// NewStaticProvider parses the embedded dataset.
func NewStaticProvider() (*StaticProvider, error) {
	return newStaticProvider(locationsJSON)
}

func newStaticProvider(raw []byte) (*StaticProvider, error) {
	var data struct {
		Locations []location.Record `json:"locations"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("static: could not parse locations dataset: %w", err)
	}

	records := make([]location.Record, 0, len(data.Locations))
	for _, r := range data.Locations {
		if !location.IsCode(r.Code) {
			continue
		}
		records = append(records, location.New(r.Code, r.CityCode, r.Name, r.CityName, r.CountryCode, r.Kind))
	}
	return &StaticProvider{records: records}, nil
}

func (s *StaticProvider) Name() string { return "static" }

// Len returns the number of records in the dataset.
func (s *StaticProvider) Len() int { return len(s.records) }

// SearchLocations matches keyword against codes (prefix) and names.
func (s *StaticProvider) SearchLocations(ctx context.Context, keyword string, offset int) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, &Error{Kind: KindTransport, Provider: s.Name(), Message: DefaultMessage, Err: err}
	}

	needle := strings.ToLower(strings.TrimSpace(keyword))
	var matches []location.Record
	for _, r := range s.records {
		if matchesKeyword(r, needle) {
			matches = append(matches, r)
		}
	}

	if offset < 0 || offset >= len(matches) {
		return Page{}, nil
	}
	end := min(offset+PageSize, len(matches))
	return Page{
		Records:    append([]location.Record(nil), matches[offset:end]...),
		NextOffset: nextOffset(offset, end-offset, len(matches)),
	}, nil
}

func matchesKeyword(r location.Record, needle string) bool {
	if needle == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(r.Code), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(r.Name), needle) ||
		strings.Contains(strings.ToLower(r.CityName), needle)
}
