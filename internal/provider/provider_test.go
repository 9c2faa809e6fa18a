package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subham/flightsearch/internal/amadeus"
	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/logger"
)

type fakeProvider struct {
	name string
	page Page
	err  error

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SearchLocations(_ context.Context, keyword string, offset int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s@%d", keyword, offset))
	return f.page, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func pageOf(codes ...string) Page {
	var p Page
	for _, c := range codes {
		p.Records = append(p.Records, location.New(c, "", "Airport "+c, "", "", location.Airport))
	}
	return p
}

func TestMessage(t *testing.T) {
	assert.Equal(t, DefaultMessage, Message(errors.New("boom")))
	assert.Equal(t, DefaultMessage, Message(&Error{Kind: KindParse}))

	wrapped := fmt.Errorf("lookup: %w", &Error{Kind: KindRateLimited, Message: "slow down"})
	assert.Equal(t, "slow down", Message(wrapped))
	assert.True(t, IsKind(wrapped, KindRateLimited))
	assert.False(t, IsKind(wrapped, KindAuth))

	cause := errors.New("dial tcp")
	assert.ErrorIs(t, &Error{Kind: KindTransport, Err: cause}, cause)
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRateLimit(2, time.Minute)
	r.now = func() time.Time { return now }

	assert.Equal(t, 2, r.Remaining())
	assert.InDelta(t, 1.0, r.CapacityPct(), 0.001)
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())
	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, 30*time.Second, r.WaitDuration())

	now = now.Add(30 * time.Second)
	assert.True(t, r.Allow(), "one token refilled")

	zero := NewRateLimit(0, time.Minute)
	assert.False(t, zero.Allow())
	assert.Zero(t, zero.CapacityPct())
}

func TestStaticProvider(t *testing.T) {
	s, err := NewStaticProvider()
	require.NoError(t, err)
	require.Positive(t, s.Len())

	t.Run("MatchesCityAndAirports", func(t *testing.T) {
		page, err := s.SearchLocations(context.Background(), "london", 0)
		require.NoError(t, err)

		var codes []string
		for _, r := range page.Records {
			codes = append(codes, r.Code)
		}
		assert.Contains(t, codes, "LON")
		assert.Contains(t, codes, "LHR")
		assert.Nil(t, page.NextOffset)
	})

	t.Run("CodePrefix", func(t *testing.T) {
		page, err := s.SearchLocations(context.Background(), "JF", 0)
		require.NoError(t, err)
		require.NotEmpty(t, page.Records)
		assert.Equal(t, "JFK", page.Records[0].Code)
		assert.Equal(t, "John F Kennedy International, New York, US (JFK)", page.Records[0].Label)
	})

	t.Run("Pagination", func(t *testing.T) {
		page, err := s.SearchLocations(context.Background(), "a", 0)
		require.NoError(t, err)
		require.Len(t, page.Records, PageSize)
		require.NotNil(t, page.NextOffset)
		assert.Equal(t, PageSize, *page.NextOffset)

		next, err := s.SearchLocations(context.Background(), "a", *page.NextOffset)
		require.NoError(t, err)
		assert.NotEqual(t, page.Records[0].Key(), next.Records[0].Key())
	})

	t.Run("BadDataset", func(t *testing.T) {
		_, err := newStaticProvider([]byte("{"))
		assert.Error(t, err)
	})
}

func TestAviationStackProvider(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/airports", r.URL.Path)
		switch r.URL.Query().Get("search") {
		case "limit":
			_, _ = w.Write([]byte(`{"error":{"code":"usage_limit_reached","message":"monthly limit"}}`))
		case "broken":
			_, _ = w.Write([]byte(`not json`))
		default:
			_, _ = w.Write([]byte(`{
  "pagination": {"offset": 0, "limit": 8, "count": 2, "total": 12},
  "data": [
    {"airport_name": "Heathrow", "iata_code": "LHR", "icao_code": "EGLL", "country_iso2": "GB", "city_iata_code": "LON"},
    {"airport_name": "Heliport", "iata_code": "", "icao_code": "XXXX", "country_iso2": "GB"}
  ]
}`))
		}
	}))
	defer srv.Close()

	a := NewAviationStackProvider("key", srv.URL)

	page, err := a.SearchLocations(context.Background(), "heath", 0)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, location.New("LHR", "LON", "Heathrow", "", "GB", location.Airport), page.Records[0])
	require.NotNil(t, page.NextOffset)
	assert.Equal(t, 2, *page.NextOffset)
	assert.Contains(t, gotQuery, "access_key=key")

	_, err = a.SearchLocations(context.Background(), "limit", 0)
	assert.True(t, IsKind(err, KindRateLimited))

	_, err = a.SearchLocations(context.Background(), "broken", 0)
	assert.True(t, IsKind(err, KindParse))

	_, err = NewAviationStackProvider("", srv.URL).SearchLocations(context.Background(), "heath", 0)
	assert.True(t, IsKind(err, KindConfig))
}

func TestAmadeusProvider(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":1799}`))
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"meta":{"links":{}},"data":[
  {"subType":"CITY","name":"LONDON","iataCode":"LON","address":{"cityName":"LONDON","cityCode":"LON","countryCode":"GB"}},
  {"subType":"AIRPORT","name":"HEATHROW","iataCode":"LHR","address":{"cityName":"LONDON","cityCode":"LON","countryCode":"GB"}},
  {"subType":"POINT_OF_INTEREST","name":"BIG BEN","iataCode":"BBN"}
]}`))
	}))
	defer srv.Close()

	p := NewAmadeusProvider(amadeus.NewClient(amadeus.Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}))

	page, err := p.SearchLocations(context.Background(), "lon", 0)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "London, GB (LON)", page.Records[0].Label)
	assert.Equal(t, "Heathrow, London, GB (LHR)", page.Records[1].Label)
	assert.Nil(t, page.NextOffset)

	status = http.StatusTooManyRequests
	_, err = p.SearchLocations(context.Background(), "lon", 0)
	assert.True(t, IsKind(err, KindRateLimited))

	unconfigured := NewAmadeusProvider(amadeus.NewClient(amadeus.Config{BaseURL: srv.URL}))
	_, err = unconfigured.SearchLocations(context.Background(), "lon", 0)
	assert.True(t, IsKind(err, KindConfig))
	assert.Equal(t, "Location search is not configured", Message(err))
}

func TestMultiProviderFailover(t *testing.T) {
	log := logger.Nop()

	t.Run("FallsThroughErrors", func(t *testing.T) {
		broken := &fakeProvider{name: "broken", err: &Error{Kind: KindTransport}}
		good := &fakeProvider{name: "good", page: pageOf("LHR")}
		m := NewMultiProvider(log, broken, good)

		page, err := m.SearchLocations(context.Background(), "lon", 0)
		require.NoError(t, err)
		assert.Len(t, page.Records, 1)
		assert.Equal(t, 1, broken.callCount())
	})

	t.Run("EmptyFallsThroughButIsReturnedLast", func(t *testing.T) {
		empty := &fakeProvider{name: "empty"}
		alsoEmpty := &fakeProvider{name: "also-empty"}
		m := NewMultiProvider(log, empty, alsoEmpty)

		page, err := m.SearchLocations(context.Background(), "zzz", 0)
		require.NoError(t, err)
		assert.Empty(t, page.Records)
		assert.Equal(t, 1, alsoEmpty.callCount())
	})

	t.Run("AllFailedReturnsLastError", func(t *testing.T) {
		m := NewMultiProvider(log,
			&fakeProvider{name: "a", err: &Error{Kind: KindTransport, Message: "a down"}},
			&fakeProvider{name: "b", err: &Error{Kind: KindAuth, Message: "b down"}})

		_, err := m.SearchLocations(context.Background(), "lon", 0)
		assert.Equal(t, "b down", Message(err))
	})

	t.Run("RateLimitedProviderSkipped", func(t *testing.T) {
		limited := &fakeProvider{name: "limited", page: pageOf("LHR")}
		backup := &fakeProvider{name: "backup", page: pageOf("LGW")}
		m := NewMultiProvider(log, limited, backup)
		m.SetRateLimit("limited", 1, time.Hour)

		_, err := m.SearchLocations(context.Background(), "lon", 0)
		require.NoError(t, err)
		page, err := m.SearchLocations(context.Background(), "lon", 0)
		require.NoError(t, err)

		assert.Equal(t, "LGW", page.Records[0].Code)
		assert.Equal(t, 1, limited.callCount())
	})

	t.Run("AllRateLimited", func(t *testing.T) {
		only := &fakeProvider{name: "only", page: pageOf("LHR")}
		m := NewMultiProvider(log, only)
		m.SetRateLimit("only", 1, time.Hour)

		_, err := m.SearchLocations(context.Background(), "lon", 0)
		require.NoError(t, err)
		_, err = m.SearchLocations(context.Background(), "lon", 0)
		assert.True(t, IsKind(err, KindRateLimited))
	})

	t.Run("NextPageStaysOnServingProvider", func(t *testing.T) {
		first := &fakeProvider{name: "first"}
		second := &fakeProvider{name: "second", page: pageOf("LHR")}
		m := NewMultiProvider(log, first, second)

		_, err := m.SearchLocations(context.Background(), "Lon", 0)
		require.NoError(t, err)
		_, err = m.SearchLocations(context.Background(), "lon", 8)
		require.NoError(t, err)

		assert.Equal(t, 1, first.callCount())
		assert.Equal(t, []string{"Lon@0", "lon@8"}, second.calls)
	})
}
