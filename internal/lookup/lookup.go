// Package lookup is the caching facade in front of the location providers.
// Every page it fetches is kept for a few minutes and fed into the code index;
// concurrent requests for the same page share one provider call.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/subham/flightsearch/internal/cache"
	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/provider"
)

// DefaultTTL is how long fetched pages and free-text resolutions stay fresh.
const DefaultTTL = 5 * time.Minute

var (
	// ErrEmptyInput is returned by ResolveCode for blank input.
	ErrEmptyInput = errors.New("lookup: empty input")
	// ErrNoMatch is returned by ResolveCode when nothing matches the input.
	ErrNoMatch = errors.New("lookup: no match")
)

// Service looks up locations through a provider with caching.
type Service struct {
	provider provider.LocationProvider
	index    *cache.CodeIndex
	pages    *cache.PageCache[provider.Page]
	resolved *cache.PageCache[string]
	group    singleflight.Group
	minLen   int
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	ttl    time.Duration
	minLen int
	log    *slog.Logger
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMinQueryLength overrides location.MinQueryLength.
func WithMinQueryLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minLen = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New creates a Service. Results are recorded into index.
func New(p provider.LocationProvider, index *cache.CodeIndex, opts ...Option) *Service {
	o := options{ttl: DefaultTTL, minLen: location.MinQueryLength}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		provider: p,
		index:    index,
		pages:    cache.NewPageCache[provider.Page](o.ttl),
		resolved: cache.NewPageCache[string](o.ttl),
		minLen:   o.minLen,
		log:      logger.Component(o.log, "lookup"),
	}
}

// Index returns the code index the service feeds.
func (s *Service) Index() *cache.CodeIndex { return s.index }

// Close stops the cache sweepers.
func (s *Service) Close() {
	s.pages.Close()
	s.resolved.Close()
}

// PageKey is the page cache key of (keyword, offset).
func PageKey(keyword string, offset int) string {
	return strings.ToLower(strings.TrimSpace(keyword)) + "::" + strconv.Itoa(offset)
}

// MinQueryLength returns the shortest keyword Search sends to the provider.
func (s *Service) MinQueryLength() int { return s.minLen }

// Search returns one page of locations matching keyword. Keywords shorter
// than the minimum query length yield an empty page without a provider call.
// Callers asking for the same page share one provider call, which is not
// cancelled when one of them gives up.
func (s *Service) Search(ctx context.Context, keyword string, offset int) (provider.Page, error) {
	trimmed := strings.TrimSpace(keyword)
	if len([]rune(trimmed)) < s.minLen {
		return provider.Page{}, nil
	}
	return s.fetch(ctx, trimmed, offset)
}

// fetch serves a page from the cache or the provider. The resolve paths call
// it directly, since a code is worth looking up whatever the typing minimum.
func (s *Service) fetch(ctx context.Context, trimmed string, offset int) (provider.Page, error) {
	key := PageKey(trimmed, offset)
	if page, ok := s.pages.Get(key); ok {
		return page, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		if page, ok := s.pages.Get(key); ok {
			return page, nil
		}
		page, err := s.provider.SearchLocations(context.WithoutCancel(ctx), trimmed, offset)
		if err != nil {
			return provider.Page{}, err
		}
		s.pages.Set(key, page)
		if s.index != nil {
			s.index.PutAll(page.Records)
		}
		return page, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return provider.Page{}, ctx.Err()
	}
	if res.Err != nil {
		return provider.Page{}, res.Err
	}
	if res.Shared {
		s.log.Debug("lookup shared", slog.String("key", key))
	}
	return res.Val.(provider.Page), nil
}

// ResolveByCode looks a bare code up and returns its best record: a CITY
// with that code when present, the first record with that code otherwise.
// It returns (nil, nil) when nothing has that code.
func (s *Service) ResolveByCode(ctx context.Context, code string) (*location.Record, error) {
	upper := location.NormalizeCode(code)
	if !location.IsCode(upper) {
		return nil, nil
	}

	page, err := s.fetch(ctx, upper, 0)
	if err != nil {
		return nil, err
	}
	match := bestByCode(upper, page.Records)
	if match == nil {
		return nil, nil
	}
	if s.index != nil {
		s.index.Put(*match)
	}
	return match, nil
}

// ResolveCode turns what the user typed into a code to submit. A 3-letter
// input is taken as a code; anything else is looked up and the best match
// (an exact city, then any city, then the first result) is used.
func (s *Service) ResolveCode(ctx context.Context, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrEmptyInput
	}
	if upper := location.NormalizeCode(trimmed); location.IsCode(upper) {
		return upper, nil
	}

	key := strings.ToLower(trimmed)
	if code, ok := s.resolved.Get(key); ok {
		return code, nil
	}

	page, err := s.fetch(ctx, trimmed, 0)
	if err != nil {
		return "", fmt.Errorf("lookup: resolving %q: %w", trimmed, err)
	}
	best := bestForInput(trimmed, page.Records)
	if best == nil {
		return "", ErrNoMatch
	}
	s.resolved.Set(key, best.Code)
	return best.Code, nil
}

func bestByCode(code string, records []location.Record) *location.Record {
	var first *location.Record
	for i := range records {
		r := &records[i]
		if location.NormalizeCode(r.Code) != code {
			continue
		}
		if r.Kind == location.City {
			rec := *r
			return &rec
		}
		if first == nil {
			first = r
		}
	}
	if first == nil {
		return nil
	}
	rec := *first
	return &rec
}

func bestForInput(input string, records []location.Record) *location.Record {
	if len(records) == 0 {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(input))

	var anyCity *location.Record
	for i := range records {
		r := &records[i]
		if r.Kind != location.City {
			continue
		}
		name := r.CityName
		if name == "" {
			name = r.Name
		}
		if strings.ToLower(strings.TrimSpace(name)) == normalized {
			return r
		}
		if anyCity == nil {
			anyCity = r
		}
	}
	if anyCity != nil {
		return anyCity
	}
	return &records[0]
}
