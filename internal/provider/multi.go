package provider

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/subham/flightsearch/internal/logger"
)

// maxTrackedKeywords bounds the keyword → provider memory used for paging.
const maxTrackedKeywords = 256

// providerEntry pairs a provider with its optional rate limit.
type providerEntry struct {
	provider LocationProvider
	limit    *RateLimit // nil = unlimited
}

// MultiProvider tries multiple LocationProviders, selecting by available rate
// limit capacity. Offsets are provider specific, so later pages of a keyword
// are always asked from the provider that served its first page.
type MultiProvider struct {
	log *slog.Logger

	mu      sync.Mutex
	entries []providerEntry
	// servedBy tracks which provider answered the first page of a keyword.
	servedBy map[string]int
}

// NewMultiProvider creates a provider that selects from the given providers
// based on rate limits, in the given order when capacities are equal.
func NewMultiProvider(log *slog.Logger, providers ...LocationProvider) *MultiProvider {
	entries := make([]providerEntry, len(providers))
	for i, p := range providers {
		entries[i] = providerEntry{provider: p}
	}
	return &MultiProvider{
		log:      logger.Component(log, "provider"),
		entries:  entries,
		servedBy: make(map[string]int),
	}
}

// SetRateLimit configures a rate limit for a provider by name.
func (m *MultiProvider) SetRateLimit(providerName string, maxReqs int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].provider.Name() == providerName {
			m.entries[i].limit = NewRateLimit(maxReqs, window)
			m.log.Info("rate limit configured",
				slog.String("provider", providerName),
				slog.Int("requests", maxReqs),
				slog.Duration("window", window))
			return
		}
	}
}

func (m *MultiProvider) Name() string {
	return "multi"
}

// sortedByCapacity returns provider indices sorted by descending rate limit capacity.
// Providers with no rate limit (unlimited) are scored at 100%.
// Providers at 0% capacity are excluded. Must be called with mu held.
func (m *MultiProvider) sortedByCapacity() []int {
	type scored struct {
		idx      int
		capacity float64
	}

	var candidates []scored
	for i, e := range m.entries {
		capacity := 1.0
		if e.limit != nil {
			capacity = e.limit.CapacityPct()
		}
		if capacity <= 0 {
			continue
		}
		candidates = append(candidates, scored{idx: i, capacity: capacity})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].capacity > candidates[b].capacity
	})

	indices := make([]int, len(candidates))
	for i, c := range candidates {
		indices[i] = c.idx
	}
	return indices
}

// take consumes one request of the provider at idx if its limit allows it.
// Must be called with mu held.
func (m *MultiProvider) take(idx int) bool {
	lim := m.entries[idx].limit
	return lim == nil || lim.Allow()
}

// logRateStatus logs current rate limit status for all providers.
func (m *MultiProvider) logRateStatus() {
	for _, e := range m.entries {
		if e.limit != nil {
			m.log.Debug("rate limit status",
				slog.String("provider", e.provider.Name()),
				slog.Int("remaining", e.limit.Remaining()),
				slog.Float64("capacity", e.limit.CapacityPct()))
		}
	}
}

// SearchLocations tries providers sorted by capacity until one returns
// results. Later pages go to the provider that served the first page.
func (m *MultiProvider) SearchLocations(ctx context.Context, keyword string, offset int) (Page, error) {
	key := strings.ToLower(strings.TrimSpace(keyword))
	if offset > 0 {
		return m.searchNextPage(ctx, key, keyword, offset)
	}

	m.mu.Lock()
	order := m.sortedByCapacity()
	if len(order) == 0 {
		m.logRateStatus()
		m.mu.Unlock()
		return Page{}, m.rateLimited()
	}
	m.mu.Unlock()

	var lastErr error
	var empty *Page
	emptyIdx := -1
	for _, i := range order {
		m.mu.Lock()
		p := m.entries[i].provider
		allowed := m.take(i)
		m.mu.Unlock()

		if !allowed {
			m.log.Debug("rate-limited, skipping", slog.String("provider", p.Name()))
			continue
		}

		page, err := p.SearchLocations(ctx, keyword, 0)
		if err != nil {
			m.log.Warn("search failed", slog.String("provider", p.Name()), slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		if len(page.Records) == 0 {
			m.log.Debug("returned 0 locations, trying next", slog.String("provider", p.Name()))
			if empty == nil {
				empty, emptyIdx = &page, i
			}
			continue
		}
		m.log.Debug("search served",
			slog.String("provider", p.Name()),
			slog.String("keyword", keyword),
			slog.Int("locations", len(page.Records)))
		m.remember(key, i)
		return page, nil
	}

	if empty != nil {
		m.remember(key, emptyIdx)
		return *empty, nil
	}
	m.mu.Lock()
	m.logRateStatus()
	m.mu.Unlock()
	if lastErr != nil {
		return Page{}, lastErr
	}
	return Page{}, m.rateLimited()
}

func (m *MultiProvider) searchNextPage(ctx context.Context, key, keyword string, offset int) (Page, error) {
	m.mu.Lock()
	idx, ok := m.servedBy[key]
	if !ok {
		idx = 0
	}
	if idx >= len(m.entries) {
		m.mu.Unlock()
		return Page{}, &Error{Kind: KindConfig, Provider: m.Name(), Message: DefaultMessage}
	}
	p := m.entries[idx].provider
	allowed := m.take(idx)
	m.mu.Unlock()

	if !allowed {
		m.log.Debug("rate-limited for next page", slog.String("provider", p.Name()))
		return Page{}, m.rateLimited()
	}
	return p.SearchLocations(ctx, keyword, offset)
}

func (m *MultiProvider) remember(key string, idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.servedBy) >= maxTrackedKeywords {
		clear(m.servedBy)
	}
	m.servedBy[key] = idx
}

func (m *MultiProvider) rateLimited() error {
	return &Error{
		Kind:     KindRateLimited,
		Provider: m.Name(),
		Message:  "Too many searches, please wait a moment",
	}
}
