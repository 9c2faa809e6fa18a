package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/provider"
)

const quiet = 20 * time.Millisecond

type response struct {
	page provider.Page
	err  error
}

type fakeSearcher struct {
	mu        sync.Mutex
	responses map[string]response
	gates     map[string]chan struct{}
	calls     []string
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		responses: make(map[string]response),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeSearcher) on(keyword string, offset int, page provider.Page, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[fmt.Sprintf("%s@%d", keyword, offset)] = response{page: page, err: err}
}

func (f *fakeSearcher) gate(keyword string, offset int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[fmt.Sprintf("%s@%d", keyword, offset)] = ch
	return ch
}

func (f *fakeSearcher) Search(ctx context.Context, keyword string, offset int) (provider.Page, error) {
	key := fmt.Sprintf("%s@%d", keyword, offset)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	gate := f.gates[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return provider.Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.responses[key]
	return r.page, r.err
}

func (f *fakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newEngine(t *testing.T, s Searcher) *Engine {
	e := New(s, Options{QuietPeriod: quiet})
	t.Cleanup(e.Close)
	return e
}

func codes(records []location.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Code
	}
	return out
}

func offset(n int) *int { return &n }

var (
	london   = location.New("LON", "LON", "London", "London", "GB", location.City)
	heathrow = location.New("LHR", "LON", "Heathrow", "London", "GB", location.Airport)
	gatwick  = location.New("LGW", "LON", "Gatwick", "London", "GB", location.Airport)
	paris    = location.New("PAR", "PAR", "Paris", "Paris", "FR", location.City)
)

func settled(e *Engine) func() bool {
	return func() bool {
		s := e.State()
		return !s.Loading && !s.LoadingMore
	}
}

func TestSearchDebounceCollapsesBurst(t *testing.T) {
	f := newFakeSearcher()
	f.on("lond", 0, provider.Page{Records: []location.Record{london}}, nil)
	e := newEngine(t, f)

	e.Search("lo")
	e.Search("lon")
	e.Search(" lond ")
	assert.True(t, e.State().Loading)

	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)
	time.Sleep(2 * quiet)

	assert.Equal(t, []string{"lond@0"}, f.Calls())
	s := e.State()
	assert.Equal(t, "lond", s.Keyword)
	assert.Equal(t, []string{"LON"}, codes(s.Options))
}

func TestSearchBelowMinimumLengthResets(t *testing.T) {
	f := newFakeSearcher()
	e := newEngine(t, f)

	e.Search("l")
	time.Sleep(2 * quiet)

	assert.Empty(t, f.Calls())
	s := e.State()
	assert.False(t, s.Loading)
	assert.Empty(t, s.Options)
	assert.Empty(t, s.Keyword)
}

func TestStaleResponseIsDropped(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}}, nil)
	f.on("par", 0, provider.Page{Records: []location.Record{paris}}, nil)
	release := f.gate("lon", 0)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	e.Search("par")
	require.Eventually(t, func() bool { return e.State().Keyword == "par" }, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(2 * quiet)

	s := e.State()
	assert.Equal(t, "par", s.Keyword)
	assert.Equal(t, []string{"PAR"}, codes(s.Options))
	assert.Equal(t, []string{"PAR"}, codes(s.LastOptions))
}

func TestFirstPageIsSorted(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{heathrow, paris, london}}, nil)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"LON", "LHR", "PAR"}, codes(e.State().Options))
}

func TestLoadMoreMergesPreservingOrder(t *testing.T) {
	renamed := location.New("LHR", "LON", "Heathrow Terminal 5", "London", "GB", location.Airport)

	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{heathrow, london}, NextOffset: offset(8)}, nil)
	f.on("lon", 8, provider.Page{Records: []location.Record{gatwick, renamed}}, nil)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"LON", "LHR"}, codes(e.State().Options))

	e.LoadMore()
	assert.True(t, e.State().LoadingMore)
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	s := e.State()
	assert.Equal(t, []string{"LON", "LHR", "LGW"}, codes(s.Options))
	assert.Equal(t, "Heathrow Terminal 5", s.Options[1].Name, "existing entry updated in place")
	assert.Equal(t, codes(s.Options), codes(s.LastOptions))
	assert.Nil(t, s.NextOffset)

	e.LoadMore()
	assert.False(t, e.State().LoadingMore, "no further page")
	assert.Equal(t, []string{"lon@0", "lon@8"}, f.Calls())
}

func TestLoadMoreInFlightIsGuardedAndSuperseded(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}, NextOffset: offset(8)}, nil)
	f.on("lon", 8, provider.Page{Records: []location.Record{gatwick}}, nil)
	f.on("par", 0, provider.Page{Records: []location.Record{paris}}, nil)
	release := f.gate("lon", 8)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	e.LoadMore()
	e.LoadMore()
	require.Eventually(t, func() bool { return len(f.Calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"lon@0", "lon@8"}, f.Calls(), "second load-more is ignored while one is running")

	e.Search("par")
	close(release)
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)
	time.Sleep(2 * quiet)

	s := e.State()
	assert.Equal(t, []string{"PAR"}, codes(s.Options))
	assert.Equal(t, "par", s.Keyword)
	assert.Equal(t, []string{"lon@0", "lon@8", "par@0"}, f.Calls())
}

func TestLoadMoreFailureKeepsOptions(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}, NextOffset: offset(8)}, nil)
	f.on("lon", 8, provider.Page{}, &provider.Error{Kind: provider.KindTransport})
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)
	e.LoadMore()
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	s := e.State()
	assert.Equal(t, []string{"LON"}, codes(s.Options))
	assert.Equal(t, provider.DefaultMessage, s.Error)
	assert.False(t, s.LoadingMore)
}

func TestFirstPageFailureClearsOptions(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}, NextOffset: offset(8)}, nil)
	f.on("par", 0, provider.Page{}, &provider.Error{Kind: provider.KindRateLimited, Message: "slow down"})
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)
	e.Search("par")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	s := e.State()
	assert.Empty(t, s.Options)
	assert.Nil(t, s.NextOffset)
	assert.Equal(t, "slow down", s.Error)
	assert.Equal(t, []string{"LON"}, codes(s.LastOptions))
}

func TestResetRetainsLastOptions(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}, NextOffset: offset(8)}, nil)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	e.Reset()
	s := e.State()
	assert.Empty(t, s.Options)
	assert.Empty(t, s.Keyword)
	assert.Nil(t, s.NextOffset)
	assert.Equal(t, []string{"LON"}, codes(s.LastOptions))

	e.LoadMore()
	assert.False(t, e.State().LoadingMore, "no active keyword after reset")
}

func TestResetCancelsPendingSearch(t *testing.T) {
	f := newFakeSearcher()
	e := newEngine(t, f)

	e.Search("lon")
	e.Reset()
	time.Sleep(3 * quiet)

	assert.Empty(t, f.Calls())
	assert.False(t, e.State().Loading)
}

func TestCloseStopsTimer(t *testing.T) {
	f := newFakeSearcher()
	e := New(f, Options{QuietPeriod: quiet})

	e.Search("lon")
	e.Close()
	time.Sleep(3 * quiet)

	assert.Empty(t, f.Calls())
}

func TestStateIsACopy(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{Records: []location.Record{london}, NextOffset: offset(8)}, nil)
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	s := e.State()
	s.Options[0].Code = "XXX"
	*s.NextOffset = 99

	again := e.State()
	assert.Equal(t, "LON", again.Options[0].Code)
	assert.Equal(t, 8, *again.NextOffset)
}

func TestSearcherErrorsAreDisplaySafe(t *testing.T) {
	f := newFakeSearcher()
	f.on("lon", 0, provider.Page{}, errors.New("dial tcp 10.0.0.1:443: connection refused"))
	e := newEngine(t, f)

	e.Search("lon")
	require.Eventually(t, settled(e), time.Second, 5*time.Millisecond)

	assert.Equal(t, provider.DefaultMessage, e.State().Error)
}
