// Package search runs debounced, paginated location lookups for one input
// field. Only the latest keystroke's results are ever applied.
package search

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/provider"
)

// DefaultQuietPeriod is how long typing must pause before a lookup is sent.
const DefaultQuietPeriod = 300 * time.Millisecond

// Searcher fetches one page of locations. The lookup service satisfies it.
type Searcher interface {
	Search(ctx context.Context, keyword string, offset int) (provider.Page, error)
}

// Options tunes an Engine.
type Options struct {
	QuietPeriod    time.Duration
	MinQueryLength int
	Logger         *slog.Logger
}

// State is a snapshot of the engine for the field controller to read.
type State struct {
	Options     []location.Record
	LastOptions []location.Record
	// Keyword is the query the current options belong to; empty while a new
	// search is pending.
	Keyword     string
	NextOffset  *int
	Loading     bool
	LoadingMore bool
	Error       string
}

// Engine manages the search state for one field.
type Engine struct {
	searcher Searcher
	quiet    time.Duration
	minLen   int
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	state State
	// seq is bumped by every Search, Reset and LoadMore; a response is only
	// applied while it still matches.
	seq   uint64
	timer *time.Timer
}

// New creates an Engine backed by searcher.
func New(searcher Searcher, opts Options) *Engine {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = location.MinQueryLength
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		searcher: searcher,
		quiet:    opts.QuietPeriod,
		minLen:   opts.MinQueryLength,
		log:      logger.Component(opts.Logger, "search"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns a copy of the current search state (thread-safe).
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.state
	s.Options = slices.Clone(e.state.Options)
	s.LastOptions = slices.Clone(e.state.LastOptions)
	if e.state.NextOffset != nil {
		next := *e.state.NextOffset
		s.NextOffset = &next
	}
	return s
}

// Search schedules a lookup for keyword once typing pauses. A keyword below
// the minimum length resets the engine instead.
func (e *Engine) Search(keyword string) {
	trimmed := strings.TrimSpace(keyword)
	if len([]rune(trimmed)) < e.minLen {
		e.Reset()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	seq := e.seq
	e.state.Loading = true
	e.state.LoadingMore = false
	e.state.Error = ""
	e.state.NextOffset = nil
	e.state.Keyword = ""

	e.stopTimer()
	e.timer = time.AfterFunc(e.quiet, func() {
		e.fetchFirst(seq, trimmed)
	})
}

// Reset drops the current results and invalidates in-flight lookups. The
// last successful result set is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	e.stopTimer()
	e.state.Options = nil
	e.state.Error = ""
	e.state.Loading = false
	e.state.LoadingMore = false
	e.state.NextOffset = nil
	e.state.Keyword = ""
}

// LoadMore fetches the next page of the active keyword. It does nothing
// while another fetch is running or when there is no further page.
func (e *Engine) LoadMore() {
	e.mu.Lock()
	if e.state.Keyword == "" || e.state.NextOffset == nil || e.state.Loading || e.state.LoadingMore {
		e.mu.Unlock()
		return
	}
	e.seq++
	seq := e.seq
	keyword := e.state.Keyword
	offset := *e.state.NextOffset
	e.state.LoadingMore = true
	e.mu.Unlock()

	go e.fetchMore(seq, keyword, offset)
}

// Close stops the debounce timer and cancels lookups issued by the engine.
func (e *Engine) Close() {
	e.mu.Lock()
	e.seq++
	e.stopTimer()
	e.mu.Unlock()
	e.cancel()
}

// stopTimer must be called with mu held.
func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) fetchFirst(seq uint64, keyword string) {
	page, err := e.searcher.Search(e.ctx, keyword, 0)

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != e.seq {
		e.log.Debug("dropping stale results", slog.String("keyword", keyword))
		return
	}
	e.state.Loading = false
	if err != nil {
		e.log.Debug("lookup failed", slog.String("keyword", keyword), slog.String("error", err.Error()))
		e.state.Options = nil
		e.state.NextOffset = nil
		e.state.Error = provider.Message(err)
		return
	}

	sorted := location.SortPage(page.Records)
	e.state.Options = sorted
	e.state.LastOptions = slices.Clone(sorted)
	e.state.NextOffset = page.NextOffset
	e.state.Keyword = keyword
	e.state.Error = ""
}

func (e *Engine) fetchMore(seq uint64, keyword string, offset int) {
	page, err := e.searcher.Search(e.ctx, keyword, offset)

	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != e.seq {
		e.log.Debug("dropping stale page", slog.String("keyword", keyword), slog.Int("offset", offset))
		return
	}
	e.state.LoadingMore = false
	if err != nil {
		e.log.Debug("load more failed", slog.String("keyword", keyword), slog.String("error", err.Error()))
		e.state.Error = provider.Message(err)
		return
	}

	e.state.Options = location.Merge(e.state.Options, page.Records)
	e.state.LastOptions = location.Merge(e.state.LastOptions, page.Records)
	e.state.NextOffset = page.NextOffset
	e.state.Error = ""
}
