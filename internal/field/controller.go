// Package field keeps one location input (origin or destination) in sync
// with the URL query: what the user types, the option they picked and the
// code stored in the query.
package field

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/subham/flightsearch/internal/cache"
	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/lookup"
	"github.com/subham/flightsearch/internal/query"
	"github.com/subham/flightsearch/internal/search"
)

// Reason says why the input text changed.
type Reason int

const (
	// ReasonInput is a keystroke.
	ReasonInput Reason = iota
	// ReasonClear is the clear button.
	ReasonClear
	// ReasonReset is the widget rewriting its text after a selection.
	ReasonReset
)

// Resolver turns codes and free text into locations. The lookup service
// satisfies it.
type Resolver interface {
	ResolveByCode(ctx context.Context, code string) (*location.Record, error)
	ResolveCode(ctx context.Context, input string) (string, error)
}

// Engine is the per-field search session. *search.Engine satisfies it.
type Engine interface {
	Search(keyword string)
	Reset()
	LoadMore()
	State() search.State
	Close()
}

// Config wires a Controller.
type Config struct {
	// Slot is the query parameter the field owns (query.Origin or
	// query.Destination).
	Slot     string
	Query    *query.Store
	Index    *cache.CodeIndex
	Resolver Resolver
	Engine   Engine
	Logger   *slog.Logger
	// MinQueryLength is the shortest keyword the engine searches for;
	// location.MinQueryLength when unset.
	MinQueryLength int
}

// View is what the presentation layer renders for one field.
type View struct {
	RawText     string
	Selected    *location.Record
	Focused     bool
	Options     []location.Record
	Loading     bool
	LoadingMore bool
	Error       string
	// ShowDisplay is true when the selection overlay replaces the text box.
	ShowDisplay   bool
	DisplayText   string
	GroupLabels   map[string]string
	NoOptionsText string
}

// InputError is a problem with what the user entered, worded for display.
type InputError struct {
	Field   string
	Message string
	Err     error
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return e.Err }

// Controller is the state machine of one location field.
type Controller struct {
	slot     string
	query    *query.Store
	index    *cache.CodeIndex
	resolver Resolver
	engine   Engine
	minLen   int
	log      *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu       sync.Mutex
	rawText  string
	selected *location.Record
	focused  bool
	// ignoreSync skips re-deriving state from the query for the one
	// notification caused by our own write.
	ignoreSync bool
	// resolved is the last code whose record was resolved or found already
	// complete; inflight is the lookup still running for this field.
	resolved string
	inflight *resolution
}

// resolution is one code lookup in flight. Swap hands it to the other field
// together with the placeholder it is meant to replace.
type resolution struct {
	code  string
	owner atomic.Pointer[Controller] // changed only with the owner's mu held
}

// New creates a controller, derives its initial state from the query and
// starts resolving a bare code if the query holds one.
func New(cfg Config) *Controller {
	index := cfg.Index
	if index == nil {
		index = cache.NewCodeIndex(nil)
	}
	minLen := cfg.MinQueryLength
	if minLen <= 0 {
		minLen = location.MinQueryLength
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		slot:     cfg.Slot,
		query:    cfg.Query,
		index:    index,
		resolver: cfg.Resolver,
		engine:   cfg.Engine,
		minLen:   minLen,
		log:      logger.Component(cfg.Logger, "field").With(slog.String("field", cfg.Slot)),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.mu.Lock()
	c.deriveLocked(c.query.Get(c.slot))
	c.mu.Unlock()

	c.unsubscribe = c.query.Subscribe(c.onQueryChange)
	c.maybeResolve()
	return c
}

// Slot returns the query parameter the controller owns.
func (c *Controller) Slot() string { return c.slot }

// Close stops listening to the query and tears the search session down.
func (c *Controller) Close() {
	c.unsubscribe()
	c.cancel()
	c.engine.Close()
}

// OnInput handles a text change.
func (c *Controller) OnInput(text string, reason Reason) {
	if reason == ReasonReset && text == "" {
		return
	}

	c.mu.Lock()
	c.rawText = text
	if reason == ReasonReset {
		c.mu.Unlock()
		return
	}
	c.selected = nil
	c.mu.Unlock()

	c.write("")
	if reason == ReasonClear {
		c.engine.Reset()
		return
	}
	c.engine.Search(text)
}

// OnSelect handles picking an option; nil clears the field.
func (c *Controller) OnSelect(rec *location.Record) {
	c.mu.Lock()
	if rec == nil {
		c.selected = nil
		c.rawText = ""
		c.mu.Unlock()
		c.write("")
		return
	}
	picked := *rec
	c.selected = &picked
	c.rawText = picked.Label
	c.mu.Unlock()

	c.index.Put(picked)
	c.write(picked.Code)
}

// OnOpenDropdown starts a search when the dropdown opens with nothing to
// show yet.
func (c *Controller) OnOpenDropdown() {
	c.mu.Lock()
	seed := location.SearchSeed(c.selected, c.rawText, c.minLen)
	c.mu.Unlock()

	if len(c.engine.State().Options) > 0 {
		return
	}
	if len([]rune(strings.TrimSpace(seed))) < c.minLen {
		return
	}
	c.engine.Search(seed)
}

// OnScrollNearBottom asks for the next page of results.
func (c *Controller) OnScrollNearBottom() {
	c.engine.LoadMore()
}

// OnFocus marks the field focused.
func (c *Controller) OnFocus() { c.setFocused(true) }

// OnBlur marks the field unfocused.
func (c *Controller) OnBlur() { c.setFocused(false) }

func (c *Controller) setFocused(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = focused
}

// View returns the current presentation state.
func (c *Controller) View() View {
	s := c.engine.State()

	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		RawText:     c.rawText,
		Focused:     c.focused,
		Loading:     s.Loading,
		LoadingMore: s.LoadingMore,
		Error:       s.Error,
	}
	if c.selected != nil {
		sel := *c.selected
		v.Selected = &sel
		v.DisplayText = location.DisplayName(c.index, sel)
	}
	v.ShowDisplay = v.Selected != nil && !c.focused
	v.Options = location.VisibleOptions(c.rawText, s.Options, s.LastOptions)
	v.GroupLabels = location.GroupLabels(v.Options)
	v.NoOptionsText = location.NoOptionsText(c.rawText, s.Error, c.minLen)
	return v
}

// Commit returns the code to submit for this field. A free-text entry is
// resolved to its best match and written back to the query.
func (c *Controller) Commit(ctx context.Context) (string, error) {
	stored := strings.TrimSpace(c.query.Get(c.slot))
	if location.IsCode(stored) {
		return location.NormalizeCode(stored), nil
	}

	c.mu.Lock()
	text := strings.TrimSpace(c.rawText)
	c.mu.Unlock()
	if text == "" {
		text = stored
	}
	if text == "" {
		return "", &InputError{Field: c.slot, Message: "Enter a " + c.slot + " city or airport", Err: lookup.ErrEmptyInput}
	}
	if c.resolver == nil {
		return "", &InputError{Field: c.slot, Message: "No matches found for " + c.slot + ".", Err: lookup.ErrNoMatch}
	}

	code, err := c.resolver.ResolveCode(ctx, text)
	switch {
	case errors.Is(err, lookup.ErrNoMatch):
		return "", &InputError{Field: c.slot, Message: "No matches found for " + c.slot + ".", Err: err}
	case errors.Is(err, lookup.ErrEmptyInput):
		return "", &InputError{Field: c.slot, Message: "Enter a " + c.slot + " city or airport", Err: err}
	case err != nil:
		return "", err
	}

	c.query.Set(c.slot, code)
	return code, nil
}

// write stores value in the query. The latch is only armed when the value
// actually changes, because an unchanged value produces no notification to
// consume it.
func (c *Controller) write(value string) {
	c.mu.Lock()
	if c.query.Get(c.slot) != value {
		c.ignoreSync = true
	}
	c.mu.Unlock()

	c.query.Set(c.slot, value)
}

func (c *Controller) onQueryChange(change query.Change) {
	if !change.Has(c.slot) {
		return
	}

	c.mu.Lock()
	if c.ignoreSync {
		c.ignoreSync = false
	} else {
		c.deriveLocked(change.Values[c.slot])
	}
	c.mu.Unlock()

	c.maybeResolve()
}

// deriveLocked rebuilds the text and selection from a query value. Must be
// called with mu held.
func (c *Controller) deriveLocked(value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		c.selected = nil
		c.rawText = ""
		return
	}

	if location.IsCode(trimmed) {
		upper := location.NormalizeCode(trimmed)
		if c.selected != nil && c.selected.Code == upper {
			c.rawText = c.selected.Label
			return
		}
		next := location.Fallback(c.index, upper)
		if known, ok := c.index.Get(upper); ok && known.Code == upper && !location.IsPlaceholder(known) {
			next = known
		}
		c.selected = &next
		c.rawText = next.Label
		return
	}

	c.selected = nil
	c.rawText = trimmed
}

// maybeResolve starts a lookup when the query holds a code the field only
// knows as a placeholder.
func (c *Controller) maybeResolve() {
	c.mu.Lock()
	code := location.NormalizeCode(c.query.Get(c.slot))
	if !location.IsCode(code) {
		c.resolved = ""
		c.mu.Unlock()
		return
	}
	if code == c.resolved || (c.inflight != nil && c.inflight.code == code) {
		c.mu.Unlock()
		return
	}
	if !location.IsFallback(c.index, c.selected, code) {
		c.resolved = code
		c.mu.Unlock()
		return
	}
	if c.resolver == nil {
		c.mu.Unlock()
		return
	}
	res := &resolution{code: code}
	res.owner.Store(c)
	c.inflight = res
	c.mu.Unlock()

	go c.resolve(res)
}

func (c *Controller) resolve(res *resolution) {
	rec, err := c.resolver.ResolveByCode(c.ctx, res.code)

	// The owner may change under a concurrent Swap until its lock is held.
	for {
		owner := res.owner.Load()
		owner.mu.Lock()
		if res.owner.Load() == owner {
			owner.finishLocked(res, rec, err)
			owner.mu.Unlock()
			return
		}
		owner.mu.Unlock()
	}
}

// finishLocked applies a completed resolution. Must be called with mu held.
func (c *Controller) finishLocked(res *resolution, rec *location.Record, err error) {
	code := res.code
	if c.inflight == res {
		c.inflight = nil
	}
	if location.NormalizeCode(c.query.Get(c.slot)) != code {
		c.log.Debug("dropping stale resolution", slog.String("code", code))
		return
	}
	c.resolved = code
	if err != nil {
		c.log.Debug("resolving code failed", slog.String("code", code), slog.String("error", err.Error()))
		return
	}
	if rec == nil {
		c.log.Debug("no location for code", slog.String("code", code))
		return
	}
	if !location.IsFallback(c.index, c.selected, code) {
		return
	}
	resolved := *rec
	c.selected = &resolved
	c.rawText = resolved.Label
}
