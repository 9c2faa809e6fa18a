package cache

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/subham/flightsearch/internal/location"
	"github.com/subham/flightsearch/internal/logger"
	"github.com/subham/flightsearch/internal/storage"
)

const (
	// DefaultCapacity bounds both the in-memory index and what is persisted.
	DefaultCapacity = 100
	// DefaultStorageKey is the session storage key of the serialized index.
	DefaultStorageKey = "flight-search.locations.v1"
)

type indexEntry struct {
	code   string
	record location.Record
}

// CodeIndex maps IATA codes to the best known record. It is bounded to the
// most recently written entries and mirrors itself into session storage on
// every accepted write.
type CodeIndex struct {
	mu       sync.RWMutex
	capacity int
	key      string
	store    storage.Store
	log      *slog.Logger

	order  *list.List // oldest write at the front
	byCode map[string]*list.Element
}

// IndexOption configures a CodeIndex.
type IndexOption func(*CodeIndex)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) IndexOption {
	return func(c *CodeIndex) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) IndexOption {
	return func(c *CodeIndex) {
		if key != "" {
			c.key = key
		}
	}
}

// WithLogger sets the logger used for storage warnings.
func WithLogger(l *slog.Logger) IndexOption {
	return func(c *CodeIndex) {
		c.log = logger.Component(l, "codeindex")
	}
}

// NewCodeIndex creates an index and restores it from store. A nil store
// keeps the index in memory only. Unreadable persisted data is ignored.
func NewCodeIndex(store storage.Store, opts ...IndexOption) *CodeIndex {
	c := &CodeIndex{
		capacity: DefaultCapacity,
		key:      DefaultStorageKey,
		store:    store,
		log:      logger.Component(nil, "codeindex"),
		order:    list.New(),
		byCode:   make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.load()
	return c
}

// rank orders records by how much they tell us. Placeholders carry only a
// code; airports are the most specific kind.
func rank(r location.Record) int {
	switch {
	case location.IsPlaceholder(r):
		return 0
	case r.Kind == location.City:
		return 1
	default:
		return 2
	}
}

// Put records r under its code, and a city under its city code as well.
// A write never replaces a richer record: airports are not downgraded by
// city or placeholder entries, placeholders are always upgraded. It reports
// whether anything changed.
func (c *CodeIndex) Put(r location.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.putRecord(r)
	if changed {
		c.persist()
	}
	return changed
}

// PutAll records every record and persists once.
func (c *CodeIndex) PutAll(records []location.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for _, r := range records {
		changed = c.putRecord(r) || changed
	}
	if changed {
		c.persist()
	}
}

// putRecord must be called with mu held.
func (c *CodeIndex) putRecord(r location.Record) bool {
	code := location.NormalizeCode(r.Code)
	if !location.IsCode(code) {
		return false
	}
	r.Code = code
	if r.Label == "" {
		r = r.WithLabel()
	}

	changed := c.put(code, r)
	if r.Kind == location.City {
		if city := location.NormalizeCode(r.CityCode); city != code && location.IsCode(city) {
			changed = c.put(city, r) || changed
		}
	}
	return changed
}

// put must be called with mu held.
func (c *CodeIndex) put(code string, r location.Record) bool {
	if el, ok := c.byCode[code]; ok {
		existing := el.Value.(*indexEntry)
		if rank(r) < rank(existing.record) {
			return false
		}
		existing.record = r
		c.order.MoveToBack(el)
		return true
	}

	c.byCode[code] = c.order.PushBack(&indexEntry{code: code, record: r})
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.byCode, oldest.Value.(*indexEntry).code)
	}
	return true
}

// Get looks up a code, ignoring case and surrounding whitespace.
func (c *CodeIndex) Get(code string) (location.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	el, ok := c.byCode[location.NormalizeCode(code)]
	if !ok {
		return location.Record{}, false
	}
	return el.Value.(*indexEntry).record, true
}

// Name returns the cached name for code, unless the name is just the code.
func (c *CodeIndex) Name(code string) (string, bool) {
	upper := location.NormalizeCode(code)
	if upper == "" {
		return "", false
	}
	r, ok := c.Get(upper)
	if !ok {
		return "", false
	}
	name := strings.TrimSpace(r.Name)
	if name == "" || strings.ToUpper(name) == upper {
		return "", false
	}
	return name, true
}

// FormatCode renders a code with its cached name for display elsewhere.
func (c *CodeIndex) FormatCode(code string) string {
	return location.FormatCode(c, code)
}

// Len returns the number of indexed codes.
func (c *CodeIndex) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// persist must be called with mu held. Each record is written once even when
// it is indexed under both its own and its city code.
func (c *CodeIndex) persist() {
	if c.store == nil {
		return
	}

	seen := make(map[string]struct{}, c.order.Len())
	var newestFirst []location.Record
	for el := c.order.Back(); el != nil && len(newestFirst) < c.capacity; el = el.Prev() {
		r := el.Value.(*indexEntry).record
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		newestFirst = append(newestFirst, r)
	}

	records := make([]location.Record, len(newestFirst))
	for i, r := range newestFirst {
		records[len(newestFirst)-1-i] = r
	}

	raw, err := json.Marshal(records)
	if err != nil {
		c.log.Warn("encoding index failed", slog.String("error", err.Error()))
		return
	}
	if err := c.store.Set(c.key, string(raw)); err != nil {
		c.log.Warn("persisting index failed", slog.String("error", err.Error()))
	}
}

func (c *CodeIndex) load() {
	if c.store == nil {
		return
	}
	raw, ok := c.store.Get(c.key)
	if !ok || raw == "" {
		return
	}

	var records []location.Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		c.log.Warn("ignoring unreadable index", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		if r.Code == "" || r.Name == "" {
			continue
		}
		if r.Kind != location.City && r.Kind != location.Airport {
			continue
		}
		c.putRecord(r.WithLabel())
	}
	c.log.Debug("index restored", slog.Int("entries", c.order.Len()))
}
