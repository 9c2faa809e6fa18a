// Package query is the observable key/value store behind the page's URL
// query. It is the single source of truth for the selected origin and
// destination codes.
package query

import (
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/subham/flightsearch/internal/location"
)

// Location parameters.
const (
	Origin      = "origin"
	Destination = "destination"
)

// Change describes one accepted write.
type Change struct {
	// Keys lists the parameters whose value changed, sorted.
	Keys []string
	// Values is a snapshot of the whole query after the write.
	Values map[string]string
}

// Has reports whether key changed.
func (c Change) Has(key string) bool {
	return slices.Contains(c.Keys, key)
}

// Store holds query parameters and notifies subscribers of changes.
// Subscribers are called synchronously, outside the store lock, and only
// when a value actually changed.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	subs   map[int]func(Change)
	nextID int
}

// New creates a store from a raw query string such as "origin=lhr&adults=1".
func New(rawQuery string) *Store {
	s := &Store{
		values: make(map[string]string),
		subs:   make(map[int]func(Change)),
	}
	maps.Copy(s.values, parse(rawQuery))
	return s
}

// Get returns the value of key, "" when unset.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set writes one value. An empty value removes the parameter.
func (s *Store) Set(key, value string) {
	s.SetValues(map[string]string{key: value})
}

// SetValues writes several values as one change.
func (s *Store) SetValues(values map[string]string) {
	s.mu.Lock()
	var changed []string
	for key, value := range values {
		if s.values[key] == value {
			continue
		}
		if value == "" {
			delete(s.values, key)
		} else {
			s.values[key] = value
		}
		changed = append(changed, key)
	}
	s.notifyLocked(changed)
}

// Navigate replaces the whole query, as when the user follows a link or
// edits the address bar. Location parameters are normalized.
func (s *Store) Navigate(rawQuery string) {
	next := parse(rawQuery)

	s.mu.Lock()
	var changed []string
	for key, value := range next {
		if s.values[key] != value {
			changed = append(changed, key)
		}
	}
	for key := range s.values {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	s.values = next
	s.notifyLocked(changed)
}

// notifyLocked releases mu and calls subscribers when anything changed.
func (s *Store) notifyLocked(changed []string) {
	if len(changed) == 0 {
		s.mu.Unlock()
		return
	}
	slices.Sort(changed)
	change := Change{Keys: changed, Values: maps.Clone(s.values)}
	ids := slices.Sorted(maps.Keys(s.subs))
	subs := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// Values returns a copy of all parameters.
func (s *Store) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Encode renders the query as a shareable string with sorted keys.
func (s *Store) Encode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := make(url.Values, len(s.values))
	for key, value := range s.values {
		v.Set(key, value)
	}
	return v.Encode()
}

func parse(rawQuery string) map[string]string {
	parsed, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	out := make(map[string]string, len(parsed))
	if err != nil && len(parsed) == 0 {
		return out
	}
	for key, vals := range parsed {
		if len(vals) == 0 {
			continue
		}
		value := vals[0]
		if key == Origin || key == Destination {
			value = normalizeLocation(value)
		}
		if value != "" {
			out[key] = value
		}
	}
	return out
}

func normalizeLocation(value string) string {
	trimmed := strings.TrimSpace(value)
	if location.IsCode(trimmed) {
		return location.NormalizeCode(trimmed)
	}
	return trimmed
}
