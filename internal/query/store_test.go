package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func TestNewNormalizesLocations(t *testing.T) {
	s := New("?origin=lhr&destination=%20New%20York%20&adults=1")

	assert.Equal(t, "LHR", s.Get(Origin))
	assert.Equal(t, "New York", s.Get(Destination))
	assert.Equal(t, "1", s.Get("adults"))
	assert.Equal(t, "", s.Get("missing"))
}

func TestSetNotifiesOnlyOnChange(t *testing.T) {
	s := New("origin=LHR")
	rec := &recorder{}
	s.Subscribe(rec.record)

	s.Set(Origin, "LHR")
	assert.Empty(t, rec.all())

	s.Set(Origin, "JFK")
	require.Len(t, rec.all(), 1)
	c := rec.all()[0]
	assert.Equal(t, []string{Origin}, c.Keys)
	assert.Equal(t, "JFK", c.Values[Origin])
	assert.True(t, c.Has(Origin))
	assert.False(t, c.Has(Destination))

	s.Set(Origin, "")
	assert.Len(t, rec.all(), 2)
	assert.NotContains(t, s.Values(), Origin)
}

func TestSetValuesIsOneChange(t *testing.T) {
	s := New("origin=LHR&destination=JFK")
	rec := &recorder{}
	s.Subscribe(rec.record)

	s.SetValues(map[string]string{Origin: "JFK", Destination: "LHR"})

	require.Len(t, rec.all(), 1)
	assert.Equal(t, []string{Destination, Origin}, rec.all()[0].Keys)
	assert.Equal(t, "JFK", s.Get(Origin))
	assert.Equal(t, "LHR", s.Get(Destination))
}

func TestNavigate(t *testing.T) {
	s := New("origin=LHR&adults=2")
	rec := &recorder{}
	s.Subscribe(rec.record)

	s.Navigate("origin=cdg&destination=nyc")

	require.Len(t, rec.all(), 1)
	assert.Equal(t, []string{"adults", Destination, Origin}, rec.all()[0].Keys)
	assert.Equal(t, "CDG", s.Get(Origin))
	assert.Equal(t, "NYC", s.Get(Destination))
	assert.Equal(t, "", s.Get("adults"))

	s.Navigate("?origin=CDG&destination=NYC")
	assert.Len(t, rec.all(), 1, "same query is not a change")
}

func TestSubscriberMayWriteBack(t *testing.T) {
	s := New("")
	var seen []string
	s.Subscribe(func(c Change) {
		seen = append(seen, c.Values[Origin])
		if c.Values[Origin] == "lhr" {
			s.Set(Origin, "LHR")
		}
	})

	s.Set(Origin, "lhr")
	assert.Equal(t, []string{"lhr", "LHR"}, seen)
}

func TestUnsubscribe(t *testing.T) {
	s := New("")
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.record)

	s.Set(Origin, "LHR")
	unsubscribe()
	unsubscribe()
	s.Set(Origin, "JFK")

	assert.Len(t, rec.all(), 1)
}

func TestEncode(t *testing.T) {
	s := New("destination=JFK&origin=lhr&adults=1")
	assert.Equal(t, "adults=1&destination=JFK&origin=LHR", s.Encode())

	s.Set(Destination, "New York")
	assert.Equal(t, "adults=1&destination=New+York&origin=LHR", s.Encode())
}
