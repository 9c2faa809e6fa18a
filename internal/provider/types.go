package provider

import (
	"errors"
	"fmt"

	"github.com/subham/flightsearch/internal/location"
)

// DefaultMessage is shown when a lookup fails without a display-safe message.
const DefaultMessage = "Unable to load locations"

// Page is one page of lookup results.
type Page struct {
	Records    []location.Record
	NextOffset *int
}

// Kind classifies a provider failure.
type Kind int

const (
	KindTransport Kind = iota
	KindAuth
	KindParse
	KindRateLimited
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindParse:
		return "parse"
	case KindRateLimited:
		return "rate_limited"
	case KindConfig:
		return "config"
	default:
		return "transport"
	}
}

// Error is a lookup failure. Message is safe to show to users; Err carries
// the underlying cause for logs.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the display-safe text for err.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return DefaultMessage
}

// IsKind reports whether err is a provider Error of kind k.
func IsKind(err error, k Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}

func nextOffset(offset, returned, total int) *int {
	next := offset + returned
	if returned == 0 || next >= total {
		return nil
	}
	return &next
}
