package exchange

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrNetworkTransient = errors.New("transient network error")
	ErrMarketLoad       = errors.New("failed to load markets")
	ErrSymbolNotFound   = errors.New("symbol not found")
)

// Kind is the class of a market data failure, which decides how the
// scanner reacts to it.
type Kind int

const (
	KindRejected Kind = iota
	KindRateLimited
	KindNetworkTransient
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNetworkTransient:
		return "network"
	default:
		return "rejected"
	}
}

// Error is a failure reported by, or while talking to, a venue.
type Error struct {
	Exchange string
	Code     string
	Message  string
	Kind     Kind
	Original error
}

func (e *Error) Error() string {
	msg := e.Exchange + ": " + e.Message
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}
	if e.Original != nil {
		msg += ": " + e.Original.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Original
}

// Is matches the sentinel that corresponds to the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrNetworkTransient:
		return e.Kind == KindNetworkTransient
	}
	return false
}

// Classify maps any error returned by a Client or Streamer to a Kind.
// Errors that only carry a 429 or "rate limit" in their text are treated
// as rate limiting, since some venues report it that way.
func Classify(err error) Kind {
	if err == nil {
		return KindRejected
	}

	var xe *Error
	if errors.As(err, &xe) && xe.Kind != KindRejected {
		return xe.Kind
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrNetworkTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindNetworkTransient
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return KindNetworkTransient
	}

	if looksRateLimited(err.Error()) {
		return KindRateLimited
	}
	return KindRejected
}

// IsSymbolNotFound reports whether err says the venue does not list the symbol.
func IsSymbolNotFound(err error) bool {
	if errors.Is(err, ErrSymbolNotFound) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "symbol") && strings.Contains(lower, "not found")
}

func looksRateLimited(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests")
}
