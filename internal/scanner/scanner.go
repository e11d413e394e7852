// Package scanner runs the density scan over every configured exchange: a
// REST loop covering all symbols and, where a venue can push books, one
// stream per priority symbol on top of it.
package scanner

import (
	"sync"
	"time"

	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/models"
)

// Settings is the runtime configuration the scanner reads on every pass.
// Implementations must allow concurrent reads.
type Settings interface {
	DistancePct() float64
	ScanInterval() time.Duration
	OrderBookDepth() int
	AlertsEnabled() bool
	QuoteCurrencies() []string
	ResolveMinSize(exchange, base string) float64
	MinLifetime(exchange string) int
	IsBlacklisted(exchange, base string) bool
}

// Sink receives alerts that passed the anti-spam gate. Submit must not
// block; it reports false when the alert was dropped.
type Sink interface {
	Submit(alert models.DensityAlert) bool
}

type StreamConfig struct {
	Enabled        bool
	ReconnectDelay time.Duration
	MaxReconnects  int
	MaxSymbols     int
	// A rate-limited stream waits RateLimitPause plus up to
	// RateLimitJitter before resubscribing.
	RateLimitPause  time.Duration
	RateLimitJitter time.Duration
}

type Config struct {
	PriorityTickers     []string
	SkipPrefixes        []string
	SkipPatterns        []string
	MaxRetries          int
	RetryDelay          time.Duration
	RateLimitPause      time.Duration
	ErrorResetThreshold int
	// FailureBackoff is the wait after a scan pass that failed outright.
	FailureBackoff time.Duration
	Stream         StreamConfig
}

func DefaultConfig() Config {
	return Config{
		PriorityTickers: []string{
			"BTC", "ETH", "SOL", "XRP", "DOGE", "PEPE", "WIF",
			"HYPE", "SUI", "AAVE", "BNB", "LINK", "SEI", "PUMP",
		},
		SkipPrefixes:        []string{"TEST", "XYZ"},
		SkipPatterns:        []string{"DEMO", "SANDBOX", "MOCK"},
		MaxRetries:          3,
		RetryDelay:          5 * time.Second,
		RateLimitPause:      5 * time.Second,
		ErrorResetThreshold: 10,
		FailureBackoff:      5 * time.Second,
		Stream: StreamConfig{
			Enabled:         true,
			ReconnectDelay:  5 * time.Second,
			MaxReconnects:   10,
			MaxSymbols:      30,
			RateLimitPause:  2 * time.Second,
			RateLimitJitter: time.Second,
		},
	}
}

const defaultConcurrency = 10

// ExchangeSpec describes one initialized venue handed to the engine.
type ExchangeSpec struct {
	Name   string
	Client exchange.Client
	// Concurrency bounds in-flight symbol scans; 0 means 10.
	Concurrency int
	// DepthLimit overrides the global order book depth when positive.
	DepthLimit int
}

// ExchangeState is the engine's view of one venue. Fields below mu change
// during scanning; the rest are fixed at construction.
type ExchangeState struct {
	Name        string
	Label       string
	Client      exchange.Client
	Streamer    exchange.Streamer
	Concurrency int
	DepthLimit  int

	// loadMu serializes market loads between the REST and stream loops.
	loadMu sync.Mutex

	mu                sync.Mutex
	markets           map[string]models.Market
	marketsLoaded     bool
	symbols           []string
	consecutiveErrors int
	lastError         string
	streaming         bool
}

func newExchangeState(spec ExchangeSpec) *ExchangeState {
	st := &ExchangeState{
		Name:        spec.Name,
		Label:       exchange.VenueInfo(spec.Name).Label,
		Client:      spec.Client,
		Concurrency: spec.Concurrency,
		DepthLimit:  spec.DepthLimit,
	}
	if st.Concurrency <= 0 {
		st.Concurrency = defaultConcurrency
	}
	if s, ok := spec.Client.(exchange.Streamer); ok {
		st.Streamer = s
	}
	return st
}

// Symbols returns a copy of the filtered, priority-sorted symbol list.
func (st *ExchangeState) Symbols() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]string, len(st.symbols))
	copy(out, st.symbols)
	return out
}

func (st *ExchangeState) Markets() map[string]models.Market {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.markets
}

func (st *ExchangeState) loaded() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.marketsLoaded
}

func (st *ExchangeState) recordPass(failures int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if failures > 0 {
		st.consecutiveErrors++
	} else {
		st.consecutiveErrors = 0
	}
}

func (st *ExchangeState) recordFailure(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.consecutiveErrors++
	st.lastError = err.Error()
}

// resetIfFailing forces a market reload once the error counter exceeds
// threshold and reports whether it did.
func (st *ExchangeState) resetIfFailing(threshold int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.consecutiveErrors <= threshold {
		return false
	}
	st.marketsLoaded = false
	st.consecutiveErrors = 0
	return true
}

func (st *ExchangeState) setStreaming(on bool) {
	st.mu.Lock()
	st.streaming = on
	st.mu.Unlock()
}

// ExchangeStatus is a point-in-time summary of an exchange for operators.
type ExchangeStatus struct {
	Name              string
	Label             string
	MarketsLoaded     bool
	Symbols           int
	ConsecutiveErrors int
	Streaming         bool
	LastError         string
}

func (st *ExchangeState) status() ExchangeStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	return ExchangeStatus{
		Name:              st.Name,
		Label:             st.Label,
		MarketsLoaded:     st.marketsLoaded,
		Symbols:           len(st.symbols),
		ConsecutiveErrors: st.consecutiveErrors,
		Streaming:         st.streaming,
		LastError:         st.lastError,
	}
}
