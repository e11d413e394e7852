// Package settings holds the runtime-tunable scanner configuration: global
// thresholds, blacklists and per-exchange minimums. Reads are concurrent;
// writes are serialized and written through to an optional Persister.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/densityscanner/internal/logger"
)

// GlobalScope is the blacklist and override scope that applies to every
// exchange.
const GlobalScope = ""

// DefaultMinSize applies to exchanges without a configured minimum.
const DefaultMinSize = 1_000_000

// Keys used in the persisted key/value table.
const (
	keyAlertsEnabled  = "alerts_enabled"
	keyDistancePct    = "distance_pct"
	keyScanInterval   = "scan_interval"
	keyOrderBookDepth = "orderbook_depth"

	exchangeKeyMinSize     = "min_size"
	exchangeKeyMinLifetime = "min_lifetime"
)

// Persister stores settings changes. storage.Storage implements it.
type Persister interface {
	SetValue(key, value string) error
	Values() (map[string]string, error)

	SetExchangeValue(exchange, key string, value float64) error
	ExchangeValues() (map[string]map[string]float64, error)

	// Removals are kept so that removing a seeded entry survives a
	// restart: Blacklists maps a removed ticker to false and
	// TickerOverrides maps a removed override to 0.
	AddBlacklist(scope, ticker string) error
	RemoveBlacklist(scope, ticker string) error
	Blacklists() (map[string]map[string]bool, error)

	SetTickerOverride(scope, ticker string, minSize float64) error
	RemoveTickerOverride(scope, ticker string) error
	TickerOverrides() (map[string]map[string]float64, error)
}

// Exchange is the per-exchange part of the settings.
type Exchange struct {
	MinSize         float64
	MinLifetime     int
	TickerOverrides map[string]float64
	Blacklist       []string
}

// Defaults seeds a Store.
type Defaults struct {
	DistancePct           float64
	ScanInterval          time.Duration
	OrderBookDepth        int
	AlertsEnabled         bool
	QuoteCurrencies       []string
	GlobalBlacklist       []string
	GlobalTickerOverrides map[string]float64
	Exchanges             map[string]Exchange
}

type exchangeState struct {
	minSize     float64
	minLifetime int
	overrides   map[string]float64
	blacklist   map[string]struct{}
}

// Store is the thread-safe settings provider.
type Store struct {
	// writeMu orders writes with their persistence; mu guards the values.
	writeMu sync.Mutex
	mu      sync.RWMutex

	distancePct     float64
	scanInterval    time.Duration
	orderBookDepth  int
	alertsEnabled   bool
	quoteCurrencies []string
	blacklist       map[string]struct{}
	overrides       map[string]float64
	exchanges       map[string]*exchangeState

	persister Persister
}

// New creates a store seeded from d. persister may be nil.
func New(d Defaults, persister Persister) *Store {
	s := &Store{
		distancePct:     d.DistancePct,
		scanInterval:    d.ScanInterval,
		orderBookDepth:  d.OrderBookDepth,
		alertsEnabled:   d.AlertsEnabled,
		quoteCurrencies: append([]string(nil), d.QuoteCurrencies...),
		blacklist:       make(map[string]struct{}),
		overrides:       make(map[string]float64),
		exchanges:       make(map[string]*exchangeState),
		persister:       persister,
	}
	for _, t := range d.GlobalBlacklist {
		s.blacklist[normTicker(t)] = struct{}{}
	}
	for t, v := range d.GlobalTickerOverrides {
		s.overrides[normTicker(t)] = v
	}
	for name, ex := range d.Exchanges {
		st := s.exchange(name)
		if ex.MinSize > 0 {
			st.minSize = ex.MinSize
		}
		st.minLifetime = ex.MinLifetime
		for t, v := range ex.TickerOverrides {
			st.overrides[normTicker(t)] = v
		}
		for _, t := range ex.Blacklist {
			st.blacklist[normTicker(t)] = struct{}{}
		}
	}
	return s
}

func normTicker(t string) string   { return strings.ToUpper(strings.TrimSpace(t)) }
func normExchange(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// exchange returns the state of name, creating it with defaults. Callers
// hold the write lock.
func (s *Store) exchange(name string) *exchangeState {
	name = normExchange(name)
	st, ok := s.exchanges[name]
	if !ok {
		st = &exchangeState{
			minSize:   DefaultMinSize,
			overrides: make(map[string]float64),
			blacklist: make(map[string]struct{}),
		}
		s.exchanges[name] = st
	}
	return st
}

// Restore overlays every persisted value onto the seeded defaults.
// Unreadable values are logged and skipped.
func (s *Store) Restore() error {
	if s.persister == nil {
		return nil
	}

	values, err := s.persister.Values()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	exchangeValues, err := s.persister.ExchangeValues()
	if err != nil {
		return fmt.Errorf("failed to load exchange settings: %w", err)
	}
	blacklists, err := s.persister.Blacklists()
	if err != nil {
		return fmt.Errorf("failed to load blacklists: %w", err)
	}
	overrides, err := s.persister.TickerOverrides()
	if err != nil {
		return fmt.Errorf("failed to load ticker overrides: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, raw := range values {
		if err := s.applyValue(key, raw); err != nil {
			logger.Warn("Ignoring persisted setting %s=%q: %v", key, raw, err)
		}
	}
	for name, kv := range exchangeValues {
		st := s.exchange(name)
		for key, v := range kv {
			switch key {
			case exchangeKeyMinSize:
				st.minSize = v
			case exchangeKeyMinLifetime:
				st.minLifetime = int(v)
			default:
				logger.Warn("Ignoring persisted exchange setting %s.%s", name, key)
			}
		}
	}
	for scope, tickers := range blacklists {
		set := s.blacklistFor(scope)
		for t, listed := range tickers {
			if listed {
				set[normTicker(t)] = struct{}{}
			} else {
				delete(set, normTicker(t))
			}
		}
	}
	for scope, m := range overrides {
		dst := s.overridesFor(scope)
		for t, v := range m {
			if v > 0 {
				dst[normTicker(t)] = v
			} else {
				delete(dst, normTicker(t))
			}
		}
	}
	logger.Info("Restored %d settings, %d exchange profiles, %d blacklists, %d override sets",
		len(values), len(exchangeValues), len(blacklists), len(overrides))
	return nil
}

func (s *Store) applyValue(key, raw string) error {
	switch key {
	case keyAlertsEnabled:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		s.alertsEnabled = v
	case keyDistancePct:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		if err := validDistance(v); err != nil {
			return err
		}
		s.distancePct = v
	case keyScanInterval:
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		s.scanInterval = v
	case keyOrderBookDepth:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		s.orderBookDepth = v
	default:
		return errors.New("unknown key")
	}
	return nil
}

func (s *Store) blacklistFor(scope string) map[string]struct{} {
	if scope == GlobalScope {
		return s.blacklist
	}
	return s.exchange(scope).blacklist
}

func (s *Store) overridesFor(scope string) map[string]float64 {
	if scope == GlobalScope {
		return s.overrides
	}
	return s.exchange(scope).overrides
}

// ─── Reads ───────────────────────────────────────────────────────────────────

func (s *Store) DistancePct() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distancePct
}

func (s *Store) ScanInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanInterval
}

func (s *Store) OrderBookDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderBookDepth
}

func (s *Store) AlertsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alertsEnabled
}

func (s *Store) QuoteCurrencies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.quoteCurrencies...)
}

// ResolveMinSize returns the minimum notional for base on exchange: the
// exchange ticker override, else the global ticker override, else the
// exchange minimum.
func (s *Store) ResolveMinSize(exchange, base string) float64 {
	base = normTicker(base)

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.exchanges[normExchange(exchange)]
	if st != nil {
		if v, ok := st.overrides[base]; ok {
			return v
		}
	}
	if v, ok := s.overrides[base]; ok {
		return v
	}
	if st != nil {
		return st.minSize
	}
	return DefaultMinSize
}

func (s *Store) MinLifetime(exchange string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st := s.exchanges[normExchange(exchange)]; st != nil {
		return st.minLifetime
	}
	return 0
}

// IsBlacklisted reports whether base is on the global list or on the list
// of exchange.
func (s *Store) IsBlacklisted(exchange, base string) bool {
	base = normTicker(base)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blacklist[base]; ok {
		return true
	}
	if st := s.exchanges[normExchange(exchange)]; st != nil {
		_, ok := st.blacklist[base]
		return ok
	}
	return false
}

// ExchangeSnapshot is a copy of one exchange's settings.
type ExchangeSnapshot struct {
	Name            string
	MinSize         float64
	MinLifetime     int
	TickerOverrides map[string]float64
	Blacklist       []string
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	AlertsEnabled         bool
	DistancePct           float64
	ScanInterval          time.Duration
	OrderBookDepth        int
	QuoteCurrencies       []string
	GlobalBlacklist       []string
	GlobalTickerOverrides map[string]float64
	Exchanges             []ExchangeSnapshot
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		AlertsEnabled:         s.alertsEnabled,
		DistancePct:           s.distancePct,
		ScanInterval:          s.scanInterval,
		OrderBookDepth:        s.orderBookDepth,
		QuoteCurrencies:       append([]string(nil), s.quoteCurrencies...),
		GlobalBlacklist:       sortedKeys(s.blacklist),
		GlobalTickerOverrides: copyOverrides(s.overrides),
	}
	for name, st := range s.exchanges {
		snap.Exchanges = append(snap.Exchanges, ExchangeSnapshot{
			Name:            name,
			MinSize:         st.minSize,
			MinLifetime:     st.minLifetime,
			TickerOverrides: copyOverrides(st.overrides),
			Blacklist:       sortedKeys(st.blacklist),
		})
	}
	sort.Slice(snap.Exchanges, func(i, j int) bool { return snap.Exchanges[i].Name < snap.Exchanges[j].Name })
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func copyOverrides(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
