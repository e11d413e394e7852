package settings

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Writes apply in memory first. A persistence failure is returned wrapping
// ErrNotPersisted, and the new value stays in effect until restart.

// ErrNotPersisted marks a write that took effect but could not be saved.
var ErrNotPersisted = errors.New("failed to persist")

func validDistance(v float64) error {
	if v <= 0 || v > 100 {
		return fmt.Errorf("distance must be in (0, 100], got %v", v)
	}
	return nil
}

func (s *Store) persist(what string, fn func(Persister) error) error {
	if s.persister == nil {
		return nil
	}
	if err := fn(s.persister); err != nil {
		return fmt.Errorf("%w %s: %w", ErrNotPersisted, what, err)
	}
	return nil
}

func (s *Store) SetAlertsEnabled(enabled bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.alertsEnabled = enabled
	s.mu.Unlock()

	return s.persist(keyAlertsEnabled, func(p Persister) error {
		return p.SetValue(keyAlertsEnabled, strconv.FormatBool(enabled))
	})
}

func (s *Store) SetDistancePct(pct float64) error {
	if err := validDistance(pct); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.distancePct = pct
	s.mu.Unlock()

	return s.persist(keyDistancePct, func(p Persister) error {
		return p.SetValue(keyDistancePct, strconv.FormatFloat(pct, 'f', -1, 64))
	})
}

func (s *Store) SetScanInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", d)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.scanInterval = d
	s.mu.Unlock()

	return s.persist(keyScanInterval, func(p Persister) error {
		return p.SetValue(keyScanInterval, d.String())
	})
}

func (s *Store) SetOrderBookDepth(depth int) error {
	if depth <= 0 {
		return fmt.Errorf("order book depth must be positive, got %d", depth)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.orderBookDepth = depth
	s.mu.Unlock()

	return s.persist(keyOrderBookDepth, func(p Persister) error {
		return p.SetValue(keyOrderBookDepth, strconv.Itoa(depth))
	})
}

func (s *Store) AddGlobalBlacklist(ticker string) error {
	return s.addBlacklist(GlobalScope, ticker)
}

func (s *Store) RemoveGlobalBlacklist(ticker string) error {
	return s.removeBlacklist(GlobalScope, ticker)
}

func (s *Store) AddExchangeBlacklist(exchange, ticker string) error {
	return s.addBlacklist(normExchange(exchange), ticker)
}

func (s *Store) RemoveExchangeBlacklist(exchange, ticker string) error {
	return s.removeBlacklist(normExchange(exchange), ticker)
}

func (s *Store) addBlacklist(scope, ticker string) error {
	ticker = normTicker(ticker)
	if ticker == "" {
		return fmt.Errorf("ticker must not be empty")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.blacklistFor(scope)[ticker] = struct{}{}
	s.mu.Unlock()

	return s.persist("blacklist", func(p Persister) error { return p.AddBlacklist(scope, ticker) })
}

func (s *Store) removeBlacklist(scope, ticker string) error {
	ticker = normTicker(ticker)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.blacklistFor(scope), ticker)
	s.mu.Unlock()

	return s.persist("blacklist", func(p Persister) error { return p.RemoveBlacklist(scope, ticker) })
}

func (s *Store) SetGlobalTickerOverride(ticker string, minSize float64) error {
	return s.setOverride(GlobalScope, ticker, minSize)
}

func (s *Store) RemoveGlobalTickerOverride(ticker string) error {
	return s.removeOverride(GlobalScope, ticker)
}

func (s *Store) SetExchangeTickerOverride(exchange, ticker string, minSize float64) error {
	return s.setOverride(normExchange(exchange), ticker, minSize)
}

func (s *Store) RemoveExchangeTickerOverride(exchange, ticker string) error {
	return s.removeOverride(normExchange(exchange), ticker)
}

func (s *Store) setOverride(scope, ticker string, minSize float64) error {
	ticker = normTicker(ticker)
	if ticker == "" {
		return fmt.Errorf("ticker must not be empty")
	}
	if minSize <= 0 {
		return fmt.Errorf("min size must be positive, got %v", minSize)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.overridesFor(scope)[ticker] = minSize
	s.mu.Unlock()

	return s.persist("ticker override", func(p Persister) error { return p.SetTickerOverride(scope, ticker, minSize) })
}

func (s *Store) removeOverride(scope, ticker string) error {
	ticker = normTicker(ticker)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	delete(s.overridesFor(scope), ticker)
	s.mu.Unlock()

	return s.persist("ticker override", func(p Persister) error { return p.RemoveTickerOverride(scope, ticker) })
}

func (s *Store) SetExchangeMinSize(exchange string, minSize float64) error {
	if minSize <= 0 {
		return fmt.Errorf("min size must be positive, got %v", minSize)
	}
	exchange = normExchange(exchange)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.exchange(exchange).minSize = minSize
	s.mu.Unlock()

	return s.persist("exchange min size", func(p Persister) error {
		return p.SetExchangeValue(exchange, exchangeKeyMinSize, minSize)
	})
}

func (s *Store) SetExchangeMinLifetime(exchange string, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("min lifetime must not be negative, got %d", seconds)
	}
	exchange = normExchange(exchange)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.exchange(exchange).minLifetime = seconds
	s.mu.Unlock()

	return s.persist("exchange min lifetime", func(p Persister) error {
		return p.SetExchangeValue(exchange, exchangeKeyMinLifetime, float64(seconds))
	})
}
