// Package monitor tracks how long densities persist and decides which of
// them are worth alerting on.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/models"
)

type Config struct {
	Cooldown       time.Duration
	SizeSurge      float64
	PriceChange    float64
	PriceTolerance float64
	MissLimit      int
}

func DefaultConfig() Config {
	return Config{
		Cooldown:       300 * time.Second,
		SizeSurge:      0.50,
		PriceChange:    0.005,
		PriceTolerance: 0.001,
		MissLimit:      3,
	}
}

// Reason explains a gate decision.
type Reason string

const (
	ReasonFirstAlert       Reason = "first_alert"
	ReasonSizeSurge        Reason = "size_surge"
	ReasonPriceChange      Reason = "price_change"
	ReasonCooldownExpired  Reason = "cooldown_expired"
	ReasonCooldownActive   Reason = "cooldown_active"
	ReasonLifetimeTooShort Reason = "lifetime_too_short"
)

type densityKey struct {
	exchange string
	symbol   string
	side     models.Side
}

type cooldownRecord struct {
	SentAt time.Time
	Volume float64
	Price  float64
}

type track struct {
	price     float64
	firstSeen time.Time
	misses    int
}

// Monitor tracks density lifetimes and the per-key cooldown records used to
// suppress repeated alerts. A track and the cooldown record of its
// (exchange, symbol, side) key are evicted together.
type Monitor struct {
	mu        sync.Mutex
	config    Config
	now       func() time.Time
	cooldowns map[densityKey]cooldownRecord
	tracks    map[densityKey][]*track
}

func New(config Config) *Monitor {
	if config.MissLimit <= 0 {
		config.MissLimit = DefaultConfig().MissLimit
	}
	if config.PriceTolerance <= 0 {
		config.PriceTolerance = DefaultConfig().PriceTolerance
	}
	return &Monitor{
		config:    config,
		now:       time.Now,
		cooldowns: make(map[densityKey]cooldownRecord),
		tracks:    make(map[densityKey][]*track),
	}
}

func relDiff(a, ref float64) float64 {
	if ref <= 0 {
		return 1.0
	}
	return math.Abs(a-ref) / ref
}

// find returns the live track for key whose price is within tolerance.
// Caller holds m.mu.
func (m *Monitor) find(key densityKey, price float64) *track {
	for _, tr := range m.tracks[key] {
		if relDiff(price, tr.price) <= m.config.PriceTolerance {
			return tr
		}
	}
	return nil
}

// Observe returns how many whole seconds a density near price has been
// tracked, starting a new track (lifetime 0) if none matches.
func (m *Monitor) Observe(exchange, symbol string, side models.Side, price float64) int {
	key := densityKey{exchange, symbol, side}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if tr := m.find(key, price); tr != nil {
		return int(now.Sub(tr.firstSeen).Seconds())
	}
	m.tracks[key] = append(m.tracks[key], &track{price: price, firstSeen: now})
	return 0
}

// MarkSeen resets the miss counter of the matching track.
func (m *Monitor) MarkSeen(exchange, symbol string, side models.Side, price float64) {
	key := densityKey{exchange, symbol, side}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tr := m.find(key, price); tr != nil {
		tr.misses = 0
	}
}

// BeginPass counts one more unseen pass against every live track.
func (m *Monitor) BeginPass() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range m.tracks {
		for _, tr := range list {
			tr.misses++
		}
	}
}

// Cleanup evicts tracks that reached the miss limit, together with the
// cooldown record of their key. It returns the number of evicted tracks.
func (m *Monitor) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, list := range m.tracks {
		kept := list[:0]
		for _, tr := range list {
			if tr.misses >= m.config.MissLimit {
				evicted++
				delete(m.cooldowns, key)
				continue
			}
			kept = append(kept, tr)
		}
		if len(kept) == 0 {
			delete(m.tracks, key)
		} else {
			m.tracks[key] = kept
		}
	}

	if evicted > 0 {
		logger.Debug("Cleaned up %d missing densities", evicted)
	}
	return evicted
}

// TrackedCount returns the number of live density tracks.
func (m *Monitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, list := range m.tracks {
		n += len(list)
	}
	return n
}

// decide applies the anti-spam rules in order. Caller holds m.mu.
func (m *Monitor) decide(key densityKey, volume, price float64, now time.Time) (bool, Reason) {
	rec, exists := m.cooldowns[key]
	if !exists {
		return true, ReasonFirstAlert
	}

	sizeIncrease := 0.0
	if rec.Volume > 0 {
		sizeIncrease = (volume - rec.Volume) / rec.Volume
	}
	if sizeIncrease >= m.config.SizeSurge {
		return true, ReasonSizeSurge
	}
	if relDiff(price, rec.Price) >= m.config.PriceChange {
		return true, ReasonPriceChange
	}
	if now.Sub(rec.SentAt) >= m.config.Cooldown {
		return true, ReasonCooldownExpired
	}
	// Decreases and sub-threshold changes are both suppressed.
	return false, ReasonCooldownActive
}

// Evaluate decides whether a lifetime-annotated alert should be emitted.
// Alerts younger than minLifetime seconds are suppressed even when the
// cooldown rules allow them. On send the cooldown record is overwritten.
func (m *Monitor) Evaluate(alert models.DensityAlert, minLifetime int) (bool, Reason) {
	key := densityKey{alert.Exchange, alert.Symbol, alert.Side}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	send, reason := m.decide(key, alert.Volume, alert.Price, now)
	if !send {
		return false, reason
	}
	if alert.LifetimeSeconds < minLifetime {
		return false, ReasonLifetimeTooShort
	}
	m.cooldowns[key] = cooldownRecord{SentAt: now, Volume: alert.Volume, Price: alert.Price}
	return true, reason
}
