package scanner

import (
	"strconv"
	"strings"
	"sync"

	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/models"
)

// Fallback metadata fields, in lookup order, for contracts that do not
// declare a unified contract size.
var contractSizeFields = []string{"multiplier", "contractSize", "lotSize"}

// ContractSize derives the base-asset multiplier of one order book unit.
// ok is false when a contract market had no usable size and 1.0 was
// assumed.
func ContractSize(m models.Market) (size float64, ok bool) {
	if !m.Contract {
		return 1.0, true
	}

	size = m.ContractSize
	if size == 0 {
		for _, field := range contractSizeFields {
			raw, present := m.Info[field]
			if !present || raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return 1.0, false
			}
			size = v
			break
		}
	}
	if size <= 0 {
		return 1.0, false
	}
	return size, true
}

// ContractResolver caches contract sizes per (exchange, symbol).
type ContractResolver struct {
	mu    sync.RWMutex
	cache map[string]float64
}

func NewContractResolver() *ContractResolver {
	return &ContractResolver{cache: make(map[string]float64)}
}

func cacheKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// Resolve returns the cached size, computing it from markets on first use.
// Symbols missing from markets resolve to 1.0.
func (r *ContractResolver) Resolve(exchange, symbol string, markets map[string]models.Market) float64 {
	key := cacheKey(exchange, symbol)

	r.mu.RLock()
	size, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return size
	}

	size = 1.0
	if m, found := markets[symbol]; found {
		var valid bool
		size, valid = ContractSize(m)
		if !valid {
			logger.Warn("No usable contract size for %s on %s, defaulting to 1.0", symbol, exchange)
		} else if size != 1.0 {
			logger.Info("Using contract size %g for %s on %s", size, symbol, exchange)
		}
	}

	r.mu.Lock()
	r.cache[key] = size
	r.mu.Unlock()
	return size
}

// Cached returns the cached size without consulting metadata, defaulting
// to 1.0.
func (r *ContractResolver) Cached(exchange, symbol string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if size, ok := r.cache[cacheKey(exchange, symbol)]; ok {
		return size
	}
	return 1.0
}

// Invalidate drops every entry of exchange and returns how many were removed.
func (r *ContractResolver) Invalidate(exchange string) int {
	prefix := exchange + ":"

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.cache {
		if strings.HasPrefix(key, prefix) {
			delete(r.cache, key)
			n++
		}
	}
	return n
}
