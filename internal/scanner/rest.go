package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/metrics"
	"github.com/rewired-gh/densityscanner/internal/models"
)

// ensureMarkets loads the symbol list of st unless it is already loaded.
// A failed load leaves st with no symbols and counts against its error
// counter.
func (e *Engine) ensureMarkets(ctx context.Context, st *ExchangeState) {
	st.loadMu.Lock()
	defer st.loadMu.Unlock()

	if st.loaded() {
		return
	}

	logger.Info("Loading markets for %s...", st.Label)
	markets, err := st.Client.LoadMarkets(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, exchange.ErrMarketLoad) {
			err = fmt.Errorf("%w: %w", exchange.ErrMarketLoad, err)
		}
		logger.Error("Failed to load markets for %s: %v", st.Label, err)
		st.recordFailure(err)
		st.mu.Lock()
		st.symbols = nil
		st.mu.Unlock()
		return
	}

	markets = validMarkets(st, markets)
	symbols := SortByPriority(FilterMarkets(markets, e.settings.QuoteCurrencies()), e.cfg.PriorityTickers)

	st.mu.Lock()
	st.markets = markets
	st.symbols = symbols
	st.marketsLoaded = true
	st.consecutiveErrors = 0
	st.mu.Unlock()

	if n := e.contracts.Invalidate(st.Name); n > 0 {
		logger.Debug("Cleared %d cached contract sizes for %s", n, st.Label)
	}
	logger.Info("Loaded %d symbols for %s", len(symbols), st.Label)
}

// validMarkets returns the markets that pass validation. Rejected ones are
// logged at Debug.
func validMarkets(st *ExchangeState, markets map[string]models.Market) map[string]models.Market {
	out := make(map[string]models.Market, len(markets))
	for symbol, m := range markets {
		if err := m.Validate(); err != nil {
			logger.Debug("Skipping market %s on %s: %v", symbol, st.Label, err)
			continue
		}
		out[symbol] = m
	}
	return out
}

// scanPass runs one REST pass over every exchange concurrently, bracketed
// by the lifetime tracker's miss accounting.
func (e *Engine) scanPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan pass panicked: %v", r)
		}
	}()

	e.monitor.BeginPass()

	var g errgroup.Group
	for _, st := range e.exchanges {
		if st.resetIfFailing(e.cfg.ErrorResetThreshold) {
			logger.Warn("Resetting markets for %s due to consecutive errors", st.Label)
		}

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s: %v", st.Name, r)
					logger.Error("Error scanning %s: %v", st.Label, r)
					st.recordFailure(err)
				}
			}()
			e.scanExchange(ctx, st)
			return nil
		})
	}
	// Exchange failures are logged and counted inside each task.
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil
	}
	e.monitor.Cleanup()
	metrics.TrackedDensities.Set(float64(e.monitor.TrackedCount()))
	return nil
}

// scanExchange scans every symbol of st with at most st.Concurrency scans
// in flight.
func (e *Engine) scanExchange(ctx context.Context, st *ExchangeState) {
	if !st.loaded() {
		e.ensureMarkets(ctx, st)
	}
	symbols := st.Symbols()
	if len(symbols) == 0 {
		return
	}

	start := time.Now()
	logger.Debug("Starting parallel scan of %d symbols on %s (concurrency: %d)", len(symbols), st.Label, st.Concurrency)

	var (
		g        errgroup.Group
		counters passCounters
	)
	g.SetLimit(st.Concurrency)
	inflight := metrics.InflightScans.WithLabelValues(st.Name)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			inflight.Inc()
			defer inflight.Dec()
			counters.add(e.scanSymbol(ctx, st, symbol))
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}

	ok, failed := counters.totals()
	st.recordPass(failed)
	metrics.PassDuration.WithLabelValues(st.Name).Observe(time.Since(start).Seconds())
	logger.Info("Scan complete for %s: %d successful, %d errors from %d symbols", st.Name, ok, failed, len(symbols))
}

type passCounters struct {
	ok     atomic.Int64
	failed atomic.Int64
}

func (c *passCounters) add(r scanResult) {
	if r == resultFailed {
		c.failed.Add(1)
	} else {
		c.ok.Add(1)
	}
}

func (c *passCounters) totals() (ok, failed int) {
	return int(c.ok.Load()), int(c.failed.Load())
}

type scanResult int

const (
	resultOK scanResult = iota
	resultSkipped
	resultFailed
)

func (r scanResult) String() string {
	switch r {
	case resultSkipped:
		return "skipped"
	case resultFailed:
		return "error"
	default:
		return "ok"
	}
}

// scanSymbol runs the full pipeline for one symbol. Skips count as success.
func (e *Engine) scanSymbol(ctx context.Context, st *ExchangeState, symbol string) scanResult {
	result := e.scanSymbolInner(ctx, st, symbol)
	metrics.SymbolScans.WithLabelValues(st.Name, result.String()).Inc()
	return result
}

func (e *Engine) scanSymbolInner(ctx context.Context, st *ExchangeState, symbol string) scanResult {
	base := models.BaseAsset(symbol)
	if reason := e.skipReason(st, symbol, base); reason != "" {
		if reason != "blacklisted" {
			logger.Debug("Skipping %s: %s on %s", reason, symbol, st.Label)
		}
		return resultSkipped
	}

	depth := e.settings.OrderBookDepth()
	if st.DepthLimit > 0 {
		depth = st.DepthLimit
	}

	book, err := e.fetchOrderBook(ctx, st, symbol, depth)
	if err != nil {
		return resultFailed
	}

	contractSize := e.contracts.Resolve(st.Name, symbol, st.Markets())
	e.process(st, symbol, book, contractSize)
	return resultOK
}

// skipReason returns why symbol must not be scanned, or "".
func (e *Engine) skipReason(st *ExchangeState, symbol, base string) string {
	switch {
	case e.settings.IsBlacklisted(st.Name, base):
		return "blacklisted"
	case IsTestToken(base, e.cfg.SkipPrefixes, e.cfg.SkipPatterns):
		return "test/demo token"
	case !HasAllowedQuote(symbol, e.settings.QuoteCurrencies()):
		return "unsupported quote"
	}
	return ""
}

// fetchOrderBook retries network failures up to MaxRetries attempts, pauses
// once on rate limiting and gives up immediately on rejections.
func (e *Engine) fetchOrderBook(ctx context.Context, st *ExchangeState, symbol string, depth int) (*models.OrderBook, error) {
	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		book, err := st.Client.FetchOrderBook(ctx, symbol, depth)
		if err == nil {
			return book, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		kind := exchange.Classify(err)
		metrics.FetchErrors.WithLabelValues(st.Name, kind.String()).Inc()

		switch kind {
		case exchange.KindRateLimited:
			logger.Debug("Rate limited on %s/%s, waiting %s", st.Name, symbol, e.cfg.RateLimitPause)
			sleep(ctx, e.cfg.RateLimitPause)
			return nil, err
		case exchange.KindNetworkTransient:
			if attempt < attempts {
				logger.Warn("Network error on %s for %s, retrying (%d/%d): %v", st.Label, symbol, attempt, attempts, err)
				if !sleep(ctx, e.cfg.RetryDelay) {
					return nil, ctx.Err()
				}
				continue
			}
			logger.Error("Failed to fetch orderbook for %s on %s: %v", symbol, st.Label, err)
			return nil, err
		default:
			if exchange.VenueInfo(st.Name).BenignNotFound && exchange.IsSymbolNotFound(err) {
				logger.Debug("Symbol %s not found on %s", symbol, st.Label)
			} else {
				logger.Warn("Exchange error %s/%s: %v", st.Name, symbol, err)
			}
			return nil, err
		}
	}
	return nil, lastErr
}
