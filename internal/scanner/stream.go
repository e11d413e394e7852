package scanner

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/metrics"
	"github.com/rewired-gh/densityscanner/internal/models"
)

var errStreamClosed = errors.New("stream closed by venue")

// runStreams watches every priority symbol of st until ctx is done or all
// watchers gave up. REST coverage of the same symbols continues regardless.
// When the markets are not loaded yet it waits for the REST loop to load
// them.
func (e *Engine) runStreams(ctx context.Context, st *ExchangeState) {
	if !st.loaded() {
		e.ensureMarkets(ctx, st)
	}
	for !st.loaded() {
		logger.Debug("Markets for %s not loaded, streaming waits", st.Label)
		if !sleep(ctx, e.cfg.Stream.ReconnectDelay) {
			return
		}
	}
	all := st.Symbols()
	if len(all) == 0 {
		return
	}

	symbols, truncated := PrioritySymbols(all, e.cfg.PriorityTickers, e.cfg.Stream.MaxSymbols)
	if truncated {
		logger.Warn("Stream symbols exceed limit (%d) for %s, truncating", e.cfg.Stream.MaxSymbols, st.Label)
	}
	if len(symbols) == 0 {
		logger.Info("No priority symbols for streaming on %s, using REST only", st.Label)
		return
	}

	logger.Info("Starting stream scan for %s: %d priority symbols (out of %d total)", st.Label, len(symbols), len(all))
	st.setStreaming(true)
	defer st.setStreaming(false)

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			e.watchSymbol(ctx, st, symbol)
		}(symbol)
	}
	wg.Wait()
}

// watchSymbol keeps one symbol's stream alive. Every delivered book resets
// the reconnect budget; rate limiting pauses without spending it.
func (e *Engine) watchSymbol(ctx context.Context, st *ExchangeState, symbol string) {
	cfg := e.cfg.Stream
	base := models.BaseAsset(symbol)
	attempts := 0

	for ctx.Err() == nil && attempts < cfg.MaxReconnects {
		if e.skipReason(st, symbol, base) != "" {
			return
		}

		books, errs := st.Streamer.WatchOrderBook(ctx, symbol)
		for book := range books {
			e.process(st, symbol, book, e.contracts.Cached(st.Name, symbol))
			attempts = 0
		}
		err := <-errs
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errStreamClosed
		}

		if exchange.Classify(err) == exchange.KindRateLimited {
			pause := cfg.RateLimitPause
			if cfg.RateLimitJitter > 0 {
				pause += rand.N(cfg.RateLimitJitter)
			}
			logger.Debug("Stream rate limited on %s/%s, pausing %s", st.Name, symbol, pause.Round(100*time.Millisecond))
			if !sleep(ctx, pause) {
				return
			}
			continue
		}

		attempts++
		metrics.StreamReconnects.WithLabelValues(st.Name).Inc()
		if attempts <= 2 {
			logger.Debug("Stream reconnecting %s/%s (attempt %d/%d): %v", st.Label, symbol, attempts, cfg.MaxReconnects, err)
		} else {
			logger.Warn("Stream error %s/%s (reconnect %d/%d): %v", st.Label, symbol, attempts, cfg.MaxReconnects, err)
		}

		if attempts >= cfg.MaxReconnects {
			logger.Error("Stream max reconnects reached for %s/%s, giving up", st.Label, symbol)
			return
		}
		if !sleep(ctx, cfg.ReconnectDelay) {
			return
		}
	}
}
