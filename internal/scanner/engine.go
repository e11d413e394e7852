package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/densityscanner/internal/density"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/metrics"
	"github.com/rewired-gh/densityscanner/internal/models"
	"github.com/rewired-gh/densityscanner/internal/monitor"
)

var (
	ErrNoExchanges = errors.New("no exchanges initialized")
	ErrNoSink      = errors.New("alert sink is not configured")
)

// Engine owns the scan lifecycle across all exchanges.
type Engine struct {
	cfg       Config
	settings  Settings
	monitor   *monitor.Monitor
	sink      Sink
	contracts *ContractResolver
	exchanges []*ExchangeState
	now       func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	running  bool
	stopOnce sync.Once
}

func New(cfg Config, settings Settings, mon *monitor.Monitor, sink Sink, specs ...ExchangeSpec) *Engine {
	e := &Engine{
		cfg:       cfg,
		settings:  settings,
		monitor:   mon,
		sink:      sink,
		contracts: NewContractResolver(),
		now:       time.Now,
	}
	for _, spec := range specs {
		if spec.Client == nil {
			continue
		}
		e.exchanges = append(e.exchanges, newExchangeState(spec))
	}
	return e
}

// Start runs the scanner until ctx is done or Stop is called. It fails only
// when there is nothing to scan or nowhere to deliver alerts.
func (e *Engine) Start(ctx context.Context) error {
	if e.sink == nil {
		return ErrNoSink
	}
	if len(e.exchanges) == 0 {
		return ErrNoExchanges
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.closeClients()
		return nil
	}
	e.cancel = cancel
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	defer e.closeClients()

	logger.Info("Starting density scanner on %d exchanges...", len(e.exchanges))

	var wg sync.WaitGroup
	if e.cfg.Stream.Enabled {
		streaming := 0
		for _, st := range e.exchanges {
			if st.Streamer == nil {
				continue
			}
			streaming++
			wg.Add(1)
			go func(st *ExchangeState) {
				defer wg.Done()
				e.runStreams(ctx, st)
			}(st)
		}
		if streaming > 0 {
			logger.Info("Streaming enabled for %d exchanges (priority tickers only)", streaming)
		}
	}
	logger.Info("REST scanning covers all symbols on %d exchanges", len(e.exchanges))

	for ctx.Err() == nil {
		if err := e.scanPass(ctx); err != nil {
			logger.Error("Error in REST scan loop: %v", err)
			sleep(ctx, e.cfg.FailureBackoff)
			continue
		}
		if !sleep(ctx, e.settings.ScanInterval()) {
			break
		}
	}

	wg.Wait()
	logger.Info("Scanner stopped")
	return nil
}

// Stop ends a running Start. Further calls have no effect.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		logger.Info("Stopping scanner...")
		e.mu.Lock()
		e.stopped = true
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()
	})
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status summarizes every exchange.
func (e *Engine) Status() []ExchangeStatus {
	out := make([]ExchangeStatus, 0, len(e.exchanges))
	for _, st := range e.exchanges {
		out = append(out, st.status())
	}
	return out
}

func (e *Engine) closeClients() {
	logger.Info("Closing exchange connections...")
	for _, st := range e.exchanges {
		if err := st.Client.Close(); err != nil {
			logger.Error("Error closing client %s: %v", st.Label, err)
		}
	}
}

// process runs the density pipeline for one book and forwards the alerts
// that survive the anti-spam gate. It returns the number submitted.
func (e *Engine) process(st *ExchangeState, symbol string, book *models.OrderBook, contractSize float64) int {
	base := models.BaseAsset(symbol)
	params := density.Params{
		MinSize:      e.settings.ResolveMinSize(st.Name, base),
		DistancePct:  e.settings.DistancePct(),
		ContractSize: contractSize,
	}
	candidates := density.Compute(st.Name, symbol, book, params, e.now())
	if len(candidates) == 0 || !e.settings.AlertsEnabled() {
		return 0
	}

	minLifetime := e.settings.MinLifetime(st.Name)
	sent := 0
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			logger.Warn("Dropping invalid density on %s %s: %v", st.Label, symbol, err)
			continue
		}
		lifetime := e.monitor.Observe(st.Name, symbol, c.Side, c.Price)
		alert := c.WithLifetime(lifetime)
		e.monitor.MarkSeen(st.Name, symbol, c.Side, c.Price)

		send, reason := e.monitor.Evaluate(alert, minLifetime)
		metrics.AlertDecisions.WithLabelValues(st.Name, string(reason)).Inc()
		if !send {
			if reason == monitor.ReasonLifetimeTooShort {
				logger.Debug("Skipped alert (lifetime too short): %s %s %s $%.0f (lifetime: %ds < %ds)",
					st.Label, symbol, alert.Side, alert.Volume, alert.LifetimeSeconds, minLifetime)
			} else {
				logger.Debug("Skipped alert (%s): %s %s %s $%.0f", reason, st.Label, symbol, alert.Side, alert.Volume)
			}
			continue
		}

		alert = alert.WithID(uuid.NewString())
		if !e.sink.Submit(alert) {
			continue
		}
		sent++
		logger.Info("Alert (%s): %s %s %s $%.0f (lifetime: %ds) [%s]",
			reason, st.Label, symbol, alert.Side, alert.Volume, alert.LifetimeSeconds, alert.ID)
	}
	return sent
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
