package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/rewired-gh/densityscanner/internal/models"
)

const (
	hyperliquidBaseURL = "https://api.hyperliquid.xyz"
	hyperliquidWSURL   = "wss://api.hyperliquid.xyz/ws"

	hyperliquidQuote = "USD"
	// The venue publishes at most 20 levels per side.
	hyperliquidMaxDepth = 20
)

// Hyperliquid serves perpetuals over the /info endpoint and pushes l2Book
// updates over websocket.
type Hyperliquid struct {
	http    *httpClient
	wsURL   string
	timeout time.Duration

	// PingInterval is the keepalive period of stream connections; the
	// venue drops connections idle for 60s.
	PingInterval time.Duration

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHyperliquid(cfg Config) *Hyperliquid {
	cfg = cfg.withDefaults(hyperliquidBaseURL, hyperliquidWSURL)
	return &Hyperliquid{
		http:         newHTTPClient("hyperliquid", cfg.BaseURL, cfg.Timeout),
		wsURL:        cfg.WSURL,
		timeout:      cfg.Timeout,
		PingInterval: 30 * time.Second,
		conns:        make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hyperliquid) Name() string { return "hyperliquid" }

func (h *Hyperliquid) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	body, err := h.http.post(ctx, "/info", map[string]string{"type": "meta"})
	if err != nil {
		return nil, fmt.Errorf("%w: hyperliquid: %w", ErrMarketLoad, err)
	}

	var meta struct {
		Universe []struct {
			Name        string `json:"name"`
			SzDecimals  int    `json:"szDecimals"`
			MaxLeverage int    `json:"maxLeverage"`
			IsDelisted  bool   `json:"isDelisted"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarketLoad, h.http.decodeError("meta", err))
	}

	markets := make(map[string]models.Market, len(meta.Universe))
	for _, asset := range meta.Universe {
		if asset.IsDelisted || asset.Name == "" {
			continue
		}
		symbol := asset.Name + "-" + hyperliquidQuote
		markets[symbol] = models.Market{
			Symbol:       symbol,
			Base:         asset.Name,
			Quote:        hyperliquidQuote,
			Contract:     true,
			Linear:       true,
			ContractSize: 1,
			Info: map[string]string{
				"id":          asset.Name,
				"szDecimals":  fmt.Sprint(asset.SzDecimals),
				"maxLeverage": fmt.Sprint(asset.MaxLeverage),
			},
		}
	}
	return markets, nil
}

// coin strips the dash quote from a unified symbol.
func hyperliquidCoin(symbol string) string {
	if i := strings.LastIndex(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

type hyperliquidLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

type hyperliquidBook struct {
	Coin   string               `json:"coin"`
	Time   int64                `json:"time"`
	Levels [][]hyperliquidLevel `json:"levels"`
}

func (b hyperliquidBook) orderBook(symbol string, depth int) (*models.OrderBook, error) {
	if len(b.Levels) != 2 {
		return nil, fmt.Errorf("expected 2 book sides, got %d", len(b.Levels))
	}
	bids, err := hyperliquidSide(b.Levels[0], depth)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := hyperliquidSide(b.Levels[1], depth)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	ts := time.Now()
	if b.Time > 0 {
		ts = time.UnixMilli(b.Time)
	}
	return &models.OrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: ts}, nil
}

func hyperliquidSide(levels []hyperliquidLevel, depth int) ([]models.PriceLevel, error) {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]models.PriceLevel, 0, len(levels))
	for i, l := range levels {
		price, err := parseDecimalString(l.Px)
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		amount, err := parseDecimalString(l.Sz)
		if err != nil {
			return nil, fmt.Errorf("level %d size: %w", i, err)
		}
		out = append(out, models.PriceLevel{Price: price, Amount: amount})
	}
	return out, nil
}

func (h *Hyperliquid) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	if depth <= 0 || depth > hyperliquidMaxDepth {
		depth = hyperliquidMaxDepth
	}

	body, err := h.http.post(ctx, "/info", map[string]string{
		"type": "l2Book",
		"coin": hyperliquidCoin(symbol),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(body)) == "null" {
		return nil, &Error{Exchange: "hyperliquid", Message: "unknown coin " + hyperliquidCoin(symbol), Original: ErrSymbolNotFound}
	}

	var raw hyperliquidBook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, h.http.decodeError("order book", err)
	}
	book, err := raw.orderBook(symbol, depth)
	if err != nil {
		return nil, h.http.decodeError("order book", err)
	}
	return book, nil
}

// WatchOrderBook subscribes to l2Book pushes for symbol on a dedicated
// connection. The subscription ends on the first read or write failure, on
// a venue error message, or when ctx is done.
func (h *Hyperliquid) WatchOrderBook(ctx context.Context, symbol string) (<-chan *models.OrderBook, <-chan error) {
	books := make(chan *models.OrderBook, 1)
	errs := make(chan error, 1)

	go func() {
		err := h.watch(ctx, symbol, books)
		if err != nil && ctx.Err() == nil {
			errs <- err
		}
		close(errs)
		close(books)
	}()

	return books, errs
}

func (h *Hyperliquid) watch(ctx context.Context, symbol string, books chan<- *models.OrderBook) error {
	dialer := websocket.Dialer{HandshakeTimeout: h.timeout}
	conn, resp, err := dialer.DialContext(ctx, h.wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return &Error{Exchange: "hyperliquid", Code: "429", Message: "stream connect rate limited", Kind: KindRateLimited}
		}
		return &Error{Exchange: "hyperliquid", Message: "stream dial failed", Kind: KindNetworkTransient, Original: err}
	}
	h.register(conn)
	defer h.unregister(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	coin := hyperliquidCoin(symbol)
	sub := map[string]interface{}{
		"method":       "subscribe",
		"subscription": map[string]string{"type": "l2Book", "coin": coin},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return &Error{Exchange: "hyperliquid", Message: "subscribe failed", Kind: KindNetworkTransient, Original: err}
	}

	go h.pingPump(conn, done)

	readTimeout := 2 * h.PingInterval
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &Error{Exchange: "hyperliquid", Message: "stream read failed", Kind: KindNetworkTransient, Original: err}
		}

		var env struct {
			Channel string              `json:"channel"`
			Data    jsoniter.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &env); err != nil {
			return &Error{Exchange: "hyperliquid", Message: "malformed stream message", Original: err}
		}

		switch env.Channel {
		case "l2Book":
			var raw hyperliquidBook
			if err := json.Unmarshal(env.Data, &raw); err != nil {
				return &Error{Exchange: "hyperliquid", Message: "malformed l2Book update", Original: err}
			}
			if raw.Coin != "" && raw.Coin != coin {
				continue
			}
			book, err := raw.orderBook(symbol, hyperliquidMaxDepth)
			if err != nil {
				return &Error{Exchange: "hyperliquid", Message: "malformed l2Book update", Original: err}
			}
			select {
			case books <- book:
			case <-ctx.Done():
				return nil
			}
		case "error":
			msg := strings.Trim(string(env.Data), `"`)
			kind := KindRejected
			if looksRateLimited(msg) {
				kind = KindRateLimited
			}
			return &Error{Exchange: "hyperliquid", Message: msg, Kind: kind}
		}
	}
}

// pingPump keeps the connection alive with the venue's JSON ping.
func (h *Hyperliquid) pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.timeout))
			if err := conn.WriteJSON(map[string]string{"method": "ping"}); err != nil {
				return
			}
		}
	}
}

func (h *Hyperliquid) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hyperliquid) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Close drops idle REST connections and every open stream.
func (h *Hyperliquid) Close() error {
	h.http.close()

	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for conn := range h.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.conns, conn)
	}
	return firstErr
}
