package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rewired-gh/densityscanner/internal/models"
)

const (
	kucoinSpotURL    = "https://api.kucoin.com"
	kucoinFuturesURL = "https://api-futures.kucoin.com"

	kucoinCodeOK          = "200000"
	kucoinCodeRateLimited = "429000"
)

// Kucoin serves both KuCoin spot and KuCoin USDT-margined futures, which
// share the response envelope but not the endpoints.
type Kucoin struct {
	name    string
	futures bool
	http    *httpClient

	mu  sync.RWMutex
	ids map[string]string // unified symbol -> venue symbol
}

func NewKucoin(futures bool, cfg Config) *Kucoin {
	name, baseURL := "kucoin_spot", kucoinSpotURL
	if futures {
		name, baseURL = "kucoin_futures", kucoinFuturesURL
	}
	cfg = cfg.withDefaults(baseURL, "")
	return &Kucoin{
		name:    name,
		futures: futures,
		http:    newHTTPClient(name, cfg.BaseURL, cfg.Timeout),
		ids:     make(map[string]string),
	}
}

func (k *Kucoin) Name() string { return k.name }

type kucoinEnvelope struct {
	Code string              `json:"code"`
	Msg  string              `json:"msg"`
	Data jsoniter.RawMessage `json:"data"`
}

func (k *Kucoin) call(ctx context.Context, path string, params url.Values) (jsoniter.RawMessage, error) {
	body, err := k.http.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var env kucoinEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, k.http.decodeError("response", err)
	}
	if env.Code != kucoinCodeOK {
		kind := KindRejected
		if env.Code == kucoinCodeRateLimited {
			kind = KindRateLimited
		}
		return nil, &Error{Exchange: k.name, Code: env.Code, Message: env.Msg, Kind: kind}
	}
	return env.Data, nil
}

func (k *Kucoin) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	var (
		markets map[string]models.Market
		err     error
	)
	if k.futures {
		markets, err = k.loadContracts(ctx)
	} else {
		markets, err = k.loadSymbols(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMarketLoad, k.name, err)
	}

	ids := make(map[string]string, len(markets))
	for symbol, m := range markets {
		ids[symbol] = m.Info["id"]
	}
	k.mu.Lock()
	k.ids = ids
	k.mu.Unlock()

	return markets, nil
}

func (k *Kucoin) loadSymbols(ctx context.Context) (map[string]models.Market, error) {
	data, err := k.call(ctx, "/api/v2/symbols", nil)
	if err != nil {
		return nil, err
	}

	var symbols []struct {
		Symbol        string `json:"symbol"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		EnableTrading bool   `json:"enableTrading"`
	}
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, k.http.decodeError("symbols", err)
	}

	markets := make(map[string]models.Market, len(symbols))
	for _, s := range symbols {
		if !s.EnableTrading || s.BaseCurrency == "" || s.QuoteCurrency == "" {
			continue
		}
		unified := s.BaseCurrency + "/" + s.QuoteCurrency
		markets[unified] = models.Market{
			Symbol: unified,
			Base:   s.BaseCurrency,
			Quote:  s.QuoteCurrency,
			Info:   map[string]string{"id": s.Symbol},
		}
	}
	return markets, nil
}

func (k *Kucoin) loadContracts(ctx context.Context) (map[string]models.Market, error) {
	data, err := k.call(ctx, "/api/v1/contracts/active", nil)
	if err != nil {
		return nil, err
	}

	var contracts []struct {
		Symbol         string  `json:"symbol"`
		BaseCurrency   string  `json:"baseCurrency"`
		QuoteCurrency  string  `json:"quoteCurrency"`
		SettleCurrency string  `json:"settleCurrency"`
		Multiplier     float64 `json:"multiplier"`
		LotSize        float64 `json:"lotSize"`
		IsInverse      bool    `json:"isInverse"`
		Status         string  `json:"status"`
	}
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, k.http.decodeError("contracts", err)
	}

	markets := make(map[string]models.Market, len(contracts))
	for _, c := range contracts {
		if c.Status != "" && c.Status != "Open" {
			continue
		}
		base := c.BaseCurrency
		if base == "XBT" {
			base = "BTC"
		}
		settle := c.SettleCurrency
		if settle == "" {
			settle = c.QuoteCurrency
		}
		unified := base + "/" + c.QuoteCurrency + ":" + settle
		markets[unified] = models.Market{
			Symbol:       unified,
			Base:         base,
			Quote:        c.QuoteCurrency,
			Contract:     true,
			Linear:       !c.IsInverse,
			ContractSize: c.Multiplier,
			Info: map[string]string{
				"id":         c.Symbol,
				"multiplier": strconv.FormatFloat(c.Multiplier, 'f', -1, 64),
				"lotSize":    strconv.FormatFloat(c.LotSize, 'f', -1, 64),
			},
		}
	}
	return markets, nil
}

// nativeID maps a unified symbol to the venue's identifier, deriving it from
// the notation when markets have not been loaded yet.
func (k *Kucoin) nativeID(symbol string) string {
	k.mu.RLock()
	id, ok := k.ids[symbol]
	k.mu.RUnlock()
	if ok && id != "" {
		return id
	}

	pair := symbol
	if i := strings.Index(pair, ":"); i >= 0 {
		pair = pair[:i]
	}
	base, quote, _ := strings.Cut(pair, "/")
	if !k.futures {
		return base + "-" + quote
	}
	if base == "BTC" {
		base = "XBT"
	}
	return base + quote + "M"
}

// KuCoin serves exactly 20 or 100 levels.
func kucoinDepth(depth int) string {
	if depth <= 20 {
		return "20"
	}
	return "100"
}

func (k *Kucoin) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	path := "/api/v1/market/orderbook/level2_" + kucoinDepth(depth)
	if k.futures {
		path = "/api/v1/level2/depth" + kucoinDepth(depth)
	}

	data, err := k.call(ctx, path, url.Values{"symbol": {k.nativeID(symbol)}})
	if err != nil {
		return nil, err
	}

	var raw struct {
		Time int64      `json:"time"`
		Ts   int64      `json:"ts"`
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, k.http.decodeError("order book", err)
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, k.http.decodeError("bids", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, k.http.decodeError("asks", err)
	}

	ts := time.Now()
	switch {
	case raw.Time > 0:
		ts = time.UnixMilli(raw.Time)
	case raw.Ts > 0:
		// Futures report nanoseconds.
		ts = time.Unix(0, raw.Ts)
	}

	return &models.OrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: ts}, nil
}

func (k *Kucoin) Close() error {
	k.http.close()
	return nil
}
