package exchange

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rewired-gh/densityscanner/internal/models"
)

const (
	bingxBaseURL = "https://open-api.bingx.com"

	bingxCodeRateLimited    = 100410
	bingxCodeSymbolNotFound = 109400
)

var bingxDepthSteps = []int{5, 10, 20, 50, 100, 500, 1000}

// BingX serves USDT-margined perpetual swaps.
type BingX struct {
	http *httpClient
}

func NewBingX(cfg Config) *BingX {
	cfg = cfg.withDefaults(bingxBaseURL, "")
	return &BingX{http: newHTTPClient("bingx", cfg.BaseURL, cfg.Timeout)}
}

func (b *BingX) Name() string { return "bingx" }

type bingxEnvelope struct {
	Code int                 `json:"code"`
	Msg  string              `json:"msg"`
	Data jsoniter.RawMessage `json:"data"`
}

func (b *BingX) call(ctx context.Context, path string, params url.Values) (jsoniter.RawMessage, error) {
	body, err := b.http.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var env bingxEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, b.http.decodeError("response", err)
	}
	if env.Code != 0 {
		xe := &Error{Exchange: "bingx", Code: strconv.Itoa(env.Code), Message: env.Msg, Kind: KindRejected}
		lower := strings.ToLower(env.Msg)
		switch {
		case env.Code == bingxCodeRateLimited:
			xe.Kind = KindRateLimited
		case env.Code == bingxCodeSymbolNotFound,
			strings.Contains(lower, "not exist"),
			strings.Contains(lower, "not found"):
			xe.Original = ErrSymbolNotFound
		}
		return nil, xe
	}
	return env.Data, nil
}

func (b *BingX) LoadMarkets(ctx context.Context) (map[string]models.Market, error) {
	data, err := b.call(ctx, "/openApi/swap/v2/quote/contracts", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bingx: %w", ErrMarketLoad, err)
	}

	var contracts []struct {
		Symbol   string `json:"symbol"`
		Asset    string `json:"asset"`
		Currency string `json:"currency"`
		Size     string `json:"size"`
		Status   int    `json:"status"`
	}
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarketLoad, b.http.decodeError("contracts", err))
	}

	markets := make(map[string]models.Market, len(contracts))
	for _, c := range contracts {
		if c.Status != 1 {
			continue
		}
		base, quote, ok := strings.Cut(c.Symbol, "-")
		if !ok {
			continue
		}
		if c.Asset != "" {
			base = c.Asset
		}
		if c.Currency != "" {
			quote = c.Currency
		}
		unified := base + "/" + quote + ":" + quote
		// Depth quantities are quoted in the base asset.
		markets[unified] = models.Market{
			Symbol:       unified,
			Base:         base,
			Quote:        quote,
			Contract:     true,
			Linear:       true,
			ContractSize: 1,
			Info:         map[string]string{"id": c.Symbol, "size": c.Size},
		}
	}
	return markets, nil
}

func bingxID(symbol string) string {
	pair := symbol
	if i := strings.Index(pair, ":"); i >= 0 {
		pair = pair[:i]
	}
	return strings.Replace(pair, "/", "-", 1)
}

func bingxDepth(depth int) int {
	for _, step := range bingxDepthSteps {
		if depth <= step {
			return step
		}
	}
	return bingxDepthSteps[len(bingxDepthSteps)-1]
}

func (b *BingX) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	params := url.Values{
		"symbol": {bingxID(symbol)},
		"limit":  {strconv.Itoa(bingxDepth(depth))},
	}
	data, err := b.call(ctx, "/openApi/swap/v2/quote/depth", params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		T    int64      `json:"T"`
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, b.http.decodeError("order book", err)
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, b.http.decodeError("bids", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, b.http.decodeError("asks", err)
	}

	// Asks arrive highest first; normalize both sides to best first.
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	ts := time.Now()
	if raw.T > 0 {
		ts = time.UnixMilli(raw.T)
	}
	return &models.OrderBook{Symbol: symbol, Bids: bids, Asks: asks, Timestamp: ts}, nil
}

func (b *BingX) Close() error {
	b.http.close()
	return nil
}
