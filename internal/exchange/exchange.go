// Package exchange provides read-only market data clients for the
// supported venues, normalized to the unified symbol notations used by the
// scanner: BASE/QUOTE for spot, BASE/QUOTE:SETTLE for linear contracts and
// BASE-QUOTE for dash-quoted pairs.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/densityscanner/internal/models"
)

// Client is the snapshot side of a venue.
type Client interface {
	Name() string
	// LoadMarkets returns every tradable market keyed by unified symbol.
	// Failures wrap ErrMarketLoad.
	LoadMarkets(ctx context.Context) (map[string]models.Market, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	Close() error
}

// Streamer is implemented by clients that can push order book updates.
// The book channel is closed when the subscription ends; by then the error
// channel holds the terminal error, if any, and is closed.
type Streamer interface {
	WatchOrderBook(ctx context.Context, symbol string) (<-chan *models.OrderBook, <-chan error)
}

// Config holds the connection settings of one venue. Empty URLs fall back
// to the public production endpoints.
type Config struct {
	BaseURL string
	WSURL   string
	Timeout time.Duration
}

func (c Config) withDefaults(baseURL, wsURL string) Config {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.WSURL == "" {
		c.WSURL = wsURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Venue is the presentation metadata of an exchange.
type Venue struct {
	Name       string
	Label      string
	MarketType string
	// TradeURL contains a {symbol} placeholder for the base asset.
	TradeURL string
	// BenignNotFound marks venues that routinely list symbols they then
	// refuse to serve books for.
	BenignNotFound bool
}

var venues = map[string]Venue{
	"kucoin_spot": {
		Name:       "kucoin_spot",
		Label:      "KuCoin Spot",
		MarketType: "SPOT",
		TradeURL:   "https://www.kucoin.com/trade/{symbol}-USDT",
	},
	"kucoin_futures": {
		Name:       "kucoin_futures",
		Label:      "KuCoin Futures",
		MarketType: "FUTURES",
		TradeURL:   "https://www.kucoin.com/futures/trade/{symbol}USDT",
	},
	"hyperliquid": {
		Name:       "hyperliquid",
		Label:      "HL (Hyperliquid)",
		MarketType: "PERP",
		TradeURL:   "https://app.hyperliquid.xyz/trade/{symbol}",
	},
	"bingx": {
		Name:           "bingx",
		Label:          "BingX",
		MarketType:     "PERP",
		TradeURL:       "https://bingx.com/en/futures/{symbol}USDT/",
		BenignNotFound: true,
	},
}

// SupportedExchanges lists the venue names accepted by New.
var SupportedExchanges = []string{
	"kucoin_spot",
	"kucoin_futures",
	"hyperliquid",
	"bingx",
}

// VenueInfo returns the metadata for name, or a perpetual venue labelled
// with the name itself for unknown venues.
func VenueInfo(name string) Venue {
	if v, ok := venues[strings.ToLower(name)]; ok {
		return v
	}
	return Venue{Name: name, Label: name, MarketType: "PERP"}
}

// TradeLink returns the venue's trading page for base, or "" when the venue
// has no template.
func (v Venue) TradeLink(base string) string {
	if v.TradeURL == "" {
		return ""
	}
	return strings.ReplaceAll(v.TradeURL, "{symbol}", strings.ToUpper(base))
}

// New creates the client for the named venue.
func New(name string, cfg Config) (Client, error) {
	switch strings.ToLower(name) {
	case "kucoin_spot":
		return NewKucoin(false, cfg), nil
	case "kucoin_futures":
		return NewKucoin(true, cfg), nil
	case "hyperliquid":
		return NewHyperliquid(cfg), nil
	case "bingx":
		return NewBingX(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported reports whether New knows the venue.
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
