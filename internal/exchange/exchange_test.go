package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// ─── Errors ──────────────────────────────────────────────────────────────────

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed rate limit", &Error{Exchange: "x", Kind: KindRateLimited}, KindRateLimited},
		{"typed network", &Error{Exchange: "x", Kind: KindNetworkTransient}, KindNetworkTransient},
		{"wrapped sentinel", fmt.Errorf("fetch: %w", ErrRateLimited), KindRateLimited},
		{"vendor 429 text", errors.New("bingx: code 429 slow down"), KindRateLimited},
		{"rate limit text in rejection", &Error{Exchange: "x", Message: "Rate limit exceeded"}, KindRateLimited},
		{"net error", timeoutErr{}, KindNetworkTransient},
		{"deadline", context.DeadlineExceeded, KindNetworkTransient},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), KindNetworkTransient},
		{"plain rejection", &Error{Exchange: "x", Message: "bad symbol"}, KindRejected},
		{"unknown error", errors.New("boom"), KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorIsSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Exchange: "bingx", Kind: KindRateLimited})
	if !errors.Is(err, ErrRateLimited) {
		t.Error("expected errors.Is(err, ErrRateLimited)")
	}
	if errors.Is(err, ErrNetworkTransient) {
		t.Error("rate limit must not match ErrNetworkTransient")
	}

	nf := &Error{Exchange: "bingx", Message: "symbol not exist", Original: ErrSymbolNotFound}
	if !IsSymbolNotFound(nf) {
		t.Error("expected IsSymbolNotFound")
	}
	if IsSymbolNotFound(errors.New("insufficient balance")) {
		t.Error("unrelated error reported as not found")
	}
}

// ─── Levels ──────────────────────────────────────────────────────────────────

func TestParseLevels(t *testing.T) {
	var raw []rawLevel
	if err := json.Unmarshal([]byte(`[["100.5","2"],[99.5,3,"extra",7],["98","0.125"]]`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	levels, err := parseLevels(raw)
	if err != nil {
		t.Fatalf("parseLevels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(levels))
	}
	if levels[0].Price != 100.5 || levels[0].Amount != 2 {
		t.Errorf("level 0 = %+v", levels[0])
	}
	if levels[1].Price != 99.5 || levels[1].Amount != 3 {
		t.Errorf("level 1 = %+v", levels[1])
	}
	if levels[2].Amount != 0.125 {
		t.Errorf("level 2 amount = %v", levels[2].Amount)
	}

	if err := json.Unmarshal([]byte(`[["100"]]`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := parseLevels(raw); err == nil {
		t.Error("expected error for level without amount")
	}
}

// ─── Venue info ──────────────────────────────────────────────────────────────

func TestVenueInfo(t *testing.T) {
	v := VenueInfo("kucoin_futures")
	if v.MarketType != "FUTURES" {
		t.Errorf("MarketType = %q", v.MarketType)
	}
	if got := v.TradeLink("eth"); got != "https://www.kucoin.com/futures/trade/ETHUSDT" {
		t.Errorf("TradeLink = %q", got)
	}
	if !VenueInfo("bingx").BenignNotFound {
		t.Error("bingx should report benign not-found")
	}
	unknown := VenueInfo("lither")
	if unknown.Label != "lither" || unknown.MarketType != "PERP" || unknown.TradeLink("BTC") != "" {
		t.Errorf("unknown venue = %+v", unknown)
	}
}

func TestNew(t *testing.T) {
	for _, name := range SupportedExchanges {
		c, err := New(name, Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if c.Name() != name {
			t.Errorf("Name() = %q, want %q", c.Name(), name)
		}
	}
	if _, err := New("mtgox", Config{}); err == nil {
		t.Error("expected error for unsupported exchange")
	}
	if _, ok := interface{}(NewHyperliquid(Config{})).(Streamer); !ok {
		t.Error("hyperliquid should implement Streamer")
	}
}

// ─── KuCoin ──────────────────────────────────────────────────────────────────

func TestKucoinSpot(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/symbols":
			fmt.Fprint(w, `{"code":"200000","data":[
				{"symbol":"BTC-USDT","baseCurrency":"BTC","quoteCurrency":"USDT","enableTrading":true},
				{"symbol":"OLD-USDT","baseCurrency":"OLD","quoteCurrency":"USDT","enableTrading":false}]}`)
		case "/api/v1/market/orderbook/level2_20":
			if r.URL.Query().Get("symbol") != "BTC-USDT" {
				t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
			}
			fmt.Fprint(w, `{"code":"200000","data":{"time":1700000000000,"bids":[["50000","1.5"]],"asks":[["50010","2"]]}}`)
		default:
			http.NotFound(w, r)
		}
	})

	k := NewKucoin(false, Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
	markets, err := k.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("got %d markets, want 1", len(markets))
	}
	m := markets["BTC/USDT"]
	if m.Contract || m.Quote != "USDT" {
		t.Errorf("market = %+v", m)
	}

	book, err := k.FetchOrderBook(context.Background(), "BTC/USDT", 20)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if book.BestBid() != 50000 || book.BestAsk() != 50010 || book.Bids[0].Amount != 1.5 {
		t.Errorf("book = %+v", book)
	}
	if !book.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp = %v", book.Timestamp)
	}
}

func TestKucoinFutures(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/contracts/active":
			fmt.Fprint(w, `{"code":"200000","data":[
				{"symbol":"XBTUSDTM","baseCurrency":"XBT","quoteCurrency":"USDT","settleCurrency":"USDT","multiplier":0.001,"lotSize":1,"isInverse":false,"status":"Open"},
				{"symbol":"XBTUSDM","baseCurrency":"XBT","quoteCurrency":"USD","settleCurrency":"XBT","multiplier":-1,"lotSize":1,"isInverse":true,"status":"Open"}]}`)
		case "/api/v1/level2/depth100":
			if r.URL.Query().Get("symbol") != "XBTUSDTM" {
				t.Errorf("symbol = %q", r.URL.Query().Get("symbol"))
			}
			fmt.Fprint(w, `{"code":"200000","data":{"ts":1700000000000000000,"bids":[[50000,120]],"asks":[[50010,80]]}}`)
		default:
			http.NotFound(w, r)
		}
	})

	k := NewKucoin(true, Config{BaseURL: srv.URL})
	markets, err := k.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	m, ok := markets["BTC/USDT:USDT"]
	if !ok {
		t.Fatalf("BTC/USDT:USDT missing from %v", markets)
	}
	if !m.Contract || !m.Linear || m.ContractSize != 0.001 || m.Info["lotSize"] != "1" {
		t.Errorf("market = %+v", m)
	}
	if inv := markets["BTC/USD:XBT"]; inv.Linear {
		t.Errorf("inverse contract marked linear: %+v", inv)
	}

	book, err := k.FetchOrderBook(context.Background(), "BTC/USDT:USDT", 50)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if book.Bids[0].Amount != 120 {
		t.Errorf("bid amount = %v", book.Bids[0].Amount)
	}
}

func TestKucoinErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{"vendor rate limit", 200, `{"code":"429000","msg":"Too Many Requests"}`, KindRateLimited},
		{"http 429", 429, `{}`, KindRateLimited},
		{"server error", 503, `upstream down`, KindNetworkTransient},
		{"vendor rejection", 200, `{"code":"400100","msg":"symbol invalid"}`, KindRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			k := NewKucoin(false, Config{BaseURL: srv.URL})
			_, err := k.FetchOrderBook(context.Background(), "BTC/USDT", 20)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.wantKind {
				t.Errorf("Classify() = %v, want %v (err: %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestLoadMarketsWrapsErrMarketLoad(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	for _, c := range []Client{
		NewKucoin(false, Config{BaseURL: srv.URL}),
		NewBingX(Config{BaseURL: srv.URL}),
		NewHyperliquid(Config{BaseURL: srv.URL}),
	} {
		if _, err := c.LoadMarkets(context.Background()); !errors.Is(err, ErrMarketLoad) {
			t.Errorf("%s: err = %v, want ErrMarketLoad", c.Name(), err)
		}
	}
}

// ─── BingX ───────────────────────────────────────────────────────────────────

func TestBingX(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openApi/swap/v2/quote/contracts":
			fmt.Fprint(w, `{"code":0,"data":[
				{"symbol":"ETH-USDT","asset":"ETH","currency":"USDT","size":"0.01","status":1},
				{"symbol":"DEAD-USDT","asset":"DEAD","currency":"USDT","status":0}]}`)
		case "/openApi/swap/v2/quote/depth":
			switch r.URL.Query().Get("symbol") {
			case "ETH-USDT":
				if r.URL.Query().Get("limit") != "50" {
					t.Errorf("limit = %q, want 50", r.URL.Query().Get("limit"))
				}
				fmt.Fprint(w, `{"code":0,"data":{"T":1700000000000,
					"bids":[["3000","10"],["2999","5"]],
					"asks":[["3002","4"],["3001","6"]]}}`)
			default:
				fmt.Fprint(w, `{"code":109400,"msg":"symbol not exist"}`)
			}
		}
	})

	b := NewBingX(Config{BaseURL: srv.URL})
	markets, err := b.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if len(markets) != 1 {
		t.Fatalf("got %d markets, want 1", len(markets))
	}
	if m := markets["ETH/USDT:USDT"]; !m.Linear || m.ContractSize != 1 {
		t.Errorf("market = %+v", m)
	}

	book, err := b.FetchOrderBook(context.Background(), "ETH/USDT:USDT", 50)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if book.BestAsk() != 3001 || book.Asks[1].Price != 3002 {
		t.Errorf("asks not best-first: %+v", book.Asks)
	}
	if book.BestBid() != 3000 {
		t.Errorf("best bid = %v", book.BestBid())
	}

	_, err = b.FetchOrderBook(context.Background(), "GONE/USDT:USDT", 50)
	if !IsSymbolNotFound(err) {
		t.Errorf("expected symbol not found, got %v", err)
	}
	if Classify(err) != KindRejected {
		t.Errorf("Classify() = %v, want rejected", Classify(err))
	}
}

// ─── Hyperliquid ─────────────────────────────────────────────────────────────

const hlBookJSON = `{"coin":"BTC","time":1700000000000,"levels":[
	[{"px":"50000","sz":"2.5","n":3},{"px":"49990","sz":"1","n":1}],
	[{"px":"50010","sz":"4","n":2}]]}`

func TestHyperliquidREST(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		switch req["type"] {
		case "meta":
			fmt.Fprint(w, `{"universe":[{"name":"BTC","szDecimals":5,"maxLeverage":50},{"name":"OLD","isDelisted":true}]}`)
		case "l2Book":
			if req["coin"] != "BTC" {
				fmt.Fprint(w, `null`)
				return
			}
			fmt.Fprint(w, hlBookJSON)
		}
	})

	h := NewHyperliquid(Config{BaseURL: srv.URL})
	markets, err := h.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	if _, ok := markets["BTC-USD"]; !ok || len(markets) != 1 {
		t.Fatalf("markets = %v", markets)
	}

	book, err := h.FetchOrderBook(context.Background(), "BTC-USD", 1)
	if err != nil {
		t.Fatalf("FetchOrderBook: %v", err)
	}
	if len(book.Bids) != 1 || book.BestBid() != 50000 || book.Bids[0].Amount != 2.5 {
		t.Errorf("bids = %+v", book.Bids)
	}

	if _, err := h.FetchOrderBook(context.Background(), "NOPE-USD", 20); !IsSymbolNotFound(err) {
		t.Errorf("expected symbol not found, got %v", err)
	}
}

func TestHyperliquidWatchOrderBook(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Method       string            `json:"method"`
			Subscription map[string]string `json:"subscription"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub.Method != "subscribe" || sub.Subscription["coin"] != "BTC" {
			t.Errorf("subscribe = %+v", sub)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"subscriptionResponse","data":{}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"l2Book","data":`+hlBookJSON+`}`))
		// Dropping the connection ends the subscription with a network error.
	})

	h := NewHyperliquid(Config{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Timeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	books, errs := h.WatchOrderBook(ctx, "BTC-USD")
	var got int
	for book := range books {
		got++
		if book.Symbol != "BTC-USD" || book.BestAsk() != 50010 {
			t.Errorf("book = %+v", book)
		}
	}
	if got != 1 {
		t.Errorf("received %d books, want 1", got)
	}
	err := <-errs
	if err == nil {
		t.Fatal("expected terminal stream error")
	}
	if Classify(err) != KindNetworkTransient {
		t.Errorf("Classify() = %v, want network", Classify(err))
	}
}

func TestHyperliquidWatchStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	h := NewHyperliquid(Config{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http"), Timeout: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	books, errs := h.WatchOrderBook(ctx, "ETH-USD")
	time.AfterFunc(100*time.Millisecond, cancel)

	select {
	case _, ok := <-books:
		if ok {
			t.Fatal("unexpected book")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
	if err := <-errs; err != nil {
		t.Errorf("cancelled stream reported %v", err)
	}
}
