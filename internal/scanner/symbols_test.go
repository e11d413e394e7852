package scanner

import (
	"reflect"
	"testing"

	"github.com/rewired-gh/densityscanner/internal/models"
)

func TestFilterMarkets(t *testing.T) {
	quotes := []string{"USDT", "USD", "USDC"}
	markets := map[string]models.Market{
		"BTC/USDT":      {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT"},
		"ETH/EUR":       {Symbol: "ETH/EUR", Base: "ETH", Quote: "EUR"},
		"SOL/USDT:USDT": {Symbol: "SOL/USDT:USDT", Base: "SOL", Quote: "USDT", Contract: true, Linear: true},
		"XRP/USD:XRP":   {Symbol: "XRP/USD:XRP", Base: "XRP", Quote: "USD", Contract: true},
		"ADA/USDT:USDT": {Symbol: "ADA/USDT:USDT", Base: "ADA", Quote: "USDT", Contract: true, Linear: false},
		"DOGE-USD":      {Symbol: "DOGE-USD", Base: "DOGE", Quote: "USD", Contract: true, Linear: true},
		"XYZ-EUR":       {Symbol: "XYZ-EUR", Base: "XYZ", Quote: "EUR", Contract: true, Linear: true},
	}

	got := FilterMarkets(markets, quotes)
	want := []string{"BTC/USDT", "DOGE-USD", "SOL/USDT:USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FilterMarkets() = %v, want %v", got, want)
	}
}

func TestHasAllowedQuote(t *testing.T) {
	quotes := []string{"USDT", "USD"}
	tests := []struct {
		symbol string
		want   bool
	}{
		{"BTC/USDT", true},
		{"btc/usdt", true},
		{"ETH/USDT:USDT", true},
		{"SOL-USD", true},
		{"ETH/BTC", false},
		{"EUR-CHF", false},
	}
	for _, tt := range tests {
		if got := HasAllowedQuote(tt.symbol, quotes); got != tt.want {
			t.Errorf("HasAllowedQuote(%q) = %v, want %v", tt.symbol, got, tt.want)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	symbols := []string{"ABC/USDT", "ETH/USDT", "ZZZ/USDT", "btc/USDT", "DEF-USD", "SOL-USD"}
	got := SortByPriority(symbols, []string{"BTC", "ETH", "SOL"})
	want := []string{"ETH/USDT", "btc/USDT", "SOL-USD", "ABC/USDT", "ZZZ/USDT", "DEF-USD"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortByPriority() = %v, want %v", got, want)
	}
}

func TestPrioritySymbols(t *testing.T) {
	symbols := []string{"BTC/USDT", "ABC/USDT", "ETH/USDT", "SOL/USDT", "XRP/USDT"}
	priority := []string{"BTC", "ETH", "SOL", "XRP"}

	got, truncated := PrioritySymbols(symbols, priority, 30)
	if truncated || len(got) != 4 {
		t.Errorf("uncapped: got %v truncated=%v", got, truncated)
	}

	got, truncated = PrioritySymbols(symbols, priority, 2)
	if !truncated || !reflect.DeepEqual(got, []string{"BTC/USDT", "ETH/USDT"}) {
		t.Errorf("capped: got %v truncated=%v", got, truncated)
	}
}

func TestIsTestToken(t *testing.T) {
	prefixes := []string{"TEST", "XYZ"}
	patterns := []string{"DEMO", "SANDBOX", "MOCK"}
	tests := []struct {
		base string
		want bool
	}{
		{"TESTCOIN", true},
		{"xyz100", true},
		{"FOODEMO", true},
		{"MOCKUSD", true},
		{"BTC", false},
		{"LATEST", false},
	}
	for _, tt := range tests {
		if got := IsTestToken(tt.base, prefixes, patterns); got != tt.want {
			t.Errorf("IsTestToken(%q) = %v, want %v", tt.base, got, tt.want)
		}
	}
}

// ─── Contract size ───────────────────────────────────────────────────────────

func TestContractSize(t *testing.T) {
	tests := []struct {
		name   string
		market models.Market
		want   float64
		wantOK bool
	}{
		{"spot", models.Market{ContractSize: 5}, 1, true},
		{"declared", models.Market{Contract: true, ContractSize: 0.001}, 0.001, true},
		{"multiplier fallback", models.Market{Contract: true, Info: map[string]string{"multiplier": "10"}}, 10, true},
		{"lot size fallback", models.Market{Contract: true, Info: map[string]string{"lotSize": "0.01"}}, 0.01, true},
		{"negative", models.Market{Contract: true, ContractSize: -1}, 1, false},
		{"unreadable", models.Market{Contract: true, Info: map[string]string{"multiplier": "n/a"}}, 1, false},
		{"absent", models.Market{Contract: true}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ContractSize(tt.market)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ContractSize() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestContractResolver(t *testing.T) {
	r := NewContractResolver()
	markets := map[string]models.Market{
		"BTC/USDT:USDT": {Symbol: "BTC/USDT:USDT", Contract: true, ContractSize: 0.001},
	}

	if got := r.Cached("kucoin_futures", "BTC/USDT:USDT"); got != 1.0 {
		t.Errorf("Cached before resolve = %v, want 1.0", got)
	}
	if got := r.Resolve("kucoin_futures", "BTC/USDT:USDT", markets); got != 0.001 {
		t.Errorf("Resolve() = %v, want 0.001", got)
	}
	// Cached entries win over changed metadata.
	if got := r.Resolve("kucoin_futures", "BTC/USDT:USDT", nil); got != 0.001 {
		t.Errorf("second Resolve() = %v, want cached 0.001", got)
	}
	if got := r.Resolve("kucoin_futures", "ETH/USDT:USDT", markets); got != 1.0 {
		t.Errorf("unknown market resolved to %v, want 1.0", got)
	}
	r.Resolve("bingx", "BTC/USDT:USDT", markets)

	if n := r.Invalidate("kucoin_futures"); n != 2 {
		t.Errorf("Invalidate removed %d entries, want 2", n)
	}
	if got := r.Cached("kucoin_futures", "BTC/USDT:USDT"); got != 1.0 {
		t.Errorf("Cached after invalidate = %v, want 1.0", got)
	}
	if got := r.Cached("bingx", "BTC/USDT:USDT"); got != 0.001 {
		t.Errorf("other exchange lost its entry: %v", got)
	}
}
