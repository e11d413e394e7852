package models

import (
	"testing"
	"time"
)

func TestMarketValidate(t *testing.T) {
	tests := []struct {
		name    string
		market  Market
		wantErr bool
	}{
		{
			name:   "valid spot market",
			market: Market{Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT"},
		},
		{
			name: "valid linear contract",
			market: Market{
				Symbol: "BTC/USDT:USDT", Base: "BTC", Quote: "USDT",
				Contract: true, Linear: true, ContractSize: 0.001,
			},
		},
		{
			name:    "empty symbol",
			market:  Market{Base: "BTC", Quote: "USDT"},
			wantErr: true,
		},
		{
			name:    "empty quote",
			market:  Market{Symbol: "BTC/USDT", Base: "BTC"},
			wantErr: true,
		},
		{
			name:    "negative contract size",
			market:  Market{Symbol: "BTC/USDT:USDT", Base: "BTC", Quote: "USDT", Contract: true, ContractSize: -1},
			wantErr: true,
		},
		{
			name:    "settle suffix on spot market",
			market:  Market{Symbol: "BTC/USDT:USDT", Base: "BTC", Quote: "USDT"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.market.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Market.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDensityAlertValidate(t *testing.T) {
	valid := DensityAlert{
		Exchange:  "kucoin_spot",
		Symbol:    "BTC/USDT",
		Side:      SideBid,
		Volume:    1_200_000,
		Price:     49_950,
		Timestamp: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid alert rejected: %v", err)
	}

	bad := valid
	bad.Side = "middle"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown side")
	}

	bad = valid
	bad.Volume = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative volume")
	}

	bad = valid
	bad.Price = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero price")
	}
}

func TestDensityAlertWithLifetimeCopies(t *testing.T) {
	a := DensityAlert{Exchange: "bingx", Symbol: "ETH/USDT:USDT", Side: SideAsk, Volume: 1, Price: 1}
	b := a.WithLifetime(45)
	if a.LifetimeSeconds != 0 {
		t.Errorf("original mutated: lifetime = %d", a.LifetimeSeconds)
	}
	if b.LifetimeSeconds != 45 {
		t.Errorf("copy lifetime = %d, want 45", b.LifetimeSeconds)
	}
	if c := a.WithLifetime(-5); c.LifetimeSeconds != 0 {
		t.Errorf("negative lifetime not clamped: %d", c.LifetimeSeconds)
	}
}

func TestBaseAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTC/USDT", "BTC"},
		{"ETH/USDT:USDT", "ETH"},
		{"SOL-USD", "SOL"},
		{"kPEPE-USD", "kPEPE"},
		{"BTCUSDT", "BTCUSDT"},
	}
	for _, tt := range tests {
		if got := BaseAsset(tt.symbol); got != tt.want {
			t.Errorf("BaseAsset(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestOrderBookMid(t *testing.T) {
	book := &OrderBook{
		Bids: []PriceLevel{{Price: 100, Amount: 1}},
		Asks: []PriceLevel{{Price: 102, Amount: 1}},
	}
	if got := book.Mid(); got != 101 {
		t.Errorf("Mid() = %v, want 101", got)
	}
	empty := &OrderBook{Bids: book.Bids}
	if got := empty.Mid(); got != 0 {
		t.Errorf("Mid() with empty asks = %v, want 0", got)
	}
	var nilBook *OrderBook
	if got := nilBook.BestBid(); got != 0 {
		t.Errorf("nil BestBid() = %v, want 0", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size float64
		want string
	}{
		{356_650, "$356.65K"},
		{1_230_000, "$1.23M"},
		{1_050_000_000, "$1.05B"},
		{999, "$1.00K"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.want {
			t.Errorf("FormatSize(%v) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestFormatLifetime(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{150, "2m 30s"},
		{3900, "1h 5m"},
	}
	for _, tt := range tests {
		if got := FormatLifetime(tt.seconds); got != tt.want {
			t.Errorf("FormatLifetime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestSizeEmoji(t *testing.T) {
	tests := []struct {
		size float64
		want string
	}{
		{100_000, "📊"},
		{600_000, "🔥"},
		{2_000_000, "🔥🔥"},
		{7_000_000, "💎"},
		{30_000_000, "💎💎💎"},
	}
	for _, tt := range tests {
		if got := SizeEmoji(tt.size); got != tt.want {
			t.Errorf("SizeEmoji(%v) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
