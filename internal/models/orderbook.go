package models

import "time"

// PriceLevel is a single resting price/quantity pair. Quantity is in venue
// units (contracts for derivative markets).
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook is a normalized snapshot: bids descending by price, asks ascending.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (b *OrderBook) BestBid() float64 {
	if b == nil || len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (b *OrderBook) BestAsk() float64 {
	if b == nil || len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Mid returns the average of best bid and best ask, or 0 if either is missing.
func (b *OrderBook) Mid() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}
