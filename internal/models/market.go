// Package models defines the core domain entities: markets, order books, and density alerts.
package models

import (
	"errors"
	"strings"
)

// Market describes one tradable symbol as reported by a venue's market metadata.
// Symbol uses one of the unified notations: "BASE/QUOTE" (spot),
// "BASE/QUOTE:SETTLE" (linear contracts) or "BASE-QUOTE" (dash pairs).
type Market struct {
	Symbol   string `json:"symbol"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Contract bool   `json:"contract"`
	Linear   bool   `json:"linear"`
	// ContractSize is zero when the venue did not declare one.
	ContractSize float64 `json:"contract_size"`
	// Info holds raw venue-specific metadata fields.
	Info map[string]string `json:"info,omitempty"`
}

// Validate checks market field constraints.
func (m *Market) Validate() error {
	if m.Symbol == "" {
		return errors.New("market symbol must not be empty")
	}
	if m.Base == "" {
		return errors.New("market base asset must not be empty")
	}
	if m.Quote == "" {
		return errors.New("market quote asset must not be empty")
	}
	if m.ContractSize < 0 {
		return errors.New("contract size must not be negative")
	}
	if strings.Contains(m.Symbol, ":") && !m.Contract {
		return errors.New("settle-suffixed symbol must be a contract market")
	}
	return nil
}

// BaseAsset extracts the base asset from BASE/QUOTE, BASE/QUOTE:SETTLE or
// BASE-QUOTE. A symbol in none of these notations is its own base.
func BaseAsset(symbol string) string {
	for _, sep := range []string{"/", ":", "-"} {
		if i := strings.Index(symbol, sep); i >= 0 {
			return symbol[:i]
		}
	}
	return symbol
}
