package exchange

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/densityscanner/internal/models"
)

// rawLevel is one [price, amount, ...] entry as sent by a venue. Values may
// be JSON strings or numbers; trailing fields are ignored.
type rawLevel []jsoniter.RawMessage

func parseLevels(raw []rawLevel) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(raw))
	for i, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("level %d: expected [price, amount], got %d fields", i, len(entry))
		}
		price, err := parseValue(entry[0])
		if err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		amount, err := parseValue(entry[1])
		if err != nil {
			return nil, fmt.Errorf("level %d amount: %w", i, err)
		}
		levels = append(levels, models.PriceLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

func parseValue(raw jsoniter.RawMessage) (float64, error) {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// parseDecimalString parses a decimal carried as a plain string, returning 0
// for empty input.
func parseDecimalString(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}
