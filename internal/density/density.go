// Package density detects clusters of resting liquidity near the mid price.
package density

import (
	"time"

	"github.com/rewired-gh/densityscanner/internal/models"
)

// Params controls a single Compute call.
type Params struct {
	// MinSize is the notional (quote currency) a cluster must reach.
	MinSize float64
	// DistancePct caps how far from mid a level may sit, in percent.
	DistancePct float64
	// ContractSize converts level amounts into base-asset units.
	// Non-positive values are treated as 1.0.
	ContractSize float64
}

// Compute walks each side of the book from the best level outward and
// returns at most one alert per side: the nearest cluster whose cumulative
// notional reaches MinSize before a level falls outside the distance cap.
//
// The result depends only on the arguments.
func Compute(exchange, symbol string, book *models.OrderBook, p Params, now time.Time) []models.DensityAlert {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return nil
	}
	mid := book.Mid()
	if mid <= 0 {
		return nil
	}

	cs := p.ContractSize
	if cs <= 0 {
		cs = 1.0
	}
	maxDistance := mid * (p.DistancePct / 100)

	var alerts []models.DensityAlert
	for _, side := range []models.Side{models.SideBid, models.SideAsk} {
		levels := book.Bids
		if side == models.SideAsk {
			levels = book.Asks
		}
		volume, vwap, ok := walk(levels, side, mid, maxDistance, p.MinSize, cs)
		if !ok {
			continue
		}
		alerts = append(alerts, models.DensityAlert{
			Exchange:    exchange,
			Symbol:      symbol,
			Side:        side,
			Volume:      volume,
			Price:       vwap,
			DistancePct: distanceFromMid(side, mid, vwap),
			Timestamp:   now,
		})
	}
	return alerts
}

// walk accumulates notional level by level and stops at the first level that
// pushes the total to minSize, or at the first level beyond maxDistance.
func walk(levels []models.PriceLevel, side models.Side, mid, maxDistance, minSize, contractSize float64) (volume, vwap float64, ok bool) {
	var weighted float64
	for _, lvl := range levels {
		distance := lvl.Price - mid
		if side == models.SideBid {
			distance = mid - lvl.Price
		}
		if distance > maxDistance {
			break
		}
		if lvl.Price <= 0 || lvl.Amount <= 0 {
			continue
		}

		quote := lvl.Price * lvl.Amount * contractSize
		volume += quote
		weighted += lvl.Price * quote

		if volume >= minSize {
			vwap = lvl.Price
			if volume > 0 {
				vwap = weighted / volume
			}
			return volume, vwap, true
		}
	}
	return 0, 0, false
}

func distanceFromMid(side models.Side, mid, price float64) float64 {
	if side == models.SideBid {
		return (mid - price) / mid * 100
	}
	return (price - mid) / mid * 100
}
