package models

import (
	"errors"
	"time"
)

// Side identifies the book side a density sits on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// DensityAlert describes one detected cluster of resting liquidity.
// Values are treated as immutable; use WithLifetime and WithID to derive
// annotated copies.
type DensityAlert struct {
	ID       string
	Exchange string
	Symbol   string
	Side     Side

	// Volume is quote-currency notional, Price the volume-weighted average
	// price of the included levels.
	Volume      float64
	Price       float64
	DistancePct float64

	Timestamp       time.Time
	LifetimeSeconds int
}

// WithLifetime returns a copy annotated with the given lifetime.
func (a DensityAlert) WithLifetime(seconds int) DensityAlert {
	if seconds < 0 {
		seconds = 0
	}
	a.LifetimeSeconds = seconds
	return a
}

// WithID returns a copy carrying the given delivery ID.
func (a DensityAlert) WithID(id string) DensityAlert {
	a.ID = id
	return a
}

// Validate checks alert field constraints.
func (a *DensityAlert) Validate() error {
	if a.Exchange == "" {
		return errors.New("alert exchange must not be empty")
	}
	if a.Symbol == "" {
		return errors.New("alert symbol must not be empty")
	}
	if a.Side != SideBid && a.Side != SideAsk {
		return errors.New("alert side must be bid or ask")
	}
	if a.Volume < 0 {
		return errors.New("alert volume must not be negative")
	}
	if a.Price <= 0 {
		return errors.New("alert price must be positive")
	}
	if a.LifetimeSeconds < 0 {
		return errors.New("alert lifetime must not be negative")
	}
	return nil
}
