package model

import "time"

// Candle represents one OHLC bar for a single instrument.
// Prices are in rupees (float64), as returned by the Kite historical API.
// The last candle of a fetched window is the currently forming bar.
type Candle struct {
	TS    time.Time `json:"ts"` // bucket open time (IST)
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Timeframe is a supported candle interval.
type Timeframe string

const (
	TF3Min  Timeframe = "3minute"
	TF5Min  Timeframe = "5minute"
	TF15Min Timeframe = "15minute"
)

// ParseTimeframe maps the short user-facing form ("3m"/"5m"/"15m") to a
// broker interval. ok is false for anything else.
func ParseTimeframe(s string) (Timeframe, bool) {
	switch s {
	case "3m":
		return TF3Min, true
	case "5m":
		return TF5Min, true
	case "15m":
		return TF15Min, true
	}
	return "", false
}
