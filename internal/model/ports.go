package model

import (
	"context"
	"time"
)

// ── Broker Port Interfaces ──
// These interfaces decouple the decision loop from the concrete broker
// client (Kite Connect). The engine and its tests depend only on these.

// CandleSource fetches historical OHLC bars for an instrument.
type CandleSource interface {
	// Candles returns the bars for the last lookbackDays, oldest first.
	// An empty slice means "no data yet" and is not an error.
	Candles(ctx context.Context, token uint32, tf Timeframe, lookbackDays int) ([]Candle, error)
}

// QuoteSource fetches the last traded price for a trading symbol.
type QuoteSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// OrderPlacer submits a fire-and-forget market order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, symbol string, qty int, side Side) (orderID string, err error)
}

// ContractResolver maps a strike and option type to a tradeable contract.
type ContractResolver interface {
	// ResolveContract selects, among all contracts matching strike and
	// optType, the one with the nearest expiry on or after ref.
	ResolveContract(ctx context.Context, strike float64, optType OptionType, ref time.Time) (Contract, error)
}
