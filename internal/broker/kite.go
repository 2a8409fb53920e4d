package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/model"
	"github.com/Bmittal0901/SensexAlgo/pkg/kiteconnect"
)

const (
	exchange = "BFO" // BSE derivatives, where Sensex options trade
	product  = "MIS" // intraday
)

// InstrumentCache caches the daily contract master. A nil cache
// disables caching and every resolution hits the broker dump.
type InstrumentCache interface {
	CacheInstruments(ctx context.Context, exchange string, instruments []model.Instrument) error
	CachedInstruments(ctx context.Context, exchange string) ([]model.Instrument, bool)
}

// Kite implements the engine's broker ports on top of Kite Connect.
type Kite struct {
	client *kiteconnect.Client
	cache  InstrumentCache
}

// NewKite wraps a logged-in Kite Connect client. cache may be nil.
func NewKite(client *kiteconnect.Client, cache InstrumentCache) *Kite {
	return &Kite{client: client, cache: cache}
}

// Candles fetches historical bars for an instrument token.
func (k *Kite) Candles(ctx context.Context, token uint32, tf model.Timeframe, lookbackDays int) ([]model.Candle, error) {
	raw, err := k.client.HistoricalCandles(ctx, token, string(tf), lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("historical %d %s: %w", token, tf, err)
	}
	out := make([]model.Candle, len(raw))
	for i, c := range raw {
		out[i] = model.Candle{
			TS:    c.Timestamp,
			Open:  c.Open,
			High:  c.High,
			Low:   c.Low,
			Close: c.Close,
		}
	}
	return out, nil
}

// LastPrice returns the LTP for a trading symbol on the options segment.
func (k *Kite) LastPrice(ctx context.Context, symbol string) (float64, error) {
	px, err := k.client.LTP(ctx, exchange+":"+symbol)
	if err != nil {
		return 0, fmt.Errorf("ltp %s: %w", symbol, err)
	}
	return px, nil
}

// PlaceOrder submits an intraday market order.
func (k *Kite) PlaceOrder(ctx context.Context, symbol string, qty int, side model.Side) (string, error) {
	id, err := k.client.PlaceOrder(ctx, kiteconnect.OrderParams{
		Exchange:        exchange,
		TradingSymbol:   symbol,
		TransactionType: string(side),
		Quantity:        qty,
		Product:         product,
		OrderType:       "MARKET",
		Tag:             "algobot",
	})
	if err != nil {
		return "", fmt.Errorf("order %s %s x%d: %w", side, symbol, qty, err)
	}
	return id, nil
}

// ResolveContract maps a strike and option type to the nearest-expiry
// contract, using the cached contract master when available.
func (k *Kite) ResolveContract(ctx context.Context, strike float64, optType model.OptionType, ref time.Time) (model.Contract, error) {
	instruments, err := k.instruments(ctx)
	if err != nil {
		return model.Contract{}, err
	}
	return ResolveNearestExpiry(instruments, strike, optType, ref)
}

func (k *Kite) instruments(ctx context.Context) ([]model.Instrument, error) {
	if k.cache != nil {
		if cached, ok := k.cache.CachedInstruments(ctx, exchange); ok {
			return cached, nil
		}
	}

	rows, err := k.client.Instruments(ctx, exchange)
	if err != nil {
		return nil, fmt.Errorf("instruments dump: %w", err)
	}

	out := make([]model.Instrument, 0, len(rows))
	for _, r := range rows {
		var expiry time.Time
		if r.Expiry != "" {
			expiry, err = time.Parse("2006-01-02", r.Expiry)
			if err != nil {
				continue
			}
		}
		out = append(out, model.Instrument{
			Token:          r.InstrumentToken,
			TradingSymbol:  r.TradingSymbol,
			Name:           r.Name,
			Exchange:       r.Exchange,
			Expiry:         expiry,
			Strike:         r.Strike,
			InstrumentType: model.OptionType(r.InstrumentType),
		})
	}

	if k.cache != nil {
		if err := k.cache.CacheInstruments(ctx, exchange, out); err != nil {
			log.Printf("[broker] instruments cache write failed: %v", err)
		}
	}
	return out, nil
}
