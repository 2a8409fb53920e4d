package kiteconnect

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Candle is one historical OHLC bar.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

const candleTimeLayout = "2006-01-02T15:04:05-0700"

// HistoricalCandles fetches intraday bars for an instrument token over
// the trailing lookbackDays, oldest first. interval uses Kite naming,
// e.g. "3minute", "5minute", "15minute".
func (c *Client) HistoricalCandles(ctx context.Context, token uint32, interval string, lookbackDays int) ([]Candle, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -lookbackDays)

	params := url.Values{}
	params.Set("from", from.Format("2006-01-02 15:04:05"))
	params.Set("to", now.Format("2006-01-02 15:04:05"))

	path := fmt.Sprintf(routes["market.historic"], token, interval)
	data, err := c.doJSON(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}

	// Candles arrive as heterogeneous arrays: [ts, o, h, l, c, volume].
	var payload struct {
		Candles [][]json.RawMessage `json:"candles"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	out := make([]Candle, 0, len(payload.Candles))
	for _, row := range payload.Candles {
		if len(row) < 5 {
			continue
		}
		var tsRaw string
		if err := json.Unmarshal(row[0], &tsRaw); err != nil {
			return nil, fmt.Errorf("kiteconnect: bad candle timestamp: %w", err)
		}
		ts, err := time.Parse(candleTimeLayout, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("kiteconnect: bad candle timestamp %q: %w", tsRaw, err)
		}
		cd := Candle{Timestamp: ts}
		if err := json.Unmarshal(row[1], &cd.Open); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[2], &cd.High); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[3], &cd.Low); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(row[4], &cd.Close); err != nil {
			return nil, err
		}
		if len(row) > 5 {
			_ = json.Unmarshal(row[5], &cd.Volume)
		}
		out = append(out, cd)
	}
	return out, nil
}

// LTP returns the last traded price for an exchange-qualified symbol,
// e.g. "BFO:SENSEX2590281000CE".
func (c *Client) LTP(ctx context.Context, instrument string) (float64, error) {
	params := url.Values{}
	params.Set("i", instrument)

	data, err := c.doJSON(ctx, http.MethodGet, routes["market.ltp"], params)
	if err != nil {
		return 0, err
	}

	var quotes map[string]struct {
		LastPrice float64 `json:"last_price"`
	}
	if err := json.Unmarshal(data, &quotes); err != nil {
		return 0, err
	}
	q, ok := quotes[instrument]
	if !ok {
		return 0, fmt.Errorf("kiteconnect: no quote for %s", instrument)
	}
	return q.LastPrice, nil
}

// InstrumentRow is one row of the exchange instruments dump.
type InstrumentRow struct {
	InstrumentToken uint32
	TradingSymbol   string
	Name            string
	Expiry          string // yyyy-mm-dd, empty for non-derivatives
	Strike          float64
	InstrumentType  string // CE, PE, FUT, EQ
	Segment         string
	Exchange        string
}

// Instruments downloads the contract master for an exchange (e.g.
// "BFO") and parses the CSV dump.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]InstrumentRow, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, fmt.Sprintf(routes["instruments"], exchange))
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(string(raw)))
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: parse instruments csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	col := map[string]int{}
	for i, name := range records[0] {
		col[name] = i
	}
	for _, need := range []string{"instrument_token", "tradingsymbol", "expiry", "strike", "instrument_type"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("kiteconnect: instruments csv missing column %q", need)
		}
	}

	out := make([]InstrumentRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		token, err := strconv.ParseUint(rec[col["instrument_token"]], 10, 32)
		if err != nil {
			continue
		}
		strike, _ := strconv.ParseFloat(rec[col["strike"]], 64)
		row := InstrumentRow{
			InstrumentToken: uint32(token),
			TradingSymbol:   rec[col["tradingsymbol"]],
			Expiry:          rec[col["expiry"]],
			Strike:          strike,
			InstrumentType:  rec[col["instrument_type"]],
		}
		if i, ok := col["name"]; ok {
			row.Name = rec[i]
		}
		if i, ok := col["segment"]; ok {
			row.Segment = rec[i]
		}
		if i, ok := col["exchange"]; ok {
			row.Exchange = rec[i]
		}
		out = append(out, row)
	}
	return out, nil
}

// OrderParams describes a regular order.
type OrderParams struct {
	Exchange        string // BFO
	TradingSymbol   string
	TransactionType string // BUY or SELL
	Quantity        int
	Product         string // MIS, NRML
	OrderType       string // MARKET, LIMIT
	Price           float64
	Validity        string
	Tag             string
}

// PlaceOrder submits a regular order and returns the order id.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	form := url.Values{}
	form.Set("exchange", p.Exchange)
	form.Set("tradingsymbol", p.TradingSymbol)
	form.Set("transaction_type", p.TransactionType)
	form.Set("quantity", strconv.Itoa(p.Quantity))
	form.Set("product", p.Product)
	form.Set("order_type", p.OrderType)
	if p.OrderType == "LIMIT" {
		form.Set("price", strconv.FormatFloat(p.Price, 'f', 2, 64))
	}
	if p.Validity != "" {
		form.Set("validity", p.Validity)
	}
	if p.Tag != "" {
		form.Set("tag", p.Tag)
	}

	data, err := c.doJSON(ctx, http.MethodPost, routes["orders.regular"], form)
	if err != nil {
		return "", err
	}
	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}
	return resp.OrderID, nil
}
