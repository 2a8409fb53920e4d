package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// Sensex option contracts trade in lots of 20.
const DefaultLotSize = 20

// Config is the immutable per-run strategy configuration.
type Config struct {
	CallStrike float64 `json:"call_strike"`
	PutStrike  float64 `json:"put_strike"`
	Lots       int     `json:"lots"`
	LotSize    int     `json:"lot_size"` // 0 → DefaultLotSize

	ProfitPoints   float64 `json:"profit_points"`
	StoplossPoints float64 `json:"stoploss_points"`

	Timeframe    model.Timeframe `json:"timeframe"`
	LookbackDays int             `json:"lookback_days"` // 0 → 3

	// DryRun makes order placement a logging no-op; position tracking
	// and PnL are identical in both modes.
	DryRun bool `json:"dry_run"`

	// Poll cadence. Zero values take the production defaults below;
	// tests shrink them to milliseconds.
	ClosedPoll   time.Duration `json:"-"` // market closed / no data
	BoundaryPoll time.Duration `json:"-"` // candle boundary unchanged
	ExitPoll     time.Duration `json:"-"` // exit-monitoring tick
	ErrorBackoff time.Duration `json:"-"` // after a failed iteration
}

// Validate rejects configurations that must never start a loop.
func (c Config) Validate() error {
	if _, ok := model.ParseTimeframe(string(c.Timeframe)); !ok {
		// Accept canonical broker intervals too.
		switch c.Timeframe {
		case model.TF3Min, model.TF5Min, model.TF15Min:
		default:
			return fmt.Errorf("invalid timeframe %q (want 3m, 5m or 15m)", c.Timeframe)
		}
	}
	if c.Lots <= 0 {
		return errors.New("lots must be >= 1")
	}
	if c.LotSize < 0 {
		return errors.New("lot size must be positive")
	}
	if c.ProfitPoints <= 0 || c.StoplossPoints <= 0 {
		return errors.New("profit/stoploss points must be positive")
	}
	if c.CallStrike <= 0 || c.PutStrike <= 0 {
		return errors.New("strikes must be positive")
	}
	return nil
}

// Qty is the order quantity: lots × lot size.
func (c Config) Qty() int {
	ls := c.LotSize
	if ls == 0 {
		ls = DefaultLotSize
	}
	return c.Lots * ls
}

// withDefaults fills unset optional fields.
func (c Config) withDefaults() Config {
	if tf, ok := model.ParseTimeframe(string(c.Timeframe)); ok {
		c.Timeframe = tf
	}
	if c.LotSize == 0 {
		c.LotSize = DefaultLotSize
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 3
	}
	if c.ClosedPoll == 0 {
		c.ClosedPoll = 60 * time.Second
	}
	if c.BoundaryPoll == 0 {
		c.BoundaryPoll = 10 * time.Second
	}
	if c.ExitPoll == 0 {
		c.ExitPoll = 2 * time.Second
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = 10 * time.Second
	}
	return c
}
