package model

import "time"

// OptionType distinguishes the two legs of the strategy.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Instrument is one row of the broker's contract master dump.
type Instrument struct {
	Token          uint32     `json:"instrument_token"`
	TradingSymbol  string     `json:"tradingsymbol"`
	Name           string     `json:"name"`
	Exchange       string     `json:"exchange"`
	Expiry         time.Time  `json:"expiry"`
	Strike         float64    `json:"strike"`
	InstrumentType OptionType `json:"instrument_type"`
	LotSize        int        `json:"lot_size"`
	TickSize       float64    `json:"tick_size"`
}

// Contract is a resolved, tradeable option contract for one leg.
type Contract struct {
	Symbol string    `json:"symbol"`
	Token  uint32    `json:"token"`
	Expiry time.Time `json:"expiry"`
}
