// Package broker adapts the Kite Connect client to the port interfaces
// the decision loop consumes, and resolves strikes into tradeable
// option contracts from the exchange contract master.
package broker

import (
	"fmt"
	"sort"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// underlying is the index whose option chain the bot trades.
const underlying = "SENSEX"

// ResolveNearestExpiry selects, among the instruments matching strike
// and optType on the SENSEX chain, the contract whose expiry is the
// nearest on or after ref's date. Expired and non-matching rows are
// skipped. Returns an error when no contract qualifies.
func ResolveNearestExpiry(instruments []model.Instrument, strike float64, optType model.OptionType, ref time.Time) (model.Contract, error) {
	refDay := ref.In(markethours.IST)
	refDate := time.Date(refDay.Year(), refDay.Month(), refDay.Day(), 0, 0, 0, 0, markethours.IST)

	var matches []model.Instrument
	for _, in := range instruments {
		if in.Name != underlying {
			continue
		}
		if in.InstrumentType != optType {
			continue
		}
		if in.Strike != strike {
			continue
		}
		if in.Expiry.Before(refDate) {
			continue
		}
		matches = append(matches, in)
	}
	if len(matches) == 0 {
		return model.Contract{}, fmt.Errorf("no %s %s contract at strike %.0f expiring on or after %s",
			underlying, optType, strike, refDate.Format("2006-01-02"))
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Expiry.Before(matches[j].Expiry)
	})
	best := matches[0]

	return model.Contract{
		Symbol: best.TradingSymbol,
		Token:  best.Token,
		Expiry: best.Expiry,
	}, nil
}
