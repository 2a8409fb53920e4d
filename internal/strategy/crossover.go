// Package strategy evaluates indicator series for entry signals.
package strategy

import (
	"math"

	"github.com/Bmittal0901/SensexAlgo/internal/indicator"
)

// EMA spans used by the crossover strategy.
const (
	FastSpan = 20
	SlowSpan = 50

	// MinBars is the minimum window length before signals are considered;
	// below this the slow EMA has not stabilised.
	MinBars = 51
)

// Signal is the outcome of a detector evaluation.
type Signal int

const (
	SignalNone Signal = iota
	SignalBullishCrossover
)

func (s Signal) String() string {
	if s == SignalBullishCrossover {
		return "bullish_crossover"
	}
	return "none"
}

// BullishCrossover inspects the two most recently closed bars of the
// series. The last bar is the still-forming candle and is always
// excluded, so the pair examined is series[len-3] (prev) and
// series[len-2] (curr). The signal fires iff the fast EMA was at or
// below the slow EMA on prev and strictly above it on curr: a strict
// upward cross, inclusive on the losing side so repeated equality
// cannot re-fire.
//
// Returns SignalNone when the series is shorter than MinBars or any of
// the four EMA values is NaN (cannot evaluate).
func BullishCrossover(series indicator.Series) Signal {
	if len(series) < MinBars {
		return SignalNone
	}

	prev := series[len(series)-3]
	curr := series[len(series)-2]

	if math.IsNaN(prev.EMAFast) || math.IsNaN(prev.EMASlow) ||
		math.IsNaN(curr.EMAFast) || math.IsNaN(curr.EMASlow) {
		return SignalNone
	}

	if prev.EMAFast <= prev.EMASlow && curr.EMAFast > curr.EMASlow {
		return SignalBullishCrossover
	}
	return SignalNone
}
