// Package indicator computes technical indicators over candle windows.
//
// The strategy re-runs the computation over the full fetched window on
// every poll rather than updating incrementally; windows are a few days
// of intraday bars, so the cost is negligible and the code stays pure.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// ErrMissingClose is returned when a candle carries no usable close price.
var ErrMissingClose = errors.New("indicator: candle missing close price")

// Bar is a candle annotated with the two smoothed averages.
type Bar struct {
	model.Candle
	EMAFast float64 `json:"ema_fast"`
	EMASlow float64 `json:"ema_slow"`
}

// Series is an ordered candle sequence with EMAs attached per bar.
type Series []Bar

// WithEMA annotates candles with exponential moving averages of the two
// given spans. The recurrence is
//
//	ema[0] = close[0]
//	ema[i] = close[i]*α + ema[i-1]*(1-α),  α = 2/(span+1)
//
// i.e. each value depends only on prior values and the current close.
func WithEMA(candles []model.Candle, fastSpan, slowSpan int) (Series, error) {
	if len(candles) == 0 {
		return nil, nil
	}
	fast, err := ema(candles, fastSpan)
	if err != nil {
		return nil, err
	}
	slow, err := ema(candles, slowSpan)
	if err != nil {
		return nil, err
	}

	out := make(Series, len(candles))
	for i, c := range candles {
		out[i] = Bar{Candle: c, EMAFast: fast[i], EMASlow: slow[i]}
	}
	return out, nil
}

func ema(candles []model.Candle, span int) ([]float64, error) {
	if span <= 0 {
		return nil, fmt.Errorf("indicator: invalid EMA span %d", span)
	}
	alpha := 2.0 / float64(span+1)

	out := make([]float64, len(candles))
	for i, c := range candles {
		if math.IsNaN(c.Close) {
			return nil, fmt.Errorf("%w (bar %d at %s)", ErrMissingClose, i, c.TS.Format("15:04:05"))
		}
		if i == 0 {
			out[0] = c.Close
			continue
		}
		out[i] = c.Close*alpha + out[i-1]*(1-alpha)
	}
	return out, nil
}
