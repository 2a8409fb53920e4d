package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/indicator"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// seriesWithEMAs builds a MinBars-long series and then overrides the EMA
// pair on the prev (-3) and curr (-2) bars. The forming bar (-1) keeps
// whatever the builder produced; the detector must never look at it.
func seriesWithEMAs(t *testing.T, prevFast, prevSlow, currFast, currSlow float64) indicator.Series {
	t.Helper()
	s := flatSeries(t, MinBars)
	s[len(s)-3].EMAFast, s[len(s)-3].EMASlow = prevFast, prevSlow
	s[len(s)-2].EMAFast, s[len(s)-2].EMASlow = currFast, currSlow
	return s
}

func flatSeries(t *testing.T, n int) indicator.Series {
	t.Helper()
	base := time.Date(2026, time.August, 24, 9, 15, 0, 0, time.UTC)
	cs := make([]model.Candle, n)
	for i := range cs {
		cs[i] = model.Candle{TS: base.Add(time.Duration(i) * time.Minute), Close: 100}
	}
	s, err := indicator.WithEMA(cs, FastSpan, SlowSpan)
	if err != nil {
		t.Fatalf("WithEMA: %v", err)
	}
	return s
}

func TestBullishCrossover_InsufficientHistory(t *testing.T) {
	for _, n := range []int{0, 1, 2, 10, MinBars - 1} {
		if n == 0 {
			if got := BullishCrossover(nil); got != SignalNone {
				t.Errorf("nil series: got %v", got)
			}
			continue
		}
		if got := BullishCrossover(flatSeries(t, n)); got != SignalNone {
			t.Errorf("%d bars: got %v, want none", n, got)
		}
	}
}

func TestBullishCrossover_Fires(t *testing.T) {
	cases := []struct {
		name           string
		pf, ps, cf, cs float64
		want           Signal
	}{
		{"strict cross", 99, 100, 101, 100, SignalBullishCrossover},
		{"cross from equality", 100, 100, 101, 100, SignalBullishCrossover},
		{"already above before", 101, 100, 102, 100, SignalNone},
		{"still below", 99, 100, 99.5, 100, SignalNone},
		{"touches but equal now", 99, 100, 100, 100, SignalNone},
		{"cross downward", 101, 100, 99, 100, SignalNone},
	}
	for _, tc := range cases {
		s := seriesWithEMAs(t, tc.pf, tc.ps, tc.cf, tc.cs)
		if got := BullishCrossover(s); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestBullishCrossover_NaNIsNotASignal(t *testing.T) {
	nan := math.NaN()
	cases := [][4]float64{
		{nan, 100, 101, 100},
		{99, nan, 101, 100},
		{99, 100, nan, 100},
		{99, 100, 101, nan},
	}
	for i, c := range cases {
		s := seriesWithEMAs(t, c[0], c[1], c[2], c[3])
		if got := BullishCrossover(s); got != SignalNone {
			t.Errorf("case %d: NaN EMA must evaluate to none, got %v", i, got)
		}
	}
}

func TestBullishCrossover_IgnoresFormingBar(t *testing.T) {
	// A cross visible only on the forming bar (-1) must not fire.
	s := flatSeries(t, MinBars)
	s[len(s)-1].EMAFast, s[len(s)-1].EMASlow = 200, 100
	s[len(s)-2].EMAFast, s[len(s)-2].EMASlow = 99, 100
	s[len(s)-3].EMAFast, s[len(s)-3].EMASlow = 99, 100
	if got := BullishCrossover(s); got != SignalNone {
		t.Errorf("forming-bar cross fired: %v", got)
	}
}
