package position

import (
	"testing"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

func testBook(qty int) *Book {
	expiry := time.Date(2026, time.September, 3, 0, 0, 0, 0, time.UTC)
	return NewBook(
		model.Contract{Symbol: "SENSEX2690378000CE", Token: 101, Expiry: expiry},
		model.Contract{Symbol: "SENSEX2690377000PE", Token: 102, Expiry: expiry},
		qty,
	)
}

func TestTryEnter_NoPyramiding(t *testing.T) {
	b := testBook(40)
	if !b.TryEnter(b.Call, 100) {
		t.Fatal("first entry should succeed")
	}
	if b.TryEnter(b.Call, 120) {
		t.Fatal("entry on open leg must be a no-op")
	}
	if p, _ := b.Call.EntryPrice(); p != 100 {
		t.Errorf("entry price changed to %v, want 100", p)
	}
}

func TestEvaluateExit_FlatLeg(t *testing.T) {
	b := testBook(40)
	if r := b.EvaluateExit(b.Call, 1e9, 50, 30); r != ReasonNone {
		t.Errorf("flat leg produced exit %q", r)
	}
}

func TestEvaluateExit_Bracket(t *testing.T) {
	b := testBook(40)
	b.TryEnter(b.Call, 100)

	cases := []struct {
		live float64
		want Reason
	}{
		{149.99, ReasonNone},
		{150, ReasonTarget},
		{160, ReasonTarget},
		{70.01, ReasonNone},
		{70, ReasonStoploss},
		{60, ReasonStoploss},
		{100, ReasonNone},
	}
	for _, tc := range cases {
		if got := b.EvaluateExit(b.Call, tc.live, 50, 30); got != tc.want {
			t.Errorf("live=%v: got %q, want %q", tc.live, got, tc.want)
		}
	}
}

func TestExit_PnLAccounting(t *testing.T) {
	b := testBook(40)

	b.TryEnter(b.Call, 100)
	pnl, ok := b.Exit(b.Call, 130)
	if !ok || pnl != 1200 {
		t.Errorf("target exit: pnl=%v ok=%v, want 1200 true", pnl, ok)
	}

	b.TryEnter(b.Put, 100)
	pnl, ok = b.Exit(b.Put, 80)
	if !ok || pnl != -800 {
		t.Errorf("stoploss exit: pnl=%v ok=%v, want -800 true", pnl, ok)
	}

	if got := b.RealizedPnL(); got != 400 {
		t.Errorf("cumulative pnl=%v, want 400", got)
	}

	// Re-entry of the same leg within the session accumulates further.
	b.TryEnter(b.Call, 200)
	b.Exit(b.Call, 210)
	if got := b.RealizedPnL(); got != 800 {
		t.Errorf("cumulative pnl after re-entry=%v, want 800", got)
	}
}

func TestExit_FlatLeg(t *testing.T) {
	b := testBook(40)
	if pnl, ok := b.Exit(b.Call, 100); ok || pnl != 0 {
		t.Errorf("exit on flat leg: pnl=%v ok=%v", pnl, ok)
	}
	if b.RealizedPnL() != 0 {
		t.Errorf("pnl changed without an exit transition")
	}
}

func TestExit_ClearsLeg(t *testing.T) {
	b := testBook(40)
	b.TryEnter(b.Call, 100)
	b.Exit(b.Call, 130)
	if b.Call.Open() {
		t.Error("leg still open after exit")
	}
	if !b.TryEnter(b.Call, 140) {
		t.Error("re-entry after exit should succeed")
	}
}
