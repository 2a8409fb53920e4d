// Package position tracks the two option legs of a running strategy:
// entries, exit evaluation against live quotes, and realized PnL.
//
// The book is written only by the decision loop goroutine; callers that
// need a concurrent view take snapshots through the engine.
package position

import (
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// Reason classifies why a leg exited (or why it did not).
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTarget   Reason = "TARGET"
	ReasonStoploss Reason = "STOPLOSS"
	ReasonEOD      Reason = "EOD"
)

// Leg is one side (CE or PE) of the strategy. A nil entry means flat.
// Both legs are always long option positions; a sell only ever closes
// a previously bought leg.
type Leg struct {
	Symbol string
	Token  uint32
	Expiry time.Time
	Type   model.OptionType

	entry *float64
	qty   int
}

// NewLeg creates a flat leg for a resolved contract.
func NewLeg(c model.Contract, optType model.OptionType, qty int) *Leg {
	return &Leg{
		Symbol: c.Symbol,
		Token:  c.Token,
		Expiry: c.Expiry,
		Type:   optType,
		qty:    qty,
	}
}

// Open reports whether the leg has an entry.
func (l *Leg) Open() bool { return l.entry != nil }

// EntryPrice returns the entry price; ok is false when flat.
func (l *Leg) EntryPrice() (float64, bool) {
	if l.entry == nil {
		return 0, false
	}
	return *l.entry, true
}

// Qty returns the leg's quantity (lots × lot size).
func (l *Leg) Qty() int { return l.qty }

// Book holds both legs and the running PnL for one session.
type Book struct {
	Call *Leg
	Put  *Leg

	realized float64
}

// NewBook creates a book with two flat legs of the given quantity.
func NewBook(call, put model.Contract, qty int) *Book {
	return &Book{
		Call: NewLeg(call, model.OptionCall, qty),
		Put:  NewLeg(put, model.OptionPut, qty),
	}
}

// Legs returns both legs, call first.
func (b *Book) Legs() []*Leg { return []*Leg{b.Call, b.Put} }

// RealizedPnL is the sum over all closed legs of (exit−entry)×qty.
// It only changes on an exit and may decrease.
func (b *Book) RealizedPnL() float64 { return b.realized }

// TryEnter records an entry at price if the leg is flat. Entering an
// already-open leg is a no-op (no pyramiding); returns whether the
// entry was recorded.
func (b *Book) TryEnter(l *Leg, price float64) bool {
	if l.entry != nil {
		return false
	}
	p := price
	l.entry = &p
	return true
}

// EvaluateExit checks the live price against the bracket. A flat leg
// never exits. Target is checked before stoploss; with positive points
// on both sides the two cannot overlap, the ordering just fixes
// priority. The leg is not modified; call Exit to realize.
func (b *Book) EvaluateExit(l *Leg, live, profitPoints, stoplossPoints float64) Reason {
	if l.entry == nil {
		return ReasonNone
	}
	if live >= *l.entry+profitPoints {
		return ReasonTarget
	}
	if live <= *l.entry-stoplossPoints {
		return ReasonStoploss
	}
	return ReasonNone
}

// Exit closes the leg unconditionally at price (also used for the EOD
// square-off), adds (price−entry)×qty to the realized PnL and clears
// the entry. ok is false when the leg was already flat.
func (b *Book) Exit(l *Leg, price float64) (pnl float64, ok bool) {
	if l.entry == nil {
		return 0, false
	}
	pnl = (price - *l.entry) * float64(l.qty)
	b.realized += pnl
	l.entry = nil
	return pnl, true
}
