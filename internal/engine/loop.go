package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/indicator"
	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
	"github.com/Bmittal0901/SensexAlgo/internal/notification"
	"github.com/Bmittal0901/SensexAlgo/internal/position"
	"github.com/Bmittal0901/SensexAlgo/internal/strategy"
)

// session is the loop-owned state of one run. Only the loop goroutine
// touches it after Start.
type session struct {
	cfg      Config
	book     *position.Book
	boundary time.Time // open time of the most recently seen forming bar
}

// run is the outer loop. Any failed iteration is logged and followed by
// a fixed backoff; the loop only terminates on cancellation. It is
// meant to survive a full unattended trading session.
func (r *Runner) run(ctx context.Context, s *session) {
	defer r.finish()

	for ctx.Err() == nil {
		if err := r.iterate(ctx, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.deps.Log.Appendf("Error: %v", err)
			if r.deps.Metrics != nil {
				r.deps.Metrics.LoopErrors.Inc()
			}
			sleep(ctx, s.cfg.ErrorBackoff)
		}
	}
}

// iterate performs one pass of the outer state machine:
// market gate → candle fetch → boundary detection → signal/entry →
// exit monitoring.
func (r *Runner) iterate(ctx context.Context, s *session) error {
	now := r.now()
	if !markethours.IsMarketOpen(now) {
		if r.deps.Metrics != nil {
			r.deps.Metrics.MarketState.Set(0)
		}
		r.deps.Log.Appendf("%s. Sleeping %s...", markethours.StatusString(now), s.cfg.ClosedPoll)
		sleep(ctx, s.cfg.ClosedPoll)
		return nil
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.MarketState.Set(1)
	}

	ceSeries, peSeries, err := r.fetchSeries(ctx, s)
	if err != nil {
		return err
	}
	if ceSeries == nil || peSeries == nil {
		r.deps.Log.Appendf("No candle data yet. Waiting...")
		sleep(ctx, s.cfg.ClosedPoll)
		return nil
	}

	// Wait for a new bar before evaluating anything: the forming bar's
	// open time is the boundary.
	boundary := ceSeries[len(ceSeries)-1].TS
	if boundary.Equal(s.boundary) {
		sleep(ctx, s.cfg.BoundaryPoll)
		return nil
	}
	s.boundary = boundary
	r.updateStatus(func(st *Status) { st.LastCandleTS = boundary })

	r.maybeEnter(ctx, s, s.book.Call, ceSeries)
	r.maybeEnter(ctx, s, s.book.Put, peSeries)

	return r.monitorExits(ctx, s)
}

// fetchSeries pulls both candle streams and annotates them with EMAs.
// nil series (without error) means a stream is empty: not ready yet.
func (r *Runner) fetchSeries(ctx context.Context, s *session) (ce, pe indicator.Series, err error) {
	start := time.Now()
	ceCandles, err := r.deps.Candles.Candles(ctx, s.book.Call.Token, s.cfg.Timeframe, s.cfg.LookbackDays)
	if err != nil {
		return nil, nil, err
	}
	peCandles, err := r.deps.Candles.Candles(ctx, s.book.Put.Token, s.cfg.Timeframe, s.cfg.LookbackDays)
	if err != nil {
		return nil, nil, err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.CandlePolls.Inc()
		r.deps.Metrics.CandleFetchDur.Observe(time.Since(start).Seconds())
	}
	if len(ceCandles) == 0 || len(peCandles) == 0 {
		return nil, nil, nil
	}

	if ce, err = indicator.WithEMA(ceCandles, strategy.FastSpan, strategy.SlowSpan); err != nil {
		return nil, nil, err
	}
	if pe, err = indicator.WithEMA(peCandles, strategy.FastSpan, strategy.SlowSpan); err != nil {
		return nil, nil, err
	}
	return ce, pe, nil
}

// maybeEnter records an entry for the leg when a crossover fired and
// the leg is flat. The entry price is the close of the signal bar (the
// bar immediately preceding the still-forming one), not the live price.
func (r *Runner) maybeEnter(ctx context.Context, s *session, leg *position.Leg, series indicator.Series) {
	if strategy.BullishCrossover(series) != strategy.SignalBullishCrossover {
		return
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.Signals.WithLabelValues(string(leg.Type)).Inc()
	}
	signalClose := series[len(series)-2].Close
	if !s.book.TryEnter(leg, signalClose) {
		return
	}

	r.deps.Log.Appendf("[BUY - %s] %s | Qty: %d | Price: Rs.%.2f",
		leg.Type, leg.Symbol, leg.Qty(), signalClose)
	r.placeOrder(ctx, s, leg, model.SideBuy)
	r.recordTrade(leg, model.SideBuy, signalClose, "crossover entry", 0)
	r.notify(ctx, notification.AlertInfo, "Leg entered",
		"%s %s qty %d at %.2f", leg.Type, leg.Symbol, leg.Qty(), signalClose)

	entry := signalClose
	r.updateStatus(func(st *Status) {
		if leg.Type == model.OptionCall {
			st.CallEntry = &entry
		} else {
			st.PutEntry = &entry
		}
	})
}

// monitorExits is the inner loop: poll live prices every ExitPoll until
// the market closes, EOD square-off triggers, or a new candle boundary
// appears on the CE stream (a cheap boundary detector shared by both
// legs, which resolve to the same timeframe).
func (r *Runner) monitorExits(ctx context.Context, s *session) error {
	for ctx.Err() == nil {
		now := r.now()
		if !markethours.IsMarketOpen(now) {
			return nil
		}

		if markethours.IsEndOfDay(now) {
			return r.squareOff(ctx, s)
		}

		for _, leg := range s.book.Legs() {
			if !leg.Open() {
				continue
			}
			live, err := r.deps.Quotes.LastPrice(ctx, leg.Symbol)
			if err != nil {
				return err
			}
			reason := s.book.EvaluateExit(leg, live, s.cfg.ProfitPoints, s.cfg.StoplossPoints)
			if reason == position.ReasonNone {
				continue
			}
			r.exitLeg(ctx, s, leg, live, reason)
		}

		// Boundary probe on the CE stream only.
		probe, err := r.deps.Candles.Candles(ctx, s.book.Call.Token, s.cfg.Timeframe, s.cfg.LookbackDays)
		if err != nil {
			return err
		}
		if len(probe) > 0 && !probe[len(probe)-1].TS.Equal(s.boundary) {
			return nil
		}

		sleep(ctx, s.cfg.ExitPoll)
	}
	return nil
}

// squareOff force-exits every open leg at its live price. Runs at the
// EOD cutoff, well before the actual close.
func (r *Runner) squareOff(ctx context.Context, s *session) error {
	for _, leg := range s.book.Legs() {
		if !leg.Open() {
			continue
		}
		live, err := r.deps.Quotes.LastPrice(ctx, leg.Symbol)
		if err != nil {
			return err
		}
		r.exitLeg(ctx, s, leg, live, position.ReasonEOD)
	}
	return nil
}

// exitLeg realizes an exit: clears the leg, accumulates PnL, issues the
// sell order and records the fill.
func (r *Runner) exitLeg(ctx context.Context, s *session, leg *position.Leg, live float64, reason position.Reason) {
	pnl, ok := s.book.Exit(leg, live)
	if !ok {
		return
	}

	r.deps.Log.Appendf("[SELL - %s] %s | Qty: %d | Price: Rs.%.2f | PnL: Rs.%.2f",
		reason, leg.Symbol, leg.Qty(), live, pnl)
	r.placeOrder(ctx, s, leg, model.SideSell)
	r.recordTrade(leg, model.SideSell, live, string(reason), pnl)
	r.notify(ctx, notification.AlertInfo, "Leg exited",
		"%s %s at %.2f (%s), pnl %.2f", leg.Type, leg.Symbol, live, reason, pnl)

	if r.deps.Metrics != nil {
		r.deps.Metrics.Exits.WithLabelValues(string(reason)).Inc()
	}

	total := s.book.RealizedPnL()
	r.updateStatus(func(st *Status) {
		st.PnL = total
		if leg.Type == model.OptionCall {
			st.CallEntry = nil
		} else {
			st.PutEntry = nil
		}
	})
}

// placeOrder submits a fire-and-forget market order. Failures are
// logged and NOT reconciled against the tracked position: paper state
// and market state are deliberately loosely coupled.
func (r *Runner) placeOrder(ctx context.Context, s *session, leg *position.Leg, side model.Side) {
	if s.cfg.DryRun {
		r.deps.Log.Appendf("[DRY-RUN] %s %s x%d skipped", side, leg.Symbol, leg.Qty())
		if r.deps.Metrics != nil {
			r.deps.Metrics.Orders.WithLabelValues(string(side), "dry_run").Inc()
		}
		return
	}

	orderID, err := r.deps.Orders.PlaceOrder(ctx, leg.Symbol, leg.Qty(), side)
	if err != nil {
		r.deps.Log.Appendf("Order placement failed (%s %s): %v; position tracked locally", side, leg.Symbol, err)
		if r.deps.Metrics != nil {
			r.deps.Metrics.OrderFailures.Inc()
		}
		r.notify(ctx, notification.AlertWarning, "Order failed",
			"%s %s x%d: %v", side, leg.Symbol, leg.Qty(), err)
		return
	}
	r.deps.Log.Appendf("Order placed: %s (%s %s x%d)", orderID, side, leg.Symbol, leg.Qty())
	if r.deps.Metrics != nil {
		r.deps.Metrics.Orders.WithLabelValues(string(side), "live").Inc()
	}
}

func (r *Runner) recordTrade(leg *position.Leg, side model.Side, price float64, reason string, pnl float64) {
	if r.deps.Journal == nil {
		return
	}
	err := r.deps.Journal.RecordTrade(journal.Trade{
		Symbol:   leg.Symbol,
		Leg:      string(leg.Type),
		Side:     string(side),
		Qty:      leg.Qty(),
		Price:    price,
		Reason:   reason,
		PnL:      pnl,
		FilledAt: r.now(),
	})
	if err != nil {
		r.deps.Log.Appendf("Journal write failed: %v", err)
	}
}

func (r *Runner) notify(ctx context.Context, level notification.AlertLevel, title, format string, args ...any) {
	if r.deps.Notifier == nil {
		return
	}
	_ = r.deps.Notifier.Send(ctx, notification.Alert{
		Level:   level,
		Title:   title,
		Message: fmt.Sprintf(format, args...),
	})
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
