// Package engine contains the decision loop: the state machine that
// polls candles, detects crossover entries, and monitors bracket exits
// for the two option legs of a running strategy.
//
// Exactly one loop may be active per Runner. The loop goroutine is the
// only writer of position and run state; the control surface reads
// immutable snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/logring"
	"github.com/Bmittal0901/SensexAlgo/internal/metrics"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
	"github.com/Bmittal0901/SensexAlgo/internal/notification"
	"github.com/Bmittal0901/SensexAlgo/internal/position"
)

// ErrAlreadyRunning is returned by Start while a loop is active.
// A second start is rejected, never queued.
var ErrAlreadyRunning = errors.New("engine: strategy already running")

// TradeRecorder persists fills for audit. Implemented by journal.Journal.
type TradeRecorder interface {
	RecordTrade(journal.Trade) error
}

// StatusSink receives a status snapshot on every state change.
// Implemented by the Redis store; delivery is best-effort.
type StatusSink interface {
	PublishStatus(ctx context.Context, st Status) error
}

// Status is a read-only snapshot of the run state.
type Status struct {
	Running bool   `json:"running"`
	DryRun  bool   `json:"dry_run"`
	Expiry  string `json:"expiry,omitempty"`

	CallSymbol string   `json:"call_symbol,omitempty"`
	PutSymbol  string   `json:"put_symbol,omitempty"`
	CallEntry  *float64 `json:"call_entry"`
	PutEntry   *float64 `json:"put_entry"`

	Qty            int     `json:"qty"`
	ProfitPoints   float64 `json:"profit_points"`
	StoplossPoints float64 `json:"stoploss_points"`
	PnL            float64 `json:"pnl"`

	LastCandleTS time.Time `json:"last_candle_ts,omitempty"`

	Logs []string `json:"logs,omitempty"`
}

// Deps are the collaborators injected into a Runner. Candles, Quotes,
// Orders, Resolver and Log are required; the rest may be nil.
type Deps struct {
	Candles  model.CandleSource
	Quotes   model.QuoteSource
	Orders   model.OrderPlacer
	Resolver model.ContractResolver

	Log      *logring.Ring
	Journal  TradeRecorder
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Status   StatusSink

	Now func() time.Time // nil → time.Now
}

// Runner owns at most one decision loop at a time.
type Runner struct {
	deps Deps
	now  func() time.Time

	mu      sync.Mutex // guards start/stop transitions
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	stMu sync.RWMutex
	st   Status
}

// New creates a Runner. Panics if a required dependency is missing,
// mirroring a programming error rather than a runtime condition.
func New(deps Deps) *Runner {
	if deps.Candles == nil || deps.Quotes == nil || deps.Orders == nil ||
		deps.Resolver == nil || deps.Log == nil {
		panic("engine: missing required dependency")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{deps: deps, now: now}
}

// Start validates the config, resolves both contracts, and launches the
// decision loop asynchronously. Resolution or validation failures are
// fatal to the start; no loop is spawned.
func (r *Runner) Start(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ref := r.now()

	call, err := r.deps.Resolver.ResolveContract(ctx, cfg.CallStrike, model.OptionCall, ref)
	if err != nil {
		return fmt.Errorf("engine: resolve CE contract: %w", err)
	}
	put, err := r.deps.Resolver.ResolveContract(ctx, cfg.PutStrike, model.OptionPut, ref)
	if err != nil {
		return fmt.Errorf("engine: resolve PE contract: %w", err)
	}

	sess := &session{
		cfg:  cfg,
		book: position.NewBook(call, put, cfg.Qty()),
	}

	r.deps.Log.Reset()
	r.deps.Log.Appendf("CE: %s | PE: %s | Expiry: %s | Qty: %d",
		call.Symbol, put.Symbol, call.Expiry.Format("2006-01-02"), cfg.Qty())

	// Seed the candle boundary with the currently forming bar so a
	// crossover from before startup cannot fire on the first poll.
	if init, err := r.deps.Candles.Candles(ctx, call.Token, cfg.Timeframe, cfg.LookbackDays); err != nil {
		r.deps.Log.Appendf("Startup candle fetch failed: %v", err)
	} else if len(init) > 0 {
		sess.boundary = init[len(init)-1].TS
		r.deps.Log.Appendf("Startup candle time: %s", sess.boundary.Format("15:04:05"))
	}

	r.stMu.Lock()
	r.st = Status{
		Running:        true,
		DryRun:         cfg.DryRun,
		Expiry:         call.Expiry.Format("2006-01-02"),
		CallSymbol:     call.Symbol,
		PutSymbol:      put.Symbol,
		Qty:            cfg.Qty(),
		ProfitPoints:   cfg.ProfitPoints,
		StoplossPoints: cfg.StoplossPoints,
		LastCandleTS:   sess.boundary,
	}
	r.stMu.Unlock()

	loopCtx, loopCancel := context.WithCancel(context.Background())
	r.cancel = loopCancel
	r.done = make(chan struct{})
	r.running = true

	if r.deps.Metrics != nil {
		r.deps.Metrics.Running.Set(1)
	}
	r.deps.Log.Appendf("Algo started. Waiting for EMA crossover signals...")

	go r.run(loopCtx, sess)
	return nil
}

// Stop signals cooperative cancellation. The loop observes it at the
// top of every outer and inner iteration and exits within one polling
// interval. Stopping an idle runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.cancel()
}

// Running reports whether a loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Done returns a channel closed when the current loop has exited,
// or nil if no loop was ever started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Status returns a snapshot of the run state with the last 50 log
// lines. Eventually consistent with the loop; never blocks it.
func (r *Runner) Status() Status {
	r.stMu.RLock()
	st := r.st
	r.stMu.RUnlock()

	if st.CallEntry != nil {
		v := *st.CallEntry
		st.CallEntry = &v
	}
	if st.PutEntry != nil {
		v := *st.PutEntry
		st.PutEntry = &v
	}
	st.Logs = r.deps.Log.Tail(50)
	return st
}

// updateStatus applies fn to the shared status record and publishes the
// result to the optional sink.
func (r *Runner) updateStatus(fn func(*Status)) {
	r.stMu.Lock()
	fn(&r.st)
	st := r.st
	r.stMu.Unlock()

	if r.deps.Status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.deps.Status.PublishStatus(ctx, st)
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.PnL.Set(st.PnL)
	}
}

func (r *Runner) finish() {
	r.updateStatus(func(st *Status) { st.Running = false })

	r.mu.Lock()
	r.running = false
	done := r.done
	r.mu.Unlock()

	if r.deps.Metrics != nil {
		r.deps.Metrics.Running.Set(0)
	}
	r.deps.Log.Appendf("Algo stopped.")
	close(done)
}
