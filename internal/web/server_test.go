package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Bmittal0901/SensexAlgo/internal/engine"
	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/logring"
)

// fakeRunner records control calls without running a loop.
type fakeRunner struct {
	running  bool
	startErr error
	lastCfg  engine.Config
	stops    int
}

func (f *fakeRunner) Start(cfg engine.Config) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.lastCfg = cfg
	f.running = true
	return nil
}
func (f *fakeRunner) Stop()         { f.stops++; f.running = false }
func (f *fakeRunner) Running() bool { return f.running }
func (f *fakeRunner) Status() engine.Status {
	return engine.Status{Running: f.running, Qty: 40}
}

func newTestServer(r Controller) *Server {
	return NewServer(":0", r, logring.New(100), nil)
}

func TestStartAcceptsConfig(t *testing.T) {
	fr := &fakeRunner{}
	srv := newTestServer(fr)

	body := `{"call_strike":81000,"put_strike":81000,"lots":2,"profit_points":50,"stoploss_points":20,"timeframe":"5m"}`
	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if fr.lastCfg.CallStrike != 81000 || fr.lastCfg.Lots != 2 {
		t.Errorf("config not forwarded: %+v", fr.lastCfg)
	}
	if string(fr.lastCfg.Timeframe) != "5m" {
		t.Errorf("timeframe = %q", fr.lastCfg.Timeframe)
	}
}

func TestStartRejectsSecondRun(t *testing.T) {
	fr := &fakeRunner{startErr: engine.ErrAlreadyRunning}
	srv := newTestServer(fr)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStartValidationFailure(t *testing.T) {
	fr := &fakeRunner{startErr: engine.Config{}.Validate()}
	srv := newTestServer(fr)

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{"lots":0}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStartRejectsBadJSON(t *testing.T) {
	srv := newTestServer(&fakeRunner{})

	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStartRequiresPOST(t *testing.T) {
	srv := newTestServer(&fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/start", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	fr := &fakeRunner{}
	srv := newTestServer(fr)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/stop", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("stop #%d status = %d", i+1, rec.Code)
		}
	}
	if fr.stops != 2 {
		t.Errorf("stops = %d, want 2", fr.stops)
	}
}

func TestStatusReportsSnapshot(t *testing.T) {
	fr := &fakeRunner{running: true}
	srv := newTestServer(fr)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var st engine.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running || st.Qty != 40 {
		t.Errorf("status = %+v", st)
	}
}

func TestLogsTail(t *testing.T) {
	ring := logring.New(100)
	ring.Appendf("first")
	ring.Appendf("second")
	srv := NewServer(":0", &fakeRunner{}, ring, nil)

	req := httptest.NewRequest(http.MethodGet, "/logs?n=1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp struct {
		Running bool     `json:"running"`
		Logs    []string `json:"logs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Logs) != 1 || !strings.Contains(resp.Logs[0], "second") {
		t.Errorf("logs = %v", resp.Logs)
	}
}

// fakeTrades serves a canned trade history.
type fakeTrades struct {
	records []journal.Record
	err     error
	lastN   int
}

func (f *fakeTrades) GetTrades(limit int) ([]journal.Record, error) {
	f.lastN = limit
	return f.records, f.err
}

func TestTradesHistory(t *testing.T) {
	ft := &fakeTrades{records: []journal.Record{
		{ID: 2, Symbol: "SENSEX25SEP81000CE", Leg: "CE", Side: "SELL", Qty: 40, Price: 160, Reason: "TARGET", PnL: 2000},
		{ID: 1, Symbol: "SENSEX25SEP81000CE", Leg: "CE", Side: "BUY", Qty: 40, Price: 110, Reason: "ENTRY"},
	}}
	srv := NewServer(":0", &fakeRunner{}, logring.New(100), ft)

	req := httptest.NewRequest(http.MethodGet, "/trades?n=10", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ft.lastN != 10 {
		t.Errorf("limit = %d, want 10", ft.lastN)
	}
	var resp struct {
		Trades []journal.Record `json:"trades"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Trades) != 2 || resp.Trades[0].Reason != "TARGET" {
		t.Errorf("trades = %+v", resp.Trades)
	}
}

func TestTradesWithoutJournal(t *testing.T) {
	srv := newTestServer(&fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/trades", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Trades []journal.Record `json:"trades"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Trades) != 0 {
		t.Errorf("trades = %+v, want empty", resp.Trades)
	}
}

func TestTradesJournalError(t *testing.T) {
	ft := &fakeTrades{err: errors.New("db locked")}
	srv := NewServer(":0", &fakeRunner{}, logring.New(100), ft)

	req := httptest.NewRequest(http.MethodGet, "/trades", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRootMessage(t *testing.T) {
	srv := newTestServer(&fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "control surface") {
		t.Errorf("body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}
