// Package web exposes the run control surface over HTTP: start/stop the
// strategy loop, inspect run status, and tail or stream the run log.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bmittal0901/SensexAlgo/internal/engine"
	"github.com/Bmittal0901/SensexAlgo/internal/journal"
	"github.com/Bmittal0901/SensexAlgo/internal/logring"
	"github.com/Bmittal0901/SensexAlgo/internal/model"
)

// Controller is the subset of the engine runner the handlers need.
// *engine.Runner satisfies it.
type Controller interface {
	Start(cfg engine.Config) error
	Stop()
	Running() bool
	Status() engine.Status
}

// TradeSource serves the trade history endpoint. *journal.Journal
// satisfies it.
type TradeSource interface {
	GetTrades(limit int) ([]journal.Record, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Server routes control requests to the engine runner.
type Server struct {
	runner Controller
	logs   *logring.Ring
	trades TradeSource
	mux    *http.ServeMux

	httpServer *http.Server
}

// NewServer builds the control surface around a runner, its run log and
// the trade journal. trades may be nil; /trades then answers an empty
// list.
func NewServer(addr string, runner Controller, logs *logring.Ring, trades TradeSource) *Server {
	s := &Server{
		runner: runner,
		logs:   logs,
		trades: trades,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins serving. Blocks until the server exits.
func (s *Server) Start() error {
	log.Printf("[web] control surface listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/start", s.handleStart)
	s.mux.HandleFunc("/stop", s.handleStop)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/logs", s.handleLogs)
	s.mux.HandleFunc("/trades", s.handleTrades)
	s.mux.HandleFunc("/ws/logs", s.handleLogStream)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	SetCORS(w)
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "sensex-algobot",
		"message": "EMA crossover bot control surface. POST /start, POST /stop, GET /status, GET /logs, GET /trades.",
	})
}

// startRequest is the strategy configuration accepted by POST /start.
type startRequest struct {
	CallStrike     float64 `json:"call_strike"`
	PutStrike      float64 `json:"put_strike"`
	Lots           int     `json:"lots"`
	ProfitPoints   float64 `json:"profit_points"`
	StoplossPoints float64 `json:"stoploss_points"`
	Timeframe      string  `json:"timeframe"` // "3m", "5m" or "15m"
	DryRun         bool    `json:"dry_run"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	err := s.runner.Start(engine.Config{
		CallStrike:     req.CallStrike,
		PutStrike:      req.PutStrike,
		Lots:           req.Lots,
		ProfitPoints:   req.ProfitPoints,
		StoplossPoints: req.StoplossPoints,
		Timeframe:      model.Timeframe(req.Timeframe),
		DryRun:         req.DryRun,
	})
	switch {
	case err == engine.ErrAlreadyRunning:
		writeError(w, http.StatusConflict, "algo already running")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[web] algo started: CE %.0f / PE %.0f x%d lots", req.CallStrike, req.PutStrike, req.Lots)
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	// Stop on an idle runner is a no-op; both cases answer "stopped".
	s.runner.Stop()
	log.Printf("[web] stop requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	n := 200
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.runner.Running(),
		"logs":    s.logs.Tail(n),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	n := 50
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if s.trades == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"trades": []journal.Record{}})
		return
	}
	records, err := s.trades.GetTrades(n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal read: "+err.Error())
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": records})
}

// handleLogStream upgrades to WebSocket and streams run log lines as
// they are appended. The backlog is sent first.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	lines, cancel := s.logs.Subscribe(64)
	defer cancel()

	for _, line := range s.logs.Tail(100) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	// Reader goroutine detects client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
