// Package journal persists trade fills to SQLite for analysis and audit.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Trade is one recorded fill: an entry (BUY) or an exit (SELL).
// PnL is zero for entries and the realized delta for exits.
type Trade struct {
	Symbol   string    `json:"symbol"`
	Leg      string    `json:"leg"`  // CE, PE
	Side     string    `json:"side"` // BUY, SELL
	Qty      int       `json:"qty"`
	Price    float64   `json:"price"`
	Reason   string    `json:"reason"` // crossover entry, TARGET, STOPLOSS, EOD
	PnL      float64   `json:"pnl"`
	FilledAt time.Time `json:"filled_at"`
}

// Journal is a SQLite-backed trade log.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol     TEXT NOT NULL,
		leg        TEXT NOT NULL,
		side       TEXT NOT NULL,
		qty        INTEGER NOT NULL,
		price      REAL NOT NULL,
		reason     TEXT,
		pnl        REAL DEFAULT 0,
		filled_at  DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordTrade persists one fill.
func (j *Journal) RecordTrade(t Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (symbol, leg, side, qty, price, reason, pnl, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, t.Leg, t.Side, t.Qty, t.Price, t.Reason, t.PnL,
		t.FilledAt.Format(time.RFC3339),
	)
	return err
}

// Record is a row read back from the trades table.
type Record struct {
	ID       int64   `json:"id"`
	Symbol   string  `json:"symbol"`
	Leg      string  `json:"leg"`
	Side     string  `json:"side"`
	Qty      int     `json:"qty"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason"`
	PnL      float64 `json:"pnl"`
	FilledAt string  `json:"filled_at"`
}

// GetTrades returns the last N trades, newest first.
func (j *Journal) GetTrades(limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, symbol, leg, side, qty, price, reason, pnl, filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Record
	for rows.Next() {
		var t Record
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Leg, &t.Side, &t.Qty,
			&t.Price, &t.Reason, &t.PnL, &t.FilledAt); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
