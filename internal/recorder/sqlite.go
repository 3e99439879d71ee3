package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Divvy/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists ledger events to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers (dashboards, the CLI) don't block the service.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_events (
			id          TEXT PRIMARY KEY,
			sequence    INTEGER NOT NULL,
			timestamp   INTEGER NOT NULL,
			event_type  TEXT NOT NULL,
			cycle       INTEGER NOT NULL,
			actor       TEXT,
			subject     TEXT,
			amount      INTEGER,
			phase       TEXT,
			total       INTEGER,
			holdings    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON ledger_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_cycle ON ledger_events(cycle, event_type)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordEvent stores evt. Events are keyed by ID, so a replayed event is ignored.
// Amounts keep their uint64 bits in the signed INTEGER columns and are converted back on read.
func (r *SQLiteRecorder) RecordEvent(evt *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO ledger_events
		(id, sequence, timestamp, event_type, cycle, actor, subject, amount, phase, total, holdings)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		evt.ID, int64(evt.Sequence), evt.At.UnixNano(), string(evt.Type), int64(evt.Cycle),
		string(evt.Actor), string(evt.Subject), int64(evt.Amount),
		string(evt.Phase), int64(evt.Total), int64(evt.Holdings),
	)
	return err
}

// History returns the most recent events, newest first.
func (r *SQLiteRecorder) History(limit int) ([]EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(`SELECT id, sequence, timestamp, event_type, cycle, actor, subject,
		amount, phase, total, holdings
		FROM ledger_events ORDER BY sequence DESC, timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec                                     EventRecord
			seq, ts, cycle, amount, total, holdings int64
			typ, actor, subject, phase              string
		)
		if err := rows.Scan(&rec.ID, &seq, &ts, &typ, &cycle, &actor, &subject,
			&amount, &phase, &total, &holdings); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Sequence = uint64(seq)
		rec.At = time.Unix(0, ts).UTC()
		rec.Type = model.EventType(typ)
		rec.Cycle = uint64(cycle)
		rec.Actor = model.Address(actor)
		rec.Subject = model.Address(subject)
		rec.Amount = model.Amount(amount)
		rec.Phase = model.Phase(phase)
		rec.Total = model.Amount(total)
		rec.Holdings = model.Amount(holdings)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Cycle aggregates contributions and payouts recorded for one cycle. Amounts are summed
// here rather than with SUM() because they are stored as the int64 bit pattern of a uint64.
func (r *SQLiteRecorder) Cycle(cycle uint64) (*CycleSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := &CycleSummary{Cycle: cycle}
	rows, err := r.db.Query(`SELECT event_type, amount
		FROM ledger_events WHERE cycle = ? AND event_type IN (?, ?)`,
		int64(cycle), string(model.EventContributed), string(model.EventWithdrawn))
	if err != nil {
		return nil, fmt.Errorf("query cycle: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ    string
			amount int64
		)
		if err := rows.Scan(&typ, &amount); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		switch model.EventType(typ) {
		case model.EventContributed:
			sum.Contributions++
			sum.Contributed = addSaturating(sum.Contributed, model.Amount(amount))
		case model.EventWithdrawn:
			sum.Withdrawals++
			sum.PaidOut = addSaturating(sum.PaidOut, model.Amount(amount))
		}
	}
	return sum, rows.Err()
}

func addSaturating(a, b model.Amount) model.Amount {
	v, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return model.Amount(v)
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
