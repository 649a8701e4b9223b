package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/xtding233/foraging-backend/internal/patch"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	seed        INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patch_states (
	run_id      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	op          TEXT NOT NULL,
	patch_id    INTEGER NOT NULL,
	amount      REAL NOT NULL,
	probability REAL NOT NULL,
	available   REAL NOT NULL,
	recorded_at TEXT NOT NULL,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS patch_states_by_patch ON patch_states (run_id, patch_id, seq);
`

// Store persists patch state history in SQLite, one run per manager.
type Store struct {
	db *sql.DB
}

// RunInfo describes a recorded run.
type RunInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Label     string    `json:"label" yaml:"label"`
	Seed      uint64    `json:"seed" yaml:"seed"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRun registers a run and returns its recorder.
func (s *Store) NewRun(label string, seed uint64) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, label, seed, created_at) VALUES (?, ?, ?, ?)`,
		id, label, int64(seed), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{db: s.db, info: RunInfo{ID: id, Label: label, Seed: seed, CreatedAt: now}}, nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query(`SELECT run_id, label, seed, created_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var seed int64
		var created string
		if err := rows.Scan(&info.ID, &info.Label, &seed, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.Seed = uint64(seed)
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Entries returns a run's history in record order. A negative patchID selects every patch.
func (s *Store) Entries(runID string, patchID int) ([]Entry, error) {
	q := `SELECT seq, op, patch_id, amount, probability, available, recorded_at
	      FROM patch_states WHERE run_id = ?`
	args := []any{runID}
	if patchID >= 0 {
		q += ` AND patch_id = ?`
		args = append(args, patchID)
	}
	q += ` ORDER BY seq`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var seq int64
		var at string
		if err := rows.Scan(&seq, &e.Op, &e.State.PatchID, &e.State.Amount,
			&e.State.Probability, &e.State.Available, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run records one manager's history. It implements patch.Recorder.
type Run struct {
	db   *sql.DB
	info RunInfo

	mu  sync.Mutex
	err error
}

// Info returns the run metadata.
func (r *Run) Info() RunInfo { return r.info }

// Record writes one entry keyed by seq. The first write error is kept and
// reported by Err; later records are dropped.
func (r *Run) Record(seq uint64, op string, s patch.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	_, err := r.db.Exec(
		`INSERT INTO patch_states (run_id, seq, op, patch_id, amount, probability, available, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.info.ID, int64(seq), op, s.PatchID, s.Amount, s.Probability, s.Available,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		r.err = fmt.Errorf("record %s patch %d: %w", op, s.PatchID, err)
		slog.Error("history write failed, recording stopped", "run", r.info.ID, "error", err)
	}
}

// Err returns the first write error, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
