package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/loadcli/internal/logging"
	"github.com/studiowebux/loadcli/internal/metrics"
	"go.uber.org/zap"
)

// sqliteBufferSize batches sample inserts so the hot path never waits on a
// per-sample transaction.
const sqliteBufferSize = 100

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	scenario TEXT NOT NULL,
	started_at TIMESTAMP,
	completed_at TIMESTAMP,
	status TEXT,
	summary_json TEXT
);

CREATE TABLE IF NOT EXISTS samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	metric TEXT NOT NULL,
	kind TEXT NOT NULL,
	value REAL NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	tags TEXT
);

CREATE INDEX IF NOT EXISTS idx_samples_run_metric ON samples(run_id, metric);
`

// SQLite streams the raw per-request sample stream into a database file as
// a run artifact, and records the final summary row at run end.
type SQLite struct {
	db    *sql.DB
	runID string

	mu  sync.Mutex
	buf []metrics.Sample
}

// NewSQLite opens (or creates) the database and initializes the schema.
func NewSQLite(path, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{
		db:    db,
		runID: runID,
		buf:   make([]metrics.Sample, 0, sqliteBufferSize),
	}, nil
}

func (s *SQLite) Name() string { return "sqlite" }

// Submit buffers a sample for batch insert.
func (s *SQLite) Submit(smp metrics.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, smp)
	if len(s.buf) >= sqliteBufferSize {
		s.flushLocked()
	}
}

// flushLocked writes buffered samples in a single transaction.
// Caller holds s.mu.
func (s *SQLite) flushLocked() {
	if len(s.buf) == 0 {
		return
	}

	err := func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT INTO samples (run_id, metric, kind, value, timestamp, tags)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, smp := range s.buf {
			var tags any
			if len(smp.Tags) > 0 {
				data, err := json.Marshal(smp.Tags)
				if err == nil {
					tags = string(data)
				}
			}
			if _, err := stmt.Exec(s.runID, smp.Metric, smp.Kind.String(), smp.Value, smp.Time, tags); err != nil {
				return fmt.Errorf("failed to insert sample: %w", err)
			}
		}

		return tx.Commit()
	}()
	if err != nil {
		// A storage error must not stop the run
		logging.Warn("failed to save samples", zap.Error(err))
	}

	s.buf = s.buf[:0]
}

// WriteSummary records the run row with the final aggregated data.
func (s *SQLite) WriteSummary(sum *RunSummary) error {
	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()

	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO runs (id, scenario, started_at, completed_at, status, summary_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.runID, sum.Scenario, sum.StartedAt, sum.CompletedAt, sum.Status, string(summaryJSON))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Close flushes any remaining samples and closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()
	return s.db.Close()
}
