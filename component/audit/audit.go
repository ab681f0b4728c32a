package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Entry is one recorded metric query.
type Entry struct {
	ID         int64     `json:"id"`
	Time       time.Time `json:"time"`
	InstanceID string    `json:"instance_id"`
	Metric     string    `json:"metric"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
}

// Store persists the query audit log in a local sqlite database. Recording
// is best effort: a failed write warns and counts a drop, it never fails the
// API call that produced the entry.
type Store struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	drops      atomic.Int64
}

func NewStore(storagePath string) (*Store, error) {
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, err
	}
	dbPath := path.Join(storagePath, "telemetry-audit.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.tryInitTables(); err != nil {
		return nil, err
	}
	s.insertStmt, err = db.Prepare(
		`INSERT INTO metric_query_audit (ts, instance_id, metric, outcome, duration_ms, detail) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}

	log.Info("audit store opened", zap.String("path", dbPath))
	return s, nil
}

func (s *Store) tryInitTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metric_query_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER,
			instance_id TEXT,
			metric TEXT,
			outcome TEXT,
			duration_ms INTEGER,
			detail TEXT)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_query_audit_ts ON metric_query_audit (ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record writes one entry. Failures are swallowed after a warning so callers
// on the serving path never depend on the audit log being writable.
func (s *Store) Record(ctx context.Context, entry Entry) {
	when := entry.Time
	if when.IsZero() {
		when = time.Now().UTC()
	}
	_, err := s.insertStmt.ExecContext(ctx,
		when.Unix(), entry.InstanceID, entry.Metric, entry.Outcome, entry.DurationMS, entry.Detail)
	if err != nil {
		s.drops.Inc()
		log.Warn("failed to record audit entry",
			zap.String("instance", entry.InstanceID),
			zap.String("metric", entry.Metric),
			zap.Error(err))
	}
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, instance_id, metric, outcome, duration_ms, detail
		 FROM metric_query_audit ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.InstanceID, &e.Metric, &e.Outcome, &e.DurationMS, &e.Detail); err != nil {
			return nil, err
		}
		e.Time = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the given instant and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM metric_query_audit WHERE ts < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Drops returns how many entries failed to record since the store opened.
func (s *Store) Drops() int64 {
	return s.drops.Load()
}

func (s *Store) Close() error {
	return s.db.Close()
}
