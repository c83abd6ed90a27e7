package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/seenimoa/chartscout/pkg/models"
)

// SQLiteRecorder stores runs and their candidates in a SQLite file.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database at path and migrates it.
func NewSQLiteRecorder(path string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create recorder dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", path))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			preset       TEXT,
			market       TEXT,
			listing_rows INTEGER,
			malformed    INTEGER,
			retained     INTEGER,
			sampled      INTEGER,
			evaluated    INTEGER,
			theme        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES runs(id),
			position     INTEGER NOT NULL,
			code         TEXT NOT NULL,
			name         TEXT,
			close        REAL,
			change_pct   REAL,
			volume       INTEGER,
			volume_ratio REAL,
			analysis     TEXT,
			placeholder  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// Record stores the run and its candidates in one transaction.
func (r *SQLiteRecorder) Record(ctx context.Context, run *models.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var theme string
	if !run.Theme.Empty() {
		theme = run.Theme.Text
	}
	rep := run.Report
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs
		(id, started_at, finished_at, preset, market, listing_rows, malformed, retained, sampled, evaluated, theme)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Preset, string(run.Market),
		rep.ListingRows, rep.Malformed, rep.Retained, rep.Sampled, rep.Evaluated, theme,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	analyses := make(map[string]models.Analysis, len(run.Analyses))
	for _, a := range run.Analyses {
		analyses[a.Code] = a
	}
	for i, c := range run.Candidates {
		a := analyses[c.Instrument.Code]
		if _, err := tx.ExecContext(ctx, `INSERT INTO candidates
			(run_id, position, code, name, close, change_pct, volume, volume_ratio, analysis, placeholder)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, c.Instrument.Code, c.Instrument.Name, c.Instrument.Close, c.Instrument.ChangePct,
			c.Instrument.Volume, c.VolumeRatio, a.Text, a.Placeholder,
		); err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.Instrument.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.log.Debug("run recorded", zap.String("id", run.ID), zap.Int("candidates", len(run.Candidates)))
	return nil
}

// Recent lists the newest runs first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, preset, market, sampled FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var out []models.RunSummary
	for rows.Next() {
		var (
			s       models.RunSummary
			started int64
			market  string
		)
		if err := rows.Scan(&s.ID, &started, &s.Preset, &market, &s.Sampled); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.StartedAt = time.Unix(started, 0)
		s.Market = models.Market(market)
		out = append(out, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		codes, err := r.candidateCodes(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Candidates = codes
	}
	return out, nil
}

func (r *SQLiteRecorder) candidateCodes(ctx context.Context, runID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code FROM candidates WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
