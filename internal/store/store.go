// Package store keeps an SQLite catalog of finalized event logs for
// analysis. The live session never writes here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/octomike/sp-experiment/internal/action"
	"github.com/octomike/sp-experiment/internal/eventlog"
	"github.com/octomike/sp-experiment/internal/model"
	"github.com/octomike/sp-experiment/internal/payoff"
	"github.com/octomike/sp-experiment/internal/trigger"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrAlreadyImported is returned when a log path is already in the catalog.
var ErrAlreadyImported = errors.New("log already imported")

// Store wraps SQLite access for imported sessions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			imported_at TEXT NOT NULL,
			version TEXT NOT NULL,
			trials INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			resets INTEGER NOT NULL,
			premature_stops INTEGER NOT NULL,
			forced_stops INTEGER NOT NULL,
			total_reward REAL NOT NULL,
			mean_rt REAL NOT NULL,
			duration REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			onset REAL,
			duration REAL NOT NULL,
			trial INTEGER,
			action_type TEXT,
			action INTEGER,
			outcome REAL,
			response_time REAL,
			event_value INTEGER,
			mag0_1 REAL, prob0_1 REAL, mag0_2 REAL, prob0_2 REAL,
			mag1_1 REAL, prob1_1 REAL, mag1_2 REAL, prob1_2 REAL,
			version TEXT NOT NULL,
			reset INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS trials (
			session_id TEXT NOT NULL,
			trial INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			resets INTEGER NOT NULL,
			final_option INTEGER NOT NULL,
			final_outcome REAL NOT NULL,
			ev0 REAL NOT NULL,
			ev1 REAL NOT NULL,
			chose_better INTEGER NOT NULL,
			PRIMARY KEY (session_id, trial)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_imported_at ON sessions(imported_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ImportSession stores a finalized log with its summaries and returns the
// new session id.
func (s *Store) ImportSession(ctx context.Context, sum model.SessionSummary, trials []model.TrialSummary, recs []eventlog.Record) (id string, err error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE path = ?`, sum.Path).Scan(&exists); err != nil {
		return "", err
	}
	if exists > 0 {
		return "", fmt.Errorf("%w: %s", ErrAlreadyImported, sum.Path)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	id = uuid.NewString()
	importedAt := sum.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, subject, path, imported_at, version, trials, samples, resets, premature_stops, forced_stops, total_reward, mean_rt, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sum.Subject, sum.Path, importedAt.UTC().Format(timeLayout), sum.Version,
		sum.Trials, sum.Samples, sum.Resets, sum.PrematureStops, sum.ForcedStops,
		sum.TotalReward, sum.MeanRT, sum.Duration,
	)
	if err != nil {
		return "", err
	}
	if err = insertEvents(ctx, tx, id, recs); err != nil {
		return "", err
	}
	if err = insertTrials(ctx, tx, id, trials); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, id string, recs []eventlog.Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (session_id, seq, onset, duration, trial, action_type, action, outcome, response_time, event_value,
			mag0_1, prob0_1, mag0_2, prob0_2, mag1_1, prob1_1, mag1_2, prob1_2, version, reset)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()
	for _, r := range recs {
		args := []any{id, r.Seq, nullFloat(r.Onset), r.Duration, nullInt(r.Trial)}
		if r.Action != nil {
			args = append(args, string(r.Action.Type), r.Action.Index)
		} else {
			args = append(args, nil, nil)
		}
		args = append(args, nullFloat(r.Outcome), nullFloat(r.ResponseTime))
		if r.Trigger != trigger.None {
			args = append(args, int(r.Trigger))
		} else {
			args = append(args, nil)
		}
		for i := 0; i < len(payoff.ColumnNames); i++ {
			if r.Columns != nil {
				args = append(args, r.Columns[i])
			} else {
				args = append(args, nil)
			}
		}
		args = append(args, r.Version, r.Reset)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func insertTrials(ctx context.Context, tx *sql.Tx, id string, trials []model.TrialSummary) error {
	for _, t := range trials {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trials (session_id, trial, samples, resets, final_option, final_outcome, ev0, ev1, chose_better)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, t.Trial, t.Samples, t.Resets, t.FinalOption, t.FinalOutcome,
			t.ExpectedValue[0], t.ExpectedValue[1], t.ChoseBetter,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListSessions returns sessions filtered by cfg, oldest import first.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.SessionSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Subject != "" {
		clauses = append(clauses, "subject = ?")
		args = append(args, cfg.Subject)
	}
	if cfg.Since != nil {
		clauses = append(clauses, "imported_at >= ?")
		args = append(args, cfg.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT id, subject, path, imported_at, version, trials, samples, resets,
		premature_stops, forced_stops, total_reward, mean_rt, duration
		FROM sessions
		WHERE %s
		ORDER BY imported_at ASC, id ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var sessions []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		var importedAt string
		if err := rows.Scan(&sum.ID, &sum.Subject, &sum.Path, &importedAt, &sum.Version, &sum.Trials, &sum.Samples,
			&sum.Resets, &sum.PrematureStops, &sum.ForcedStops, &sum.TotalReward, &sum.MeanRT, &sum.Duration); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(timeLayout, importedAt)
		if err != nil {
			return nil, err
		}
		sum.ImportedAt = parsed
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	return sessions, nil
}

// TrialSummaries returns the trials of the given sessions in session then
// trial order.
func (s *Store) TrialSummaries(ctx context.Context, sessionIDs []string) ([]model.TrialSummary, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sessionIDs))
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT t.session_id, t.trial, t.samples, t.resets, t.final_option, t.final_outcome, t.ev0, t.ev1, t.chose_better
		FROM trials t
		JOIN sessions s ON s.id = t.session_id
		WHERE t.session_id IN (%s)
		ORDER BY s.imported_at ASC, t.session_id ASC, t.trial ASC`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.TrialSummary
	for rows.Next() {
		var t model.TrialSummary
		if err := rows.Scan(&t.SessionID, &t.Trial, &t.Samples, &t.Resets, &t.FinalOption, &t.FinalOutcome,
			&t.ExpectedValue[0], &t.ExpectedValue[1], &t.ChoseBetter); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEvents returns the records of a session in Seq order.
func (s *Store) GetEvents(ctx context.Context, sessionID string) ([]eventlog.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, onset, duration, trial, action_type, action, outcome, response_time, event_value,
			mag0_1, prob0_1, mag0_2, prob0_2, mag1_1, prob1_1, mag1_2, prob1_2, version, reset
		 FROM events WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var recs []eventlog.Record
	for rows.Next() {
		var (
			r            eventlog.Record
			onset        sql.NullFloat64
			trial        sql.NullInt64
			actionType   sql.NullString
			actionIndex  sql.NullInt64
			outcome      sql.NullFloat64
			responseTime sql.NullFloat64
			eventValue   sql.NullInt64
			cols         [8]sql.NullFloat64
		)
		if err := rows.Scan(&r.Seq, &onset, &r.Duration, &trial, &actionType, &actionIndex, &outcome, &responseTime, &eventValue,
			&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7], &r.Version, &r.Reset); err != nil {
			return nil, err
		}
		r.Onset = floatPtr(onset)
		r.Outcome = floatPtr(outcome)
		r.ResponseTime = floatPtr(responseTime)
		if trial.Valid {
			r.Trial = eventlog.Ptr(int(trial.Int64))
		}
		if actionType.Valid && actionIndex.Valid {
			r.Action = &action.Action{Type: action.Type(actionType.String), Index: int(actionIndex.Int64)}
		}
		if eventValue.Valid {
			r.Trigger = trigger.Trigger(eventValue.Int64)
		}
		if cols[0].Valid {
			var c payoff.Columns
			for i := range cols {
				c[i] = cols[i].Float64
			}
			r.Columns = &c
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("session %s has no events", sessionID)
	}
	return recs, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
