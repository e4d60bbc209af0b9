package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_sessions (
	id           TEXT PRIMARY KEY,
	track        TEXT NOT NULL,
	race_date    TEXT NOT NULL,
	model        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	stage        TEXT NOT NULL DEFAULT '',
	progress     INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	horse_count  INTEGER NOT NULL DEFAULT 0,
	error_detail TEXT NOT NULL DEFAULT '',
	results      TEXT,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON analysis_sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_track_date ON analysis_sessions(track, race_date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *model.AnalysisSession) error {
	resultsJSON, err := marshalResults(sess.Results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_sessions
		 (id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Track, sess.Date, sess.Model, string(sess.Status), sess.Stage,
		sess.Progress, sess.Message, sess.HorseCount, sess.ErrorDetail, resultsJSON,
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *model.AnalysisSession) error {
	resultsJSON, err := marshalResults(sess.Results)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_sessions SET
		 status = ?, stage = ?, progress = ?, message = ?, horse_count = ?,
		 error_detail = ?, results = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(sess.Status), sess.Stage, sess.Progress, sess.Message, sess.HorseCount,
		sess.ErrorDetail, resultsJSON, time.Now().UTC(), sess.CompletedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	return checkRowsAffected(res, sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.AnalysisSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
		 FROM analysis_sessions WHERE id = ?`,
		id,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.AnalysisSession, error) {
	query := `SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
	          FROM analysis_sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Track != "" {
		query += ` AND track = ?`
		args = append(args, filter.Track)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (s *SQLiteStore) ListUnterminated(ctx context.Context) ([]model.AnalysisSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
		 FROM analysis_sessions
		 WHERE status NOT IN ('completed', 'failed', 'interrupted')
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unterminated")
	}
	defer rows.Close()

	return collectSessions(rows)
}

// helpers

func marshalResults(results []model.PredictionResult) (sql.NullString, error) {
	if len(results) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(results)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "store: marshal results")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(resilience.ErrSessionNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.AnalysisSession, error) {
	var sess model.AnalysisSession
	var status string
	var resultsJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.Track, &sess.Date, &sess.Model, &status, &sess.Stage,
		&sess.Progress, &sess.Message, &sess.HorseCount, &sess.ErrorDetail, &resultsJSON,
		&sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, resilience.ErrSessionNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan session")
	}

	sess.Status = model.SessionStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &sess.Results); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal results")
		}
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]model.AnalysisSession, error) {
	var sessions []model.AnalysisSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, eris.Wrap(rows.Err(), "store: iterate sessions")
}
