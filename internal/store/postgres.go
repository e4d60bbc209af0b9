package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

// pgxPool is the subset of pgxpool.Pool the store uses; satisfied by
// pgxmock.PgxPoolIface in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgxPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
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
	results      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON analysis_sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_track_date ON analysis_sessions(track, race_date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *model.AnalysisSession) error {
	resultsJSON, err := marshalResults(sess.Results)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_sessions
		 (id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sess.ID, sess.Track, sess.Date, sess.Model, string(sess.Status), sess.Stage,
		sess.Progress, sess.Message, sess.HorseCount, sess.ErrorDetail, nullString(resultsJSON),
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *model.AnalysisSession) error {
	resultsJSON, err := marshalResults(sess.Results)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_sessions SET
		 status = $1, stage = $2, progress = $3, message = $4, horse_count = $5,
		 error_detail = $6, results = $7, updated_at = $8, completed_at = $9
		 WHERE id = $10`,
		string(sess.Status), sess.Stage, sess.Progress, sess.Message, sess.HorseCount,
		sess.ErrorDetail, nullString(resultsJSON), time.Now().UTC(), sess.CompletedAt, sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(resilience.ErrSessionNotFound, "id %s", sess.ID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.AnalysisSession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
		 FROM analysis_sessions WHERE id = $1`,
		id,
	)
	return scanPgSession(row)
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.AnalysisSession, error) {
	query := `SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
	          FROM analysis_sessions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Track != "" {
		query += ` AND track = ` + arg(filter.Track)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	return collectPgSessions(rows)
}

func (s *PostgresStore) ListUnterminated(ctx context.Context) ([]model.AnalysisSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, track, race_date, model, status, stage, progress, message, horse_count, error_detail, results, created_at, updated_at, completed_at
		 FROM analysis_sessions
		 WHERE status NOT IN ('completed', 'failed', 'interrupted')
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unterminated")
	}
	defer rows.Close()

	return collectPgSessions(rows)
}

// helpers

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func nullString(ns sql.NullString) any {
	if !ns.Valid {
		return nil
	}
	return ns.String
}

func scanPgSession(row pgx.Row) (*model.AnalysisSession, error) {
	var sess model.AnalysisSession
	var status string
	var resultsJSON *string
	var completedAt *time.Time

	err := row.Scan(&sess.ID, &sess.Track, &sess.Date, &sess.Model, &status, &sess.Stage,
		&sess.Progress, &sess.Message, &sess.HorseCount, &sess.ErrorDetail, &resultsJSON,
		&sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resilience.ErrSessionNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan session")
	}

	sess.Status = model.SessionStatus(status)
	sess.CompletedAt = completedAt
	if resultsJSON != nil && *resultsJSON != "" {
		if err := json.Unmarshal([]byte(*resultsJSON), &sess.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
	}
	return &sess, nil
}

func collectPgSessions(rows pgx.Rows) ([]model.AnalysisSession, error) {
	var sessions []model.AnalysisSession
	for rows.Next() {
		s, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}
