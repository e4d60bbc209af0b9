package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, track, race_date`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrSessionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO analysis_sessions`).
		WithArgs("sess-1", "DMR", "09/05/2025", "", "pending", "created", 0, "", 0, "",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	now := time.Now().UTC()
	err := s.CreateSession(context.Background(), &model.AnalysisSession{
		ID:        "sess-1",
		Track:     "DMR",
		Date:      "09/05/2025",
		Status:    model.StatusPending,
		Stage:     "created",
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE analysis_sessions SET`).
		WithArgs("failed", "overview", 10, "", 0, "boom",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSession(context.Background(), &model.AnalysisSession{
		ID:          "missing-id",
		Status:      model.StatusFailed,
		Stage:       "overview",
		Progress:    10,
		ErrorDetail: "boom",
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrSessionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListUnterminated(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "track", "race_date", "model", "status", "stage", "progress",
		"message", "horse_count", "error_detail", "results", "created_at", "updated_at", "completed_at",
	}).AddRow("sess-2", "DMR", "09/05/2025", "", "scraping_profiles", "profiles", 40,
		"", 18, "", (*string)(nil), now, now, (*time.Time)(nil))

	mock.ExpectQuery(`WHERE status NOT IN`).
		WillReturnRows(rows)

	got, err := s.ListUnterminated(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sess-2", got[0].ID)
	assert.Equal(t, model.StatusScrapingProfiles, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
