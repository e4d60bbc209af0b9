package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession() *model.AnalysisSession {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.AnalysisSession{
		ID:        uuid.New().String(),
		Track:     "DMR",
		Date:      "09/05/2025",
		Model:     "claude-sonnet-4-5-20250929",
		Status:    model.StatusPending,
		Stage:     "created",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession()

	require.NoError(t, s.CreateSession(context.Background(), sess))

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "DMR", got.Track)
	assert.Equal(t, "09/05/2025", got.Date)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLiteStore_GetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrSessionNotFound))
}

func TestSQLiteStore_UpdateSession(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession()
	require.NoError(t, s.CreateSession(context.Background(), sess))

	done := time.Now().UTC().Truncate(time.Second)
	sess.Status = model.StatusCompleted
	sess.Stage = "done"
	sess.Progress = 100
	sess.HorseCount = 42
	sess.CompletedAt = &done
	sess.Results = []model.PredictionResult{{
		RaceNumber: 1,
		Rankings: []model.HorsePrediction{
			{HorseName: "Goatski", Program: "2", CompositeScore: 71.4, WinProbability: 0.41, Rank: 1},
		},
		Rationale:          "speed edge",
		EnrichmentCoverage: 1.0,
	}}
	require.NoError(t, s.UpdateSession(context.Background(), sess))

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 42, got.HorseCount)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Goatski", got.Results[0].Rankings[0].HorseName)
}

func TestSQLiteStore_UpdateSession_NotFound(t *testing.T) {
	s := newTestStore(t)
	sess := newTestSession()

	err := s.UpdateSession(context.Background(), sess)
	require.Error(t, err)
	assert.True(t, eris.Is(err, resilience.ErrSessionNotFound))
}

func TestSQLiteStore_ListSessions_Filter(t *testing.T) {
	s := newTestStore(t)

	a := newTestSession()
	require.NoError(t, s.CreateSession(context.Background(), a))

	b := newTestSession()
	b.Track = "SA"
	b.Status = model.StatusCompleted
	require.NoError(t, s.CreateSession(context.Background(), b))

	all, err := s.ListSessions(context.Background(), SessionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := s.ListSessions(context.Background(), SessionFilter{Status: model.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, b.ID, completed[0].ID)

	dmr, err := s.ListSessions(context.Background(), SessionFilter{Track: "DMR"})
	require.NoError(t, err)
	require.Len(t, dmr, 1)
	assert.Equal(t, a.ID, dmr[0].ID)
}

func TestSQLiteStore_ListUnterminated(t *testing.T) {
	s := newTestStore(t)

	running := newTestSession()
	running.Status = model.StatusScrapingProfiles
	require.NoError(t, s.CreateSession(context.Background(), running))

	for _, terminal := range []model.SessionStatus{model.StatusCompleted, model.StatusFailed, model.StatusInterrupted} {
		sess := newTestSession()
		sess.Status = terminal
		require.NoError(t, s.CreateSession(context.Background(), sess))
	}

	open, err := s.ListUnterminated(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, running.ID, open[0].ID)
	assert.Equal(t, model.StatusScrapingProfiles, open[0].Status)
}
