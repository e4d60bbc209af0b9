// Package store persists analysis sessions across process restarts.
package store

import (
	"context"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Track  string              `json:"track,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis sessions.
// GetSession returns resilience.ErrSessionNotFound for an unknown id so
// callers can distinguish "never existed" from internal failures.
type Store interface {
	CreateSession(ctx context.Context, s *model.AnalysisSession) error
	UpdateSession(ctx context.Context, s *model.AnalysisSession) error
	GetSession(ctx context.Context, id string) (*model.AnalysisSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.AnalysisSession, error)

	// ListUnterminated returns sessions in non-terminal states. Used at
	// process start to mark orphaned sessions interrupted.
	ListUnterminated(ctx context.Context) ([]model.AnalysisSession, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
