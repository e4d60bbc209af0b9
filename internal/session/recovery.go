package session

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

// RecoverInterrupted marks every session left in a non-terminal state as
// interrupted. It runs at process start, before any new work. A crashed
// session is never resumed; the caller reruns analyze to regenerate it.
// Returns the sessions that were marked.
func (c *Coordinator) RecoverInterrupted(ctx context.Context) ([]model.AnalysisSession, error) {
	stale, err := c.store.ListUnterminated(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list unterminated sessions")
	}

	now := time.Now().UTC()
	recovered := make([]model.AnalysisSession, 0, len(stale))
	for i := range stale {
		sess := stale[i]
		sess.Status = model.StatusInterrupted
		sess.Message = "interrupted by process restart during " + sess.Stage + "; rerun analyze to regenerate"
		sess.CompletedAt = &now
		sess.UpdatedAt = now

		if err := c.store.UpdateSession(ctx, &sess); err != nil {
			return recovered, eris.Wrapf(err, "mark session %s interrupted", sess.ID)
		}
		zap.L().Warn("recovered interrupted session",
			zap.String("session", sess.ID),
			zap.String("stage", sess.Stage))
		recovered = append(recovered, sess)
	}
	return recovered, nil
}
