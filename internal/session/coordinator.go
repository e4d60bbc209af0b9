// Package session orchestrates the analysis lifecycle: scrape stages,
// prediction, persistence and crash recovery.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paddock-labs/raceday-cli/internal/commentary"
	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/merge"
	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/predict"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
	"github.com/paddock-labs/raceday-cli/internal/source"
	"github.com/paddock-labs/raceday-cli/internal/store"
)

// breakerClassEnrichment is the failure class counted against the
// enrichment circuit breaker.
const breakerClassEnrichment = "enrichment_challenge"

// Source is the page-fetching surface the coordinator depends on.
// *source.Client satisfies it.
type Source interface {
	FetchOverview(ctx context.Context, track, date string) (*model.RaceCard, error)
	FetchHorseProfile(ctx context.Context, profileURL string) ([]model.PastPerformance, []model.Workout, error)
	FetchEnrichment(ctx context.Context, track, date string, raceNo int) ([]model.EnrichmentEntry, error)
}

// Coordinator drives one analysis session through its stages. Every status
// transition is persisted before the stage's work begins, so a crash leaves
// an honest record of how far the session got.
type Coordinator struct {
	store    store.Store
	src      Source
	engine   *predict.Engine
	enhancer *commentary.Enhancer
	cfg      config.SessionConfig
}

// NewCoordinator wires a Coordinator. The enhancer may be nil.
func NewCoordinator(st store.Store, src Source, engine *predict.Engine, enhancer *commentary.Enhancer, cfg config.SessionConfig) *Coordinator {
	if cfg.ProfileWorkers <= 0 {
		cfg.ProfileWorkers = 8
	}
	if cfg.GlobalTimeoutMins <= 0 {
		cfg.GlobalTimeoutMins = 30
	}
	return &Coordinator{store: st, src: src, engine: engine, enhancer: enhancer, cfg: cfg}
}

// Run executes a full analysis session and returns the terminal record.
// The returned error is non-nil only when the session could not even be
// created; scrape and analysis failures are reported through the session's
// failed status.
func (c *Coordinator) Run(ctx context.Context, run config.RunConfig) (*model.AnalysisSession, error) {
	date, err := source.NormalizeDate(run.Date)
	if err != nil {
		return nil, err
	}

	id := run.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	sess := &model.AnalysisSession{
		ID:        id,
		Track:     run.Track,
		Date:      date,
		Model:     run.Model,
		Status:    model.StatusPending,
		Stage:     "pending",
		Message:   "session created",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "create session")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.GlobalTimeoutMins)*time.Minute)
	defer cancel()

	log := zap.L().With(zap.String("session", sess.ID),
		zap.String("track", run.Track), zap.String("date", date))
	log.Info("session starting")

	card, err := c.stageOverview(ctx, sess)
	if err != nil {
		return c.fail(sess, err), nil
	}

	items := merge.BuildWorklist(card, run.MaxHorses)
	sess.HorseCount = len(items)

	items, err = c.stageProfiles(ctx, sess, items)
	if err != nil {
		return c.fail(sess, err), nil
	}
	rebuildRaces(card, items)

	enrichedRaces, err := c.stageEnrichment(ctx, sess, card, run)
	if err != nil {
		return c.fail(sess, err), nil
	}

	results, err := c.stageAnalysis(ctx, sess, card)
	if err != nil {
		return c.fail(sess, err), nil
	}

	coverage := 0.0
	if len(card.Races) > 0 {
		coverage = float64(enrichedRaces) / float64(len(card.Races)) * 100
	}

	completed := time.Now().UTC()
	sess.Status = model.StatusCompleted
	sess.Stage = "completed"
	sess.Progress = 100
	sess.Message = fmt.Sprintf("completed; enrichment coverage %.0f%%", coverage)
	sess.Results = results
	sess.CompletedAt = &completed
	sess.UpdatedAt = completed
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "persist completed session")
	}

	log.Info("session completed",
		zap.Int("races", len(results)),
		zap.Float64("enrichment_coverage_pct", coverage))
	return sess, nil
}

// Status looks up a session by ID. Unknown IDs surface as
// resilience.ErrSessionNotFound.
func (c *Coordinator) Status(ctx context.Context, id string) (*model.AnalysisSession, error) {
	return c.store.GetSession(ctx, id)
}

// List returns sessions matching the filter.
func (c *Coordinator) List(ctx context.Context, filter store.SessionFilter) ([]model.AnalysisSession, error) {
	return c.store.ListSessions(ctx, filter)
}

// transition persists the new status before any stage work runs.
func (c *Coordinator) transition(ctx context.Context, sess *model.AnalysisSession, status model.SessionStatus, progress int, message string) error {
	sess.Status = status
	sess.Stage = string(status)
	sess.Progress = progress
	sess.Message = message
	sess.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateSession(ctx, sess); err != nil {
		return eris.Wrapf(err, "persist transition to %s", status)
	}
	return nil
}

// fail marks the session failed with the error detail. Best-effort write:
// the session is handed back either way.
func (c *Coordinator) fail(sess *model.AnalysisSession, cause error) *model.AnalysisSession {
	now := time.Now().UTC()
	sess.Status = model.StatusFailed
	sess.Progress = 100
	sess.Message = "session failed during " + sess.Stage
	if eris.Is(cause, context.DeadlineExceeded) {
		sess.Message = "session timed out during " + sess.Stage
	}
	sess.ErrorDetail = cause.Error()
	sess.CompletedAt = &now
	sess.UpdatedAt = now

	// The run context may already be dead; persistence gets its own.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.UpdateSession(persistCtx, sess); err != nil {
		zap.L().Error("failed to persist session failure",
			zap.String("session", sess.ID), zap.Error(err))
	}

	zap.L().Error("session failed",
		zap.String("session", sess.ID),
		zap.String("stage", sess.Stage),
		zap.Error(cause))
	return sess
}

func (c *Coordinator) stageOverview(ctx context.Context, sess *model.AnalysisSession) (*model.RaceCard, error) {
	if err := c.transition(ctx, sess, model.StatusScrapingOverview, 10, "fetching entry card"); err != nil {
		return nil, err
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("fetch overview")
	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*model.RaceCard, error) {
		return c.src.FetchOverview(ctx, sess.Track, sess.Date)
	})
}

// stageProfiles fetches every horse profile on a bounded worker pool. The
// returned slice preserves worklist order regardless of completion order.
// Individual failures mark the horse DataIncomplete and never abort the
// session; only context death stops the stage.
func (c *Coordinator) stageProfiles(ctx context.Context, sess *model.AnalysisSession, items []merge.WorkItem) ([]merge.WorkItem, error) {
	msg := fmt.Sprintf("fetching %d horse profiles", len(items))
	if err := c.transition(ctx, sess, model.StatusScrapingProfiles, 30, msg); err != nil {
		return nil, err
	}

	out := make([]merge.WorkItem, len(items))
	copy(out, items)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.ProfileWorkers)

	for i := range out {
		if out[i].Horse.ProfileURL == "" {
			continue
		}
		g.Go(func() error {
			item := &out[i]
			retryCfg := resilience.DefaultRetryConfig()
			retryCfg.OnRetry = resilience.RetryLogger("fetch profile " + item.Horse.Name)

			var results []model.PastPerformance
			var workouts []model.Workout
			err := resilience.Do(gctx, retryCfg, func(ctx context.Context) error {
				var ferr error
				results, workouts, ferr = c.src.FetchHorseProfile(ctx, item.Horse.ProfileURL)
				return ferr
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("profile fetch failed, continuing incomplete",
					zap.String("horse", item.Horse.Name), zap.Error(err))
				item.Horse.DataIncomplete = true
				return nil
			}
			item.Horse.Results = results
			item.Horse.Workouts = workouts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// stageEnrichment fetches the picks page race by race, gated by a sticky
// per-session circuit breaker. A tripped breaker skips every remaining race.
// Returns the number of races that got enrichment data.
func (c *Coordinator) stageEnrichment(ctx context.Context, sess *model.AnalysisSession, card *model.RaceCard, run config.RunConfig) (int, error) {
	if err := c.transition(ctx, sess, model.StatusScrapingEnrichment, 55, "fetching race enrichment"); err != nil {
		return 0, err
	}

	threshold := run.BreakerThreshold
	if threshold <= 0 {
		threshold = c.cfg.BreakerThreshold
	}
	breaker := resilience.NewClassBreaker(threshold, resilience.WithOnTrip(func(class string) {
		zap.L().Warn("circuit breaker tripped, skipping remaining enrichment",
			zap.String("session", sess.ID), zap.String("class", class))
	}))

	enriched := 0
	for i := range card.Races {
		race := &card.Races[i]
		if breaker.IsTripped(breakerClassEnrichment) {
			break
		}
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}

		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger(fmt.Sprintf("fetch enrichment race %d", race.Number))
		entries, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]model.EnrichmentEntry, error) {
			return c.src.FetchEnrichment(ctx, sess.Track, sess.Date, race.Number)
		})
		if err != nil {
			if ctx.Err() != nil {
				return enriched, ctx.Err()
			}
			if resilience.IsChallenge(err) || resilience.IsProviderError(err) {
				breaker.RecordFailure(breakerClassEnrichment)
			}
			zap.L().Warn("enrichment fetch failed, race proceeds without it",
				zap.Int("race", race.Number), zap.Error(err))
			continue
		}

		breaker.RecordSuccess(breakerClassEnrichment)
		if len(entries) > 0 {
			race.Horses = merge.Merge(race.Horses, entries, merge.DefaultDivergenceTolerance)
			enriched++
		}
	}
	return enriched, nil
}

func (c *Coordinator) stageAnalysis(ctx context.Context, sess *model.AnalysisSession, card *model.RaceCard) ([]model.PredictionResult, error) {
	if err := c.transition(ctx, sess, model.StatusAnalyzing, 80, "scoring races"); err != nil {
		return nil, err
	}

	results := make([]model.PredictionResult, 0, len(card.Races))
	for _, race := range card.Races {
		if len(race.Horses) == 0 {
			continue
		}
		results = append(results, c.engine.PredictRace(race))
	}

	c.enhancer.Enhance(ctx, results)
	return results, nil
}

// rebuildRaces replaces each race's horses with the post-profile worklist
// entries, preserving the card's race and entry order.
func rebuildRaces(card *model.RaceCard, items []merge.WorkItem) {
	byRace := map[int][]model.Horse{}
	for _, item := range items {
		byRace[item.RaceNumber] = append(byRace[item.RaceNumber], item.Horse)
	}
	for i := range card.Races {
		if horses, ok := byRace[card.Races[i].Number]; ok {
			card.Races[i].Horses = horses
		}
	}
}
