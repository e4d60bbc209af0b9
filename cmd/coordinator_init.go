package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/commentary"
	"github.com/paddock-labs/raceday-cli/internal/predict"
	"github.com/paddock-labs/raceday-cli/internal/session"
	"github.com/paddock-labs/raceday-cli/internal/source"
	"github.com/paddock-labs/raceday-cli/internal/store"
	"github.com/paddock-labs/raceday-cli/pkg/anthropic"
	"github.com/paddock-labs/raceday-cli/pkg/twocaptcha"
)

// coordinatorEnv holds the store, clients, and coordinator needed by the
// analyze and serve commands.
type coordinatorEnv struct {
	Store       store.Store
	Coordinator *session.Coordinator
}

// Close releases resources held by the environment.
func (ce *coordinatorEnv) Close() {
	if ce.Store != nil {
		_ = ce.Store.Close()
	}
}

// initCoordinator sets up the store, scrape client, prediction engine, and
// optional commentary layer, then marks any sessions orphaned by a previous
// process as interrupted. Callers should defer env.Close().
func initCoordinator(ctx context.Context) (*coordinatorEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var gate twocaptcha.Client
	if cfg.TwoCaptcha.Key != "" {
		gate = twocaptcha.NewClient(cfg.TwoCaptcha.Key, twocaptcha.WithBaseURL(cfg.TwoCaptcha.BaseURL))
	} else {
		zap.L().Debug("RACEDAY_TWOCAPTCHA_KEY not set, challenge solving disabled")
	}

	src, err := source.New(cfg.Source, gate)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init source client")
	}

	weights := predict.DefaultWeights()
	if cfg.Predict.WeightsFile != "" {
		weights, err = predict.LoadWeights(cfg.Predict.WeightsFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load weights")
		}
	}
	engine, err := predict.NewEngine(weights)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init prediction engine")
	}

	var enhancer *commentary.Enhancer
	if cfg.Anthropic.Key != "" {
		enhancer = commentary.NewEnhancer(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
		zap.L().Info("commentary enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("RACEDAY_ANTHROPIC_KEY not set, commentary disabled")
	}

	coord := session.NewCoordinator(st, src, engine, enhancer, cfg.Session)

	recovered, err := coord.RecoverInterrupted(ctx)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "recover interrupted sessions")
	}
	if len(recovered) > 0 {
		zap.L().Warn("marked orphaned sessions interrupted", zap.Int("count", len(recovered)))
	}

	return &coordinatorEnv{Store: st, Coordinator: coord}, nil
}
