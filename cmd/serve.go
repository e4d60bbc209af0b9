package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
	"github.com/paddock-labs/raceday-cli/internal/store"
)

var servePort int

// analysisRunner is the coordinator surface the HTTP layer needs.
type analysisRunner interface {
	Run(ctx context.Context, run config.RunConfig) (*model.AnalysisSession, error)
	Status(ctx context.Context, id string) (*model.AnalysisSession, error)
	List(ctx context.Context, filter store.SessionFilter) ([]model.AnalysisSession, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis server",
	Long:  "Accepts analysis requests over HTTP and reports session progress to polling clients.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCoordinator(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(ctx, env.Coordinator, cfg.Anthropic.Model),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the polling API. Analysis runs asynchronously; clients
// get the session id back immediately and poll /api/status/{id}.
func buildRouter(ctx context.Context, coord analysisRunner, modelName string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/analyze", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Track            string `json:"track"`
			Date             string `json:"date"`
			MaxHorses        int    `json:"max_horses"`
			BreakerThreshold int    `json:"breaker_threshold"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Track == "" || body.Date == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "track and date are required"})
			return
		}

		id := uuid.NewString()
		go func() {
			sess, err := coord.Run(ctx, config.RunConfig{
				SessionID:        id,
				Track:            body.Track,
				Date:             body.Date,
				Model:            modelName,
				MaxHorses:        body.MaxHorses,
				BreakerThreshold: body.BreakerThreshold,
			})
			if err != nil {
				zap.L().Error("analysis request failed before session start",
					zap.String("session", id), zap.Error(err))
				return
			}
			zap.L().Info("analysis request finished",
				zap.String("session", sess.ID), zap.String("status", string(sess.Status)))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"session_id": id,
			"status":     string(model.StatusPending),
		})
	})

	r.Get("/api/status/{id}", func(w http.ResponseWriter, req *http.Request) {
		sess, err := coord.Status(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if eris.Is(err, resilience.ErrSessionNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	r.Get("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		filter := store.SessionFilter{
			Status: model.SessionStatus(req.URL.Query().Get("status")),
			Track:  req.URL.Query().Get("track"),
			Limit:  limit,
		}
		sessions, err := coord.List(req.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}
		if sessions == nil {
			sessions = []model.AnalysisSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
