package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the phase scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		// The scheduler drives the phases; the API triggers sync and one-off
		// runs and serves the review surface.
		go env.newScheduler().Run(ctx)

		router := newRouter(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := env.Store.Ping(r.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sync", func(w http.ResponseWriter, r *http.Request) {
		report, err := env.newSyncer().Sync(r.Context(), time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/phases/{phase}/run", func(w http.ResponseWriter, r *http.Request) {
		phase, ok := model.ParsePhase(chi.URLParam(r, "phase"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown phase"})
			return
		}
		report, err := env.Pipeline.RunPhase(r.Context(), phase)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Get("/questions/{fingerprint}", func(w http.ResponseWriter, r *http.Request) {
		q, err := env.Store.GetQuestion(r.Context(), chi.URLParam(r, "fingerprint"))
		if err != nil {
			writeError(w, err)
			return
		}
		answers, err := env.Store.AnswersFor(r.Context(), q.Fingerprint)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"question": q,
			"answers":  answers,
		})
	})

	r.Post("/questions/{fingerprint}/requeue", func(w http.ResponseWriter, r *http.Request) {
		fp := chi.URLParam(r, "fingerprint")
		if err := env.Store.Requeue(r.Context(), fp); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"fingerprint": fp, "status": "requeued"})
	})

	r.Post("/questions/{fingerprint}/reclassify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			NewClassification string `json:"new_classification"`
			Reason            string `json:"reason"`
			Actor             string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.NewClassification == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "new_classification is required"})
			return
		}

		fp := chi.URLParam(r, "fingerprint")
		q, err := env.Store.GetQuestion(r.Context(), fp)
		if err != nil {
			writeError(w, err)
			return
		}
		old := ""
		if q.Classification != nil {
			old = *q.Classification
		}
		rec := model.Reclassification{
			Fingerprint:       fp,
			OldClassification: old,
			NewClassification: req.NewClassification,
			Reason:            req.Reason,
			Actor:             req.Actor,
		}
		if err := env.Store.Reclassify(r.Context(), rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"fingerprint": fp, "classification": req.NewClassification})
	})

	r.Delete("/questions/{fingerprint}", func(w http.ResponseWriter, r *http.Request) {
		fp := chi.URLParam(r, "fingerprint")
		if err := env.Store.SoftDelete(r.Context(), fp); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"fingerprint": fp, "status": "deleted"})
	})

	r.Post("/badcases/{fingerprint}/review", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Review string `json:"review"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		review := model.ReviewStatus(req.Review)
		switch review {
		case model.ReviewPending, model.ReviewApproved, model.ReviewRejected:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "review must be pending, approved or rejected"})
			return
		}

		fp := chi.URLParam(r, "fingerprint")
		if err := env.Store.SetBadcaseReview(r.Context(), fp, review); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"fingerprint": fp, "review": req.Review})
	})

	r.Get("/badcases", func(w http.ResponseWriter, r *http.Request) {
		filter := store.BadcaseFilter{
			Review: model.ReviewStatus(r.URL.Query().Get("review")),
			Limit:  queryInt(r, "limit", 50),
			Offset: queryInt(r, "offset", 0),
		}
		cases, err := env.Store.ListBadcases(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"badcases": cases, "count": len(cases)})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
