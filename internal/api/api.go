// Package api exposes the normalization pipeline and run history over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/runner"
	"github.com/sells-group/beerprice/internal/store"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// MaxListings caps a single normalize request. Zero means 10000.
	MaxListings int
	// Timeout bounds each request. Zero means 60s.
	Timeout time.Duration
}

// Server holds handler dependencies.
type Server struct {
	runner *runner.Runner
	store  store.Store
	opts   Options
}

// NewRouter builds the HTTP handler. st may be nil, in which case the run
// endpoints answer 503 and normalize requests are never persisted.
func NewRouter(rn *runner.Runner, st store.Store, opts Options) http.Handler {
	if opts.MaxListings <= 0 {
		opts.MaxListings = 10000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{runner: rn, store: st, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/normalize", s.handleNormalize)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/listings", s.handleRunListings)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NormalizeRequest is the body of POST /v1/normalize.
type NormalizeRequest struct {
	Input    string          `json:"input,omitempty"`
	Listings []model.Listing `json:"listings"`
	Persist  bool            `json:"persist,omitempty"`
}

// NormalizeResponse is returned by POST /v1/normalize.
type NormalizeResponse struct {
	Run      *model.Run      `json:"run,omitempty"`
	Listings []model.Listing `json:"listings"`
	Summary  *model.Summary  `json:"summary"`
	Stats    model.RunStats  `json:"stats"`
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Listings) == 0 {
		writeError(w, http.StatusBadRequest, "listings is required")
		return
	}
	if len(req.Listings) > s.opts.MaxListings {
		writeError(w, http.StatusRequestEntityTooLarge, "too many listings: max "+strconv.Itoa(s.opts.MaxListings))
		return
	}
	if req.Persist && s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	// Clients send raw listings only.
	for i := range req.Listings {
		req.Listings[i] = rawOnly(req.Listings[i])
	}

	rn := s.runner
	if !req.Persist {
		rn = runner.New(s.runner.Pipeline(), nil)
	}
	input := req.Input
	if input == "" {
		input = "api"
	}

	out, err := rn.Process(r.Context(), input, req.Listings)
	if err != nil {
		zap.L().Error("api: normalize failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "normalize failed")
		return
	}

	writeJSON(w, http.StatusOK, NormalizeResponse{
		Run:      out.Run,
		Listings: out.Result.Listings,
		Summary:  out.Result.Summary,
		Stats:    out.Result.Stats,
	})
}

func rawOnly(l model.Listing) model.Listing {
	return model.Listing{
		Category:        l.Category,
		SourceReference: l.SourceReference,
		Description:     l.Description,
		Price:           l.Price,
		PromoPrice:      l.PromoPrice,
		Extra:           l.Extra,
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Input:  q.Get("input"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// RunResponse is returned by GET /v1/runs/{id}.
type RunResponse struct {
	Run     *model.Run     `json:"run"`
	Summary *model.Summary `json:"summary,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}

	summary, err := s.store.GetSummary(r.Context(), id)
	if err != nil {
		zap.L().Error("api: get summary", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get summary failed")
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Run: run, Summary: summary})
}

func (s *Server) handleRunListings(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}

	listings, err := s.store.ListListings(r.Context(), id)
	if err != nil {
		zap.L().Error("api: list listings", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list listings failed")
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return false
	}
	return true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("api: invalid integer %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
