package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/NasaVasa/stockpulse/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type EngineView interface {
	LatestSummary() (domain.CycleSummary, bool)
	AlertState(alertID uint) (usecase.AlertRuntimeState, bool)
	States() []usecase.AlertRuntimeState
}

type SummaryStore interface {
	LatestCycleSummary(ctx context.Context) (*domain.CycleSummary, error)
}

type Server struct {
	router     *chi.Mux
	server     *http.Server
	engine     EngineView
	summaries  SummaryStore
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewServer builds the operator API. A cycle older than staleAfter makes
// /healthz report unhealthy.
func NewServer(addr string, allowedOrigins []string, engine EngineView, summaries SummaryStore, staleAfter time.Duration, logger *zap.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		engine:     engine,
		summaries:  summaries,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "http")),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(15 * time.Second))
	if len(allowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/cycles/latest", s.handleLatestCycle)
	s.router.Route("/alerts", func(r chi.Router) {
		r.Get("/state", s.handleStates)
		r.Get("/{alertID}/state", s.handleState)
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.engine.LatestSummary()
	if !ok {
		writeJSON(w, http.StatusOK, healthResponse{Status: "starting"})
		return
	}
	response := healthResponse{Status: "ok", LastCycleID: summary.ID, LastCycleAt: &summary.FinishedAt}
	if s.staleAfter > 0 && s.now().Sub(summary.FinishedAt) > s.staleAfter {
		response.Status = "stale"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleLatestCycle(w http.ResponseWriter, r *http.Request) {
	if summary, ok := s.engine.LatestSummary(); ok {
		writeJSON(w, http.StatusOK, toSummaryResponse(summary))
		return
	}
	if s.summaries == nil {
		writeError(w, http.StatusNotFound, "no cycle completed yet")
		return
	}
	summary, err := s.summaries.LatestCycleSummary(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no cycle completed yet")
		return
	}
	if err != nil {
		s.logger.Warn("failed to load latest cycle summary", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load cycle summary")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(*summary))
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	states := s.engine.States()
	response := make([]stateResponse, 0, len(states))
	for _, state := range states {
		response = append(response, toStateResponse(state))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	alertID, err := strconv.ParseUint(chi.URLParam(r, "alertID"), 10, 64)
	if err != nil || alertID == 0 {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	state, ok := s.engine.AlertState(uint(alertID))
	if !ok {
		writeError(w, http.StatusNotFound, "alert not tracked")
		return
	}
	writeJSON(w, http.StatusOK, toStateResponse(state))
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(
			"http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
