package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"pronunciation-practice-service/internal/app"
	"pronunciation-practice-service/internal/observability/metrics"
	"pronunciation-practice-service/internal/service/scoring"
)

const maxScoreBodyBytes = 64 << 10

// ScoreRequest is the body of POST /v1/score.
type ScoreRequest struct {
	Spoken    string `json:"spoken"`
	Reference string `json:"reference"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, m *metrics.Metrics) http.Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics(m))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if application == nil || application.StartupTime.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/score", handleScore)
	})

	return r
}

func handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Reference == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reference is required"})
		return
	}

	result := scoring.Score(req.Spoken, req.Reference)

	log.Debug().
		Str("requestId", middleware.GetReqID(r.Context())).
		Int("accuracy", result.AccuracyPercent).
		Msg("Scored transcript")

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

// requestMetrics records every request by its route pattern.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			m.RecordRequest("http", r.Method+" "+route, strconv.Itoa(code), time.Since(start).Seconds())
		})
	}
}
