// Package httpapi exposes the orchestrator over HTTP.
//
// Routes:
//
//	POST /optimize            allocate capital across requested symbols
//	GET  /predictions         model outputs, optionally ?symbols=A,B
//	POST /retrain             rebuild the model snapshot now
//	GET  /health              liveness
//	GET  /status              training status and uptime
//	GET  /metrics             Prometheus metrics
//	GET  /ws/predictions      snapshot stream (WebSocket)
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/observability"
	"rwa-portfolio-lab/internal/orchestrator"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers.
type Server struct {
	orch    *orchestrator.Orchestrator
	stream  http.Handler
	started time.Time
	logger  zerolog.Logger
}

// New creates the API over orch. stream serves /ws/predictions and may be nil.
func New(orch *orchestrator.Orchestrator, stream http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		orch:    orch,
		stream:  stream,
		started: time.Now(),
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Handler returns the routed handler with request logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "POST /optimize", "/optimize", s.handleOptimize)
	s.handle(mux, "GET /predictions", "/predictions", s.handlePredictions)
	s.handle(mux, "POST /retrain", "/retrain", s.handleRetrain)
	s.handle(mux, "GET /status", "/status", s.handleStatus)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	if s.stream != nil {
		mux.Handle("GET /ws/predictions", s.stream)
	}
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		h(rec, r.WithContext(s.logger.With().Str("request_id", reqID).Logger().WithContext(r.Context())))

		observability.RecordHTTPRequest(route, rec.code)
		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.code).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// PredictionsResponse is the body of /predictions.
type PredictionsResponse struct {
	Predictions []domain.Prediction `json:"predictions"`
}

// RetrainResponse is the body of a successful /retrain call.
type RetrainResponse struct {
	SnapshotID string    `json:"snapshot_id"`
	TrainedAt  time.Time `json:"trained_at"`
	Records    int       `json:"records"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status   string              `json:"status"`
	Uptime   string              `json:"uptime"`
	Started  time.Time           `json:"started"`
	Training orchestrator.Status `json:"training"`
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req domain.OptimizeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "input"})
		return
	}

	alloc, err := s.orch.Optimize(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	preds, err := s.orch.Predictions(r.Context(), ParseSymbols(r.URL.Query().Get("symbols")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if preds == nil {
		preds = []domain.Prediction{}
	}
	writeJSON(w, http.StatusOK, PredictionsResponse{Predictions: preds})
}

func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Train(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RetrainResponse{
		SnapshotID: snap.ID,
		TrainedAt:  snap.TrainedAt,
		Records:    len(snap.Symbols()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   "running",
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Started:  s.started,
		Training: s.orch.Status(),
	})
}

// ParseSymbols splits a comma separated symbol list, dropping blanks.
func ParseSymbols(raw string) []string {
	var out []string
	for _, sym := range strings.Split(raw, ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			out = append(out, sym)
		}
	}
	return out
}

// StatusFor maps a pipeline error to an HTTP status and error kind.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrUnknownSymbols):
		return http.StatusUnprocessableEntity, "input"
	case errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest, "input"
	case errors.Is(err, domain.ErrData):
		return http.StatusBadRequest, "data"
	case errors.Is(err, domain.ErrModel):
		return http.StatusInternalServerError, "model"
	case errors.Is(err, domain.ErrConvergence):
		return http.StatusInternalServerError, "convergence"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := StatusFor(err)
	logger := zerolog.Ctx(r.Context())
	var ev *zerolog.Event
	if code >= http.StatusInternalServerError {
		ev = logger.Error()
	} else {
		ev = logger.Warn()
	}
	ev.Err(err).Str("kind", kind).Int("status", code).Msg("request failed")
	writeJSON(w, code, ErrorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
