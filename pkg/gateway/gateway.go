// Package gateway exposes the job lifecycle over a small local HTTP API.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/dreamina/pkg/apierr"
	"github.com/psantana5/dreamina/pkg/auth"
	"github.com/psantana5/dreamina/pkg/extract"
	"github.com/psantana5/dreamina/pkg/logging"
	"github.com/psantana5/dreamina/pkg/metrics"
	"github.com/psantana5/dreamina/pkg/middleware"
	"github.com/psantana5/dreamina/pkg/models"
	"github.com/psantana5/dreamina/pkg/orchestrator"
	"github.com/psantana5/dreamina/pkg/poller"
	"github.com/psantana5/dreamina/pkg/ratelimit"
	"github.com/psantana5/dreamina/pkg/store"
)

// MaxUploadBytes bounds POST /uploads bodies.
const MaxUploadBytes = 20 << 20

const defaultHistoryLimit = 50

// Jobs is the part of the orchestrator the gateway drives.
type Jobs interface {
	Submit(ctx context.Context, req models.JobRequest) (models.JobHandle, error)
	SubmitAndWait(ctx context.Context, req models.JobRequest, budget poller.Budget) (models.Outcome, error)
	Query(ctx context.Context, handle models.JobHandle) (models.Status, *models.RawResult, error)
}

var _ Jobs = (*orchestrator.Orchestrator)(nil)

type Options struct {
	Jobs     Jobs
	History  store.Store // optional
	Metrics  *metrics.Recorder
	Limiter  *ratelimit.Limiter
	Verifier *auth.Verifier
	Logger   *logging.Logger
	Version  string
}

type Server struct {
	jobs     Jobs
	history  store.Store
	metrics  *metrics.Recorder
	limiter  *ratelimit.Limiter
	verifier *auth.Verifier
	logger   *logging.Logger
	version  string
	started  time.Time
}

func New(opts Options) *Server {
	return &Server{
		jobs:     opts.Jobs,
		history:  opts.History,
		metrics:  opts.Metrics,
		limiter:  opts.Limiter,
		verifier: opts.Verifier,
		logger:   logging.OrDiscard(opts.Logger),
		version:  opts.Version,
		started:  time.Now(),
	}
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", s.Health).Methods("GET")
	r.HandleFunc("/models", s.Models).Methods("GET")
	r.HandleFunc("/jobs", s.CreateJob).Methods("POST")
	r.HandleFunc("/jobs/{handle}", s.GetJob).Methods("GET")
	r.HandleFunc("/uploads", s.Upload).Methods("POST")
	r.HandleFunc("/history", s.History).Methods("GET")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the routed API with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)

	r.Use(
		middleware.Recover(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		s.metrics.Middleware(routeTemplate),
		s.verifier.Middleware("/health"),
	)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware(ratelimit.IPKeyFunc))
	}
	return r
}

// HTTPServer wraps Handler for addr. Writes are not time bounded since
// ?wait=true requests last as long as the job.
func (s *Server) HTTPServer(addr string, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

// Models lists the catalog.
func (s *Server) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		ImageModels:    models.ImageModels,
		VideoModels:    models.VideoModels,
		Ratios:         models.ImageRatios,
		VideoDurations: models.VideoDurations,
		DefaultModel:   models.DefaultImageModel,
	})
}

// CreateJob submits a generation job. With ?wait=true it blocks until the
// job ends and returns the outcome with extracted results.
func (s *Server) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body jobBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, apierr.Validation("invalid request body: %v", err))
		return
	}
	req, err := body.request()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		handle, err := s.jobs.Submit(r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, submitResponse{Handle: handle, Kind: req.Kind()})
		return
	}

	budget, err := budgetFrom(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if budget != (poller.Budget{}) {
		budget = fillBudget(budget, orchestrator.DefaultBudget(req.Kind()))
	}
	out, err := s.jobs.SubmitAndWait(r.Context(), req, budget)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := outcomeResponse{Outcome: out}
	resp.Images, resp.Video = results(out.Result)
	writeJSON(w, http.StatusOK, resp)
}

// GetJob performs one status query for the handle.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	handle := models.JobHandle(mux.Vars(r)["handle"])
	st, raw, err := s.jobs.Query(r.Context(), handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := statusResponse{Handle: handle, Status: st}
	if st.Phase == models.PhaseSucceeded {
		resp.Images, resp.Video = results(raw)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload stores an image. The body is either JSON {"image_data": base64} or
// the raw image bytes.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRequest
	body := http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			s.writeError(w, r, apierr.Validation("invalid request body: %v", err))
			return
		}
	} else {
		data, err := io.ReadAll(body)
		if err != nil {
			s.writeError(w, r, apierr.Validation("reading upload: %v", err))
			return
		}
		req.Data = data
	}

	uri, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{ContentURI: uri})
}

// History lists recently submitted jobs, newest first.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history is disabled", http.StatusNotImplemented)
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, apierr.Validation("invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func results(raw *models.RawResult) ([]models.ImageDescriptor, *models.VideoResult) {
	images := extract.Images(raw)
	if v, ok := extract.Video(raw); ok {
		return images, &v
	}
	return images, nil
}

// statusFor maps an error to the HTTP status the gateway answers with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindAPI, apierr.KindProtocol:
		return http.StatusBadGateway
	case apierr.KindTransport:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Error:     err.Error(),
		Kind:      apierr.KindOf(err).String(),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		resp.Code = ae.Code
	}
	if status >= 500 {
		s.logger.Error().Err(err).Str("request_id", resp.RequestID).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
