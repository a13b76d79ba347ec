// Package api exposes the job-processing pipeline over HTTP: job submission
// with multipart uploads, status polling, and health checks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/store"
)

const (
	maxUploadBytes   = 64 << 20
	defaultMaxPhotos = 20
)

// JobRunner executes one job through the pipeline. Implemented by the
// orchestrator; faked in tests.
type JobRunner interface {
	Run(ctx context.Context, job *core.Job) *core.OrchestratorResult
}

// Server is the HTTP API over the job store and pipeline.
type Server struct {
	store     *store.Store
	runner    JobRunner
	log       *logging.Logger
	maxPhotos int
	origins   []string
}

// Option configures a Server.
type Option func(*Server)

// WithMaxPhotos overrides the per-job photo limit.
func WithMaxPhotos(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPhotos = n
		}
	}
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates the API server.
func NewServer(st *store.Store, runner JobRunner, log *logging.Logger, opts ...Option) *Server {
	s := &Server{
		store:     st,
		runner:    runner,
		log:       log.With("component", "api"),
		maxPhotos: defaultMaxPhotos,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	return c.Handler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, core.ErrValidation(core.CodeMissingInput, "invalid multipart request: "+err.Error()))
		return
	}

	job, err := s.jobFromForm(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.store.Create(r.Context(), job)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("job accepted",
		"job_id", job.ID,
		"photos", len(job.Photos),
		"estimate_bytes", len(job.EstimatePDF))

	go s.processJob(job)

	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []store.JobRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// processJob runs the pipeline in the background and records the outcome.
// The request context is gone by the time this runs; the pipeline gets its
// own.
func (s *Server) processJob(job *core.Job) {
	ctx := context.Background()
	if err := s.store.SetStatus(ctx, job.ID, core.StatusProcessing); err != nil {
		s.log.Error("failed to mark job processing", "job_id", job.ID, "error", err)
	}

	result := s.runner.Run(ctx, job)

	if err := s.store.SaveResult(ctx, job.ID, result); err != nil {
		s.log.Error("failed to persist job result", "job_id", job.ID, "error", err)
	}
}

func (s *Server) jobFromForm(r *http.Request) (*core.Job, error) {
	form := r.MultipartForm

	job := &core.Job{
		ID: uuid.NewString(),
		Metadata: core.ClaimMetadata{
			Carrier:         r.FormValue("carrier"),
			ClaimNumber:     r.FormValue("claim_number"),
			InsuredName:     r.FormValue("insured_name"),
			PropertyAddress: r.FormValue("property_address"),
			DateOfLoss:      r.FormValue("date_of_loss"),
			PolicyNumber:    r.FormValue("policy_number"),
			AdjusterName:    r.FormValue("adjuster_name"),
			AdjusterEmail:   r.FormValue("adjuster_email"),
			AdjusterPhone:   r.FormValue("adjuster_phone"),
		},
		Costs: core.Costs{
			Materials: formFloat(r, "materials_cost"),
			Labor:     formFloat(r, "labor_cost"),
			Other:     formFloat(r, "other_costs"),
			Currency:  "USD",
		},
		Targets:        core.BusinessTargets{MinimumMargin: formFloat(r, "minimum_margin")},
		GenerateReport: r.FormValue("generate_report") != "false",
	}
	if job.Metadata.Carrier == "" {
		return nil, core.ErrValidation(core.CodeMissingInput, "carrier is required")
	}
	if job.Metadata.ClaimNumber == "" {
		return nil, core.ErrValidation(core.CodeMissingInput, "claim_number is required")
	}

	if files := form.File["estimate"]; len(files) > 0 {
		data, err := readUpload(files[0])
		if err != nil {
			return nil, err
		}
		job.EstimatePDF = data
	}

	photos := form.File["photos"]
	if len(photos) > s.maxPhotos {
		return nil, core.ErrValidation(core.CodeMissingInput,
			fmt.Sprintf("too many photos: %d (max %d)", len(photos), s.maxPhotos))
	}
	views := photoViews(r.FormValue("photo_views"), len(photos))
	for i, fh := range photos {
		data, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}
		job.Photos = append(job.Photos, core.Photo{
			ID:       fmt.Sprintf("photo-%d", i+1),
			Data:     data,
			Filename: fh.Filename,
			MIMEType: mimeType,
			View:     views[i],
		})
	}
	if len(job.Photos) == 0 {
		return nil, core.ErrValidation(core.CodeMissingInput, "at least one photo is required")
	}
	return job, nil
}

// photoViews parses the optional comma-separated photo_views field, aligned
// with upload order. Missing or unrecognized entries become ViewUnknown.
func photoViews(raw string, n int) []core.PhotoView {
	known := map[core.PhotoView]bool{
		core.ViewOverview: true, core.ViewCloseUp: true, core.ViewDamageDetail: true,
		core.ViewMeasurement: true, core.ViewBefore: true, core.ViewAfter: true,
		core.ViewAerial: true,
	}
	out := make([]core.PhotoView, n)
	parts := strings.Split(raw, ",")
	for i := range out {
		out[i] = core.ViewUnknown
		if i < len(parts) {
			if v := core.PhotoView(strings.TrimSpace(parts[i])); known[v] {
				out[i] = v
			}
		}
	}
	return out
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload %s: %w", fh.Filename, err)
	}
	return data, nil
}

func formFloat(r *http.Request, key string) float64 {
	f, _ := strconv.ParseFloat(r.FormValue(key), 64)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		code = domErr.Code
		switch domErr.Category {
		case core.ErrCatValidation, core.ErrCatConfig:
			status = http.StatusBadRequest
		case core.ErrCatNotFound:
			status = http.StatusNotFound
		case core.ErrCatRateLimit:
			status = http.StatusTooManyRequests
		}
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
