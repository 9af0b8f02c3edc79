package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maltedev/crosslist/internal/database"
	"github.com/maltedev/crosslist/internal/jobs"
	"github.com/maltedev/crosslist/internal/pipeline"
	"github.com/maltedev/crosslist/internal/proxy"
	"github.com/maltedev/crosslist/internal/resilience"
	"github.com/maltedev/crosslist/internal/scraper"
)

// ConversionStore reads persisted conversion outcomes. Nil means the
// service runs without persistence and only in-memory jobs are served.
type ConversionStore interface {
	GetConversion(ctx context.Context, id uuid.UUID) (*database.ConversionRecord, error)
	ListConversionsByJob(ctx context.Context, jobID uuid.UUID) ([]*database.ConversionRecord, error)
}

type Handlers struct {
	pipeline *pipeline.Pipeline
	jobs     *jobs.Manager
	proxies  *proxy.Pool
	store    ConversionStore
	logger   *slog.Logger
}

func NewHandlers(p *pipeline.Pipeline, jobManager *jobs.Manager, proxies *proxy.Pool, store ConversionStore) *Handlers {
	return &Handlers{
		pipeline: p,
		jobs:     jobManager,
		proxies:  proxies,
		store:    store,
		logger:   slog.Default().With("component", "api"),
	}
}

// PreviewRequest asks for a scrape-and-normalize pass without a draft.
type PreviewRequest struct {
	URL string `json:"url"`
}

// Preview handles preview requests.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	product, err := h.pipeline.Preview(r.Context(), req.URL)
	if err != nil {
		status, message := classifyScrapeError(err)
		h.logger.Error("preview failed", "url", req.URL, "error", err)
		h.respondError(w, status, message)
		return
	}

	h.respondJSON(w, http.StatusOK, product)
}

// Convert handles single-URL conversions synchronously.
func (h *Handlers) Convert(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	result := h.pipeline.Convert(r.Context(), req)
	h.respondJSON(w, http.StatusOK, result)
}

// CreateJob starts a bulk conversion batch.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		h.respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	job, err := h.jobs.Submit(req)
	if err != nil {
		h.logger.Error("failed to submit job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	view, _ := h.jobs.Snapshot(job.ID)
	h.respondJSON(w, http.StatusCreated, view)
}

// GetJob returns a job snapshot.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	view, found := h.jobs.Snapshot(id)
	if !found {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// GetJobResults returns the per-URL results resolved so far. Jobs that
// are no longer in memory are served from the store, so results survive
// a restart.
func (h *Handlers) GetJobResults(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if job, found := h.jobs.Get(id); found {
		h.respondJSON(w, http.StatusOK, job.Results())
		return
	}
	if h.store == nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	records, err := h.store.ListConversionsByJob(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load job results", "job_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load job results")
		return
	}
	if len(records) == 0 {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	results := make([]*pipeline.ConversionResult, 0, len(records))
	for _, rec := range records {
		res := &pipeline.ConversionResult{}
		if err := json.Unmarshal(rec.Result, res); err != nil {
			h.logger.Error("failed to decode stored result", "conversion_id", rec.ID, "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to decode stored result")
			return
		}
		results = append(results, res)
	}
	h.respondJSON(w, http.StatusOK, results)
}

// GetConversion returns one persisted conversion record.
func (h *Handlers) GetConversion(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversionID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid conversion ID")
		return
	}
	if h.store == nil {
		h.respondError(w, http.StatusNotFound, "conversion not found")
		return
	}

	rec, err := h.store.GetConversion(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "conversion not found")
			return
		}
		h.logger.Error("failed to load conversion", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load conversion")
		return
	}
	h.respondJSON(w, http.StatusOK, rec)
}

// ListJobs returns snapshots of every known job.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

// CancelJob stops a running job.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if !h.jobs.Cancel(id) {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ProxyHealth reports pool counters.
func (h *Handlers) ProxyHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.proxies.Health())
}

// ReactivateProxies force-reactivates every dead proxy.
func (h *Handlers) ReactivateProxies(w http.ResponseWriter, r *http.Request) {
	count := h.proxies.ReactivateAll()
	h.logger.Info("proxies reactivated via api", "count", count)
	h.respondJSON(w, http.StatusOK, map[string]int{"reactivated": count})
}

// ScraperStatus reports per-marketplace breaker state.
type ScraperStatus struct {
	Source          string  `json:"source"`
	BreakerState    string  `json:"breaker_state"`
	CooldownSeconds float64 `json:"cooldown_seconds,omitempty"`
}

// Scrapers lists registered marketplaces and their breaker state.
func (h *Handlers) Scrapers(w http.ResponseWriter, r *http.Request) {
	scrapers := h.pipeline.Registry().Scrapers()
	statuses := make([]ScraperStatus, 0, len(scrapers))
	for _, s := range scrapers {
		statuses = append(statuses, ScraperStatus{
			Source:          string(s.Source()),
			BreakerState:    string(s.Breaker().State()),
			CooldownSeconds: s.Breaker().CooldownRemaining().Seconds(),
		})
	}
	h.respondJSON(w, http.StatusOK, statuses)
}

// Health is the liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sources": h.pipeline.Registry().Sources(),
	})
}

func (h *Handlers) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid job ID")
		return uuid.Nil, false
	}
	return id, true
}

// classifyScrapeError maps scrape failures to HTTP statuses: bad input is
// the caller's fault, an open breaker is a temporary outage, everything
// else is an upstream failure.
func classifyScrapeError(err error) (int, string) {
	var unsupportedURL *pipeline.UnsupportedMarketplaceError
	var unsupportedSource *scraper.UnsupportedSourceError
	var open *resilience.OpenError

	switch {
	case errors.As(err, &unsupportedURL), errors.As(err, &unsupportedSource):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &open):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
