package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/health-insight/internal/application"
	appexams "github.com/bryanwahyu/health-insight/internal/application/exams"
	appinsights "github.com/bryanwahyu/health-insight/internal/application/insights"
	domai "github.com/bryanwahyu/health-insight/internal/domain/ai"
	"github.com/bryanwahyu/health-insight/internal/domain/exams"
	"github.com/bryanwahyu/health-insight/internal/domain/insights"
	"github.com/bryanwahyu/health-insight/internal/middleware"
)

const maxUploadBytes = 20 << 20

// Options carries the cross-cutting pieces mounted around the API routes
type Options struct {
	APIKeys     map[string]string // user id -> key
	CORSOrigins []string
	Limiter     *middleware.RateLimiter // nil disables rate limiting
	Metrics     *middleware.Metrics
	Checkers    map[string]middleware.HealthChecker
	Logger      *slog.Logger
}

type Router struct {
	examsSvc    *appexams.Service
	insightsSvc *appinsights.Service
	metrics     *middleware.Metrics
}

func NewRouter(examsSvc *appexams.Service, insightsSvc *appinsights.Service, opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	r := &Router{examsSvc: examsSvc, insightsSvc: insightsSvc, metrics: opts.Metrics}
	mux := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(opts.Logger))
	mux.Use(opts.Metrics.Middleware)
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.Limiter != nil {
		mux.Use(middleware.RateLimit(opts.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Route("/v1/users/{user}", func(rt chi.Router) {
		rt.Use(middleware.RequireOwner)

		rt.Post("/exams", r.wrap(r.handleCreateExam))
		rt.Get("/exams", r.wrap(r.handleListExams))
		rt.Get("/exams/{id}", r.wrap(r.handleGetExam))
		rt.Patch("/exams/{id}", r.wrap(r.handleUpdateExam))
		rt.Delete("/exams/{id}", r.wrap(r.handleDeleteExam))
		rt.Put("/exams/{id}/file", r.wrap(r.handleUploadFile))
		rt.Post("/exams/{id}/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/exams/{id}/insights", r.wrap(r.handleExamInsights))
		rt.Post("/exams/{id}/insights/regenerate", r.wrap(r.handleRegenerate))

		rt.Get("/insights", r.wrap(r.handleListInsights))
		rt.Get("/insights/{id}", r.wrap(r.handleGetInsight))
		rt.Delete("/insights/{id}", r.wrap(r.handleDeleteInsight))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks decoding and validation errors of the HTTP layer
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			msg := err.Error()
			if status == http.StatusInternalServerError {
				slog.ErrorContext(req.Context(), "request failed", "path", req.URL.Path, "error", err)
				msg = "internal error"
			}
			writeJSON(w, status, map[string]string{"error": msg})
		}
	}
}

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, application.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, exams.ErrNotFound), errors.Is(err, insights.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, exams.ErrAlreadyProcessed),
		errors.Is(err, exams.ErrAnalysisFieldsImmutable),
		errors.Is(err, appinsights.ErrNotProcessed):
		return http.StatusConflict
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, application.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// analysisStatus maps a typed analysis result onto an HTTP status
func analysisStatus(res appexams.AnalysisResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Failure {
	case appexams.FailureNotFound:
		return http.StatusNotFound
	case appexams.FailureUnauthorized:
		return http.StatusForbidden
	case appexams.FailureInvalidState:
		return http.StatusConflict
	case appexams.FailureExtraction:
		if errors.Is(res.Cause, domai.ErrQuotaExceeded) {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decode(req *http.Request, v any) error {
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalid("invalid JSON body: %v", err)
	}
	return nil
}

func userParam(req *http.Request) string { return chi.URLParam(req, "user") }

func idParam(req *http.Request, kind string) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(kind, id); err != nil {
		return "", badRequest{err}
	}
	return id, nil
}

//
// ==== EXAMS ====
//

type examBody struct {
	Name       *string       `json:"name"`
	Type       *string       `json:"type"`
	Date       *string       `json:"date"`
	Status     *exams.Status `json:"status"`
	RawResults *string       `json:"raw_results"`
}

// POST /v1/users/{user}/exams
func (r *Router) handleCreateExam(w http.ResponseWriter, req *http.Request) error {
	var body examBody
	if err := decode(req, &body); err != nil {
		return err
	}
	if body.Status != nil {
		return invalid("status is managed by the service")
	}
	cmd := appexams.CreateExamCommand{UserID: userParam(req)}
	if body.Name != nil {
		cmd.Name = middleware.SanitizeString(*body.Name)
	}
	if body.Type != nil {
		if err := middleware.ValidateExamType(*body.Type); err != nil {
			return badRequest{err}
		}
		cmd.Type = *body.Type
	}
	if body.Date != nil {
		d, err := middleware.ValidateExamDate(*body.Date)
		if err != nil {
			return badRequest{err}
		}
		cmd.Date = d
	}
	if body.RawResults != nil {
		cmd.RawResults = middleware.SanitizeString(*body.RawResults)
	}

	e, err := r.examsSvc.Create(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, e)
}

// GET /v1/users/{user}/exams
func (r *Router) handleListExams(w http.ResponseWriter, req *http.Request) error {
	list, err := r.examsSvc.ListByUser(req.Context(), userParam(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/users/{user}/exams/{id}
func (r *Router) handleGetExam(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	e, err := r.examsSvc.Get(req.Context(), userParam(req), exams.ExamID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, e)
}

// PATCH /v1/users/{user}/exams/{id}
func (r *Router) handleUpdateExam(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	var body examBody
	if err := decode(req, &body); err != nil {
		return err
	}

	p := exams.Patch{Name: body.Name, Status: body.Status}
	if body.Type != nil {
		if err := middleware.ValidateExamType(*body.Type); err != nil {
			return badRequest{err}
		}
		p.Type = body.Type
	}
	if body.Date != nil {
		d, err := middleware.ValidateExamDate(*body.Date)
		if err != nil {
			return badRequest{err}
		}
		p.Date = &d
	}
	if body.RawResults != nil {
		raw := middleware.SanitizeString(*body.RawResults)
		p.RawResults = &raw
	}

	e, err := r.examsSvc.Update(req.Context(), userParam(req), exams.ExamID(id), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, e)
}

// DELETE /v1/users/{user}/exams/{id}
func (r *Router) handleDeleteExam(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	if err := r.examsSvc.Delete(req.Context(), userParam(req), exams.ExamID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PUT /v1/users/{user}/exams/{id}/file (multipart, field "file")
func (r *Router) handleUploadFile(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return invalid("invalid multipart body: %v", err)
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return invalid("missing form file %q", "file")
	}
	defer file.Close()

	if err := middleware.ValidateFilename(header.Filename); err != nil {
		return badRequest{err}
	}
	contentType := header.Header.Get("Content-Type")
	if err := middleware.ValidateContentType(contentType); err != nil {
		return badRequest{err}
	}

	e, err := r.examsSvc.AttachFile(req.Context(), userParam(req), exams.ExamID(id),
		header.Filename, file, header.Size, contentType)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, e)
}

// POST /v1/users/{user}/exams/{id}/analyze
// The body is always the typed result; the status mirrors its failure kind.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	res := r.examsSvc.Analyze(req.Context(), exams.ExamID(id), userParam(req))

	anomaly := res.Exam != nil && res.Exam.Anomaly
	r.metrics.RecordAnalysis(res.Success, anomaly, len(res.Insights))
	return writeJSON(w, analysisStatus(res), res)
}

//
// ==== INSIGHTS ====
//

// GET /v1/users/{user}/exams/{id}/insights
func (r *Router) handleExamInsights(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	list, err := r.insightsSvc.ListByExam(req.Context(), userParam(req), exams.ExamID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/users/{user}/exams/{id}/insights/regenerate
func (r *Router) handleRegenerate(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "exam")
	if err != nil {
		return err
	}
	list, err := r.insightsSvc.Regenerate(req.Context(), userParam(req), exams.ExamID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/users/{user}/insights?category=
func (r *Router) handleListInsights(w http.ResponseWriter, req *http.Request) error {
	list, err := r.insightsSvc.ListByUser(req.Context(), userParam(req))
	if err != nil {
		return err
	}
	if c := strings.TrimSpace(req.URL.Query().Get("category")); c != "" {
		cat := insights.Category(c)
		if !cat.Valid() {
			return invalid("unknown category %q", c)
		}
		filtered := make([]*insights.Insight, 0, len(list))
		for _, in := range list {
			if in.Category == cat {
				filtered = append(filtered, in)
			}
		}
		list = filtered
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/users/{user}/insights/{id}
func (r *Router) handleGetInsight(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "insight")
	if err != nil {
		return err
	}
	in, err := r.insightsSvc.Get(req.Context(), userParam(req), insights.InsightID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, in)
}

// DELETE /v1/users/{user}/insights/{id}
func (r *Router) handleDeleteInsight(w http.ResponseWriter, req *http.Request) error {
	id, err := idParam(req, "insight")
	if err != nil {
		return err
	}
	if err := r.insightsSvc.Delete(req.Context(), userParam(req), insights.InsightID(id)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
