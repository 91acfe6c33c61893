package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/datasource"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/httputil"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/middleware"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/service"
)

const (
	templatesPath = "/api/v1/templates/"
	reportsPath   = "/api/v1/reports/"
)

// SourceLister lists the data sources with a registered adapter.
type SourceLister interface {
	Sources() []models.DataSource
}

// Pinger is checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	templates *service.TemplateService
	reports   *service.ReportService
	sources   SourceLister
	checks    map[string]Pinger
	logger    *logging.Logger
}

func NewHandler(templates *service.TemplateService, reports *service.ReportService, sources SourceLister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		templates: templates,
		reports:   reports,
		sources:   sources,
		checks:    make(map[string]Pinger),
		logger:    logger,
	}
}

// AddReadinessCheck registers a dependency probed by /readyz.
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	httputil.WriteJSON(w, status, map[string]interface{}{"status": state, "checks": results})
}

// DataSources handles GET /api/v1/datasources
func (h *Handler) DataSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	sources := h.sources.Sources()
	resources := make([]httputil.JSONAPIResource, 0, len(sources))
	for _, s := range sources {
		resources = append(resources, httputil.JSONAPIResource{
			Type:       "datasources",
			ID:         string(s),
			Attributes: map[string]interface{}{"name": string(s)},
		})
	}
	httputil.WriteJSONAPICollection(w, http.StatusOK, resources, nil)
}

// Templates handles /api/v1/templates (GET list, POST create)
func (h *Handler) Templates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTemplates(w, r)
	case http.MethodPost:
		h.createTemplate(w, r)
	default:
		methodNotAllowed(w)
	}
}

// TemplateByID handles /api/v1/templates/{id} and /api/v1/templates/{id}/generate
func (h *Handler) TemplateByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, templatesPath), "/")
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		httputil.WriteJSONAPIValidationError(w, "Template ID required")
		return
	}

	if len(parts) == 2 && parts[1] == "generate" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.generateReport(w, r, id)
		return
	}
	if len(parts) > 1 {
		httputil.WriteJSONAPIError(w, http.StatusNotFound, "not_found", "Not Found", "Unknown template action")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTemplate(w, r, id)
	case http.MethodPut, http.MethodPatch:
		h.updateTemplate(w, r, id)
	case http.MethodDelete:
		h.deleteTemplate(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &models.ListTemplatesRequest{
		Category: q.Get("category"),
		Tags:     q["tag"],
	}

	templates, err := h.templates.List(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, "templates", "", err)
		return
	}

	resources := make([]httputil.JSONAPIResource, 0, len(templates))
	for _, t := range templates {
		resources = append(resources, templateResource(t))
	}
	httputil.WriteJSONAPICollection(w, http.StatusOK, resources, nil)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONAPIValidationError(w, err.Error())
		return
	}

	tmpl, err := h.templates.Create(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		h.writeError(w, r, "templates", "", err)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusCreated, "templates", tmpl.ID, tmpl)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request, id string) {
	tmpl, err := h.templates.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, "templates", id, err)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusOK, "templates", tmpl.ID, tmpl)
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request, id string) {
	var req models.UpdateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONAPIValidationError(w, err.Error())
		return
	}

	tmpl, err := h.templates.Update(r.Context(), middleware.GetUserID(r.Context()), id, &req)
	if err != nil {
		h.writeError(w, r, "templates", id, err)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusOK, "templates", tmpl.ID, tmpl)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.templates.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		h.writeError(w, r, "templates", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generateReport(w http.ResponseWriter, r *http.Request, templateID string) {
	// the body is optional
	var req models.GenerateReportRequest
	if err := httputil.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteJSONAPIValidationError(w, err.Error())
		return
	}

	report, err := h.reports.Generate(r.Context(), middleware.GetUserID(r.Context()), templateID, &req, service.TriggerAPI)
	if err != nil {
		h.writeError(w, r, "templates", templateID, err)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusCreated, "reports", report.ID, report)
}

// Reports handles GET /api/v1/reports
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	page := httputil.ParsePagination(r, 20, 100)
	resp, err := h.reports.ListReports(r.Context(), middleware.GetUserID(r.Context()), &models.ListReportsRequest{
		TemplateID: r.URL.Query().Get("template_id"),
		Page:       page.Page,
		Limit:      page.Limit,
	})
	if err != nil {
		h.writeError(w, r, "reports", "", err)
		return
	}

	resources := make([]httputil.JSONAPIResource, 0, len(resp.Reports))
	for _, rep := range resp.Reports {
		resources = append(resources, httputil.JSONAPIResource{Type: "reports", ID: rep.ID, Attributes: rep})
	}
	httputil.WriteJSONAPICollection(w, http.StatusOK, resources, &httputil.Pagination{
		Page:  resp.Pagination.Page,
		Limit: resp.Pagination.Limit,
		Total: resp.Pagination.Total,
	})
}

// ReportByID handles GET /api/v1/reports/{id}
func (h *Handler) ReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, reportsPath), "/")
	if id == "" || strings.Contains(id, "/") {
		httputil.WriteJSONAPIValidationError(w, "Report ID required")
		return
	}

	report, err := h.reports.GetReport(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		h.writeError(w, r, "reports", id, err)
		return
	}
	httputil.WriteJSONAPIResource(w, http.StatusOK, "reports", report.ID, report)
}

// QueryResult is the attributes object of a /api/v1/query response.
type QueryResult struct {
	DataSource models.DataSource `json:"data_source"`
	Count      int               `json:"count"`
	Records    []models.Record   `json:"records"`
}

// Query handles POST /api/v1/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req models.QueryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONAPIValidationError(w, err.Error())
		return
	}

	records, err := h.reports.QueryData(r.Context(), &req)
	if err != nil {
		var adapterErr *datasource.AdapterError
		if errors.As(err, &adapterErr) {
			h.logger.WarnContext(r.Context(), "query failed upstream",
				logging.DataSource(string(adapterErr.Source)),
				logging.Error(err),
			)
			httputil.WriteJSONAPIError(w, http.StatusBadGateway, "upstream_error", "Data Source Error", err.Error())
			return
		}
		h.writeError(w, r, "datasources", string(req.DataSource), err)
		return
	}
	if records == nil {
		records = []models.Record{}
	}

	httputil.WriteJSONAPIResource(w, http.StatusOK, "query-results", string(req.DataSource), QueryResult{
		DataSource: req.DataSource,
		Count:      len(records),
		Records:    records,
	})
}

// writeError maps service errors to JSON:API error documents.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, resourceType, id string, err error) {
	switch {
	case errors.Is(err, repository.ErrTemplateNotFound), errors.Is(err, repository.ErrReportNotFound):
		httputil.WriteJSONAPINotFoundError(w, strings.TrimSuffix(resourceType, "s"), id)
	case errors.Is(err, service.ErrAccessDenied):
		httputil.WriteJSONAPIForbiddenError(w, "You do not have access to this "+strings.TrimSuffix(resourceType, "s"))
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, repository.ErrTemplateExists):
		httputil.WriteJSONAPIConflictError(w, err.Error())
	case errors.Is(err, service.ErrInvalidTemplate),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, datasource.ErrUnsupportedDataSource):
		httputil.WriteJSONAPIValidationError(w, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			logging.UserID(middleware.GetUserID(r.Context())),
			logging.Error(err),
		)
		httputil.WriteJSONAPIInternalError(w, "An internal error occurred")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	httputil.WriteJSONAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed", "")
}

func templateResource(t *models.ReportTemplate) httputil.JSONAPIResource {
	return httputil.JSONAPIResource{Type: "templates", ID: t.ID, Attributes: t}
}
