package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/handlers"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/middleware"
)

// NewRouter constructs a ServeMux with the report API routes registered.
// Probes and metrics are unauthenticated; everything under /api/v1 requires
// a resolvable user.
func NewRouter(h *handlers.Handler, auth *middleware.Authenticator, logger *logging.Logger) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/v1/datasources", h.DataSources)
	api.HandleFunc("/api/v1/templates", h.Templates)
	api.HandleFunc("/api/v1/templates/", h.TemplateByID)
	api.HandleFunc("/api/v1/reports", h.Reports)
	api.HandleFunc("/api/v1/reports/", h.ReportByID)
	api.HandleFunc("/api/v1/query", h.Query)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/v1/", auth.RequireUser(api))

	if logger == nil {
		logger = logging.Default()
	}
	return middleware.RequestID(middleware.AccessLog(logger.Logger)(mux))
}
