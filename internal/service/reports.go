package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/datasource"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/engine"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/metrics"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
)

// Generation triggers, used as a metrics label and in events.
const (
	TriggerAPI       = "api"
	TriggerSchedule  = "schedule"
	TriggerMessaging = "messaging"
)

var ErrInvalidRequest = errors.New("invalid request")

// SourceSupport reports whether a data source has an adapter.
type SourceSupport interface {
	Supports(source models.DataSource) bool
}

// Publisher is the slice of messaging.Publisher the service needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// ReportGeneratedEvent is published to messaging.SubjectReportsGenerated
// after a report is persisted.
type ReportGeneratedEvent struct {
	ReportID      string              `json:"report_id"`
	TemplateID    string              `json:"template_id"`
	TemplateName  string              `json:"template_name"`
	GeneratedBy   string              `json:"generated_by"`
	GeneratedAt   time.Time           `json:"generated_at"`
	Trigger       string              `json:"trigger"`
	TotalRecords  int                 `json:"total_records"`
	FailedWidgets int                 `json:"failed_widgets"`
	DataSources   []models.DataSource `json:"data_sources"`
}

// ReportServiceConfig holds optional collaborators.
type ReportServiceConfig struct {
	// TimestampField is the record field the date range filters on.
	TimestampField string
	// Publisher receives report events. Nil disables publishing.
	Publisher Publisher
	Logger    *logging.Logger
}

// ReportService generates, stores and lists reports, and answers ad-hoc
// queries against the data sources.
type ReportService struct {
	templates      *TemplateService
	reports        repository.ReportRepository
	sources        SourceSupport
	planner        *engine.Planner
	executor       *engine.Executor
	publisher      Publisher
	logger         *logging.Logger
	validate       *validator.Validate
	timestampField string
	now            func() time.Time
}

func NewReportService(
	templates *TemplateService,
	reports repository.ReportRepository,
	sources SourceSupport,
	planner *engine.Planner,
	executor *engine.Executor,
	cfg ReportServiceConfig,
) *ReportService {
	if cfg.TimestampField == "" {
		cfg.TimestampField = datasource.DefaultTimestampField
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ReportService{
		templates:      templates,
		reports:        reports,
		sources:        sources,
		planner:        planner,
		executor:       executor,
		publisher:      cfg.Publisher,
		logger:         cfg.Logger,
		validate:       validator.New(),
		timestampField: cfg.TimestampField,
		now:            time.Now,
	}
}

// Generate runs every widget of a template the user can read and stores the
// result. Once the template resolves a report is always produced; widget
// failures are recorded inside the report.
func (s *ReportService) Generate(ctx context.Context, userID, templateID string, req *models.GenerateReportRequest, trigger string) (*models.GeneratedReport, error) {
	if req == nil {
		req = &models.GenerateReportRequest{}
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.DateRange != nil && req.DateRange.End.Before(req.DateRange.Start) {
		return nil, fmt.Errorf("%w: date range ends before it starts", ErrInvalidRequest)
	}

	tmpl, err := s.templates.Get(ctx, userID, templateID)
	if err != nil {
		return nil, err
	}
	for _, w := range tmpl.Widgets {
		if !s.sources.Supports(w.DataSource) {
			return nil, fmt.Errorf("widget %q: %w: %s", w.ID, datasource.ErrUnsupportedDataSource, w.DataSource)
		}
	}

	filters := s.effectiveFilters(tmpl.GlobalFilters, req)

	started := s.now()
	data := s.executor.Execute(ctx, filters, tmpl.Widgets)
	elapsed := s.now().Sub(started)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate report id: %w", err)
	}

	report := &models.GeneratedReport{
		ID:           id.String(),
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		GeneratedAt:  started.UTC(),
		GeneratedBy:  userID,
		Filters:      filters,
		DateRange:    req.DateRange,
		Data:         data,
		Metadata:     buildMetadata(data, filters, elapsed),
	}

	// A cancelled caller still gets its partial report stored.
	if err := s.reports.CreateReport(context.WithoutCancel(ctx), report); err != nil {
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	s.record(report, trigger, elapsed)
	s.publishGenerated(ctx, report, trigger)

	s.logger.InfoContext(ctx, "report generated",
		logging.ReportID(report.ID),
		logging.TemplateID(tmpl.ID),
		logging.UserID(userID),
		"trigger", trigger,
		"widgets", len(data),
		"failed_widgets", report.Metadata.FailedWidgets,
		"total_records", report.Metadata.TotalRecords,
		logging.Duration(elapsed),
	)

	return report, nil
}

// effectiveFilters is template globals, then request filters, then the date
// range as a between filter on the timestamp field.
func (s *ReportService) effectiveFilters(global []models.ReportFilter, req *models.GenerateReportRequest) []models.ReportFilter {
	filters := make([]models.ReportFilter, 0, len(global)+len(req.Filters)+1)
	filters = append(filters, global...)
	filters = append(filters, req.Filters...)
	if req.DateRange != nil {
		filters = append(filters, DateRangeFilter(s.timestampField, *req.DateRange))
	}
	return filters
}

// DateRangeFilter bounds field to the range, inclusive on both ends.
func DateRangeFilter(field string, dr models.DateRange) models.ReportFilter {
	return models.ReportFilter{
		Field:    field,
		Operator: models.OpBetween,
		Value: models.Array(
			models.String(models.FormatTimestamp(dr.Start)),
			models.String(models.FormatTimestamp(dr.End)),
		),
	}
}

func buildMetadata(data []models.WidgetData, filters []models.ReportFilter, elapsed time.Duration) models.ReportMetadata {
	meta := models.ReportMetadata{
		ExecutionTimeMs: elapsed.Milliseconds(),
		DataSourcesUsed: []models.DataSource{},
		FiltersSummary:  models.SummarizeFilters(filters),
	}

	seen := make(map[models.DataSource]bool)
	for _, w := range data {
		meta.TotalRecords += len(w.Data)
		if w.Failed() {
			meta.FailedWidgets++
		}
		if !seen[w.DataSource] {
			seen[w.DataSource] = true
			meta.DataSourcesUsed = append(meta.DataSourcesUsed, w.DataSource)
		}
	}
	return meta
}

func (s *ReportService) record(report *models.GeneratedReport, trigger string, elapsed time.Duration) {
	metrics.ReportsGenerated.WithLabelValues(trigger).Inc()
	metrics.GenerationDuration.Observe(elapsed.Seconds())
	for _, w := range report.Data {
		if w.Failed() {
			metrics.WidgetFailures.WithLabelValues(string(w.DataSource)).Inc()
		}
	}
}

func (s *ReportService) publishGenerated(ctx context.Context, report *models.GeneratedReport, trigger string) {
	if s.publisher == nil {
		return
	}

	event := ReportGeneratedEvent{
		ReportID:      report.ID,
		TemplateID:    report.TemplateID,
		TemplateName:  report.TemplateName,
		GeneratedBy:   report.GeneratedBy,
		GeneratedAt:   report.GeneratedAt,
		Trigger:       trigger,
		TotalRecords:  report.Metadata.TotalRecords,
		FailedWidgets: report.Metadata.FailedWidgets,
		DataSources:   report.Metadata.DataSourcesUsed,
	}
	data, err := json.Marshal(event)
	if err == nil {
		err = s.publisher.Publish(context.WithoutCancel(ctx), messaging.SubjectReportsGenerated, data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish report event",
			logging.ReportID(report.ID),
			logging.Error(err),
		)
	}
}

// GetReport returns a report generated by userID.
func (s *ReportService) GetReport(ctx context.Context, userID, id string) (*models.GeneratedReport, error) {
	report, err := s.reports.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.GeneratedBy != userID {
		return nil, ErrAccessDenied
	}
	return report, nil
}

// ListReports pages through the reports userID generated, newest first.
func (s *ReportService) ListReports(ctx context.Context, userID string, req *models.ListReportsRequest) (*models.ListReportsResponse, error) {
	if req == nil {
		req = &models.ListReportsRequest{}
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}
	req.GeneratedBy = userID

	reports, total, err := s.reports.ListReports(ctx, req)
	if err != nil {
		return nil, err
	}

	return &models.ListReportsResponse{
		Reports: reports,
		Pagination: models.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: (total + req.Limit - 1) / req.Limit,
		},
	}, nil
}

// QueryData runs one widget-style query without a template.
func (s *ReportService) QueryData(ctx context.Context, req *models.QueryRequest) ([]models.Record, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validateQuery(req.QueryConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !s.sources.Supports(req.DataSource) {
		return nil, fmt.Errorf("%w: %s", datasource.ErrUnsupportedDataSource, req.DataSource)
	}
	return s.planner.Query(ctx, req.DataSource, req.QueryConfig())
}
