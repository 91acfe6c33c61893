package models

import "time"

// DateRange bounds a report generation in time.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WidgetData is the materialized result of one widget. Error is set when the
// widget failed; Data is then empty.
type WidgetData struct {
	WidgetID   string     `json:"widget_id"`
	WidgetType string     `json:"widget_type"`
	DataSource DataSource `json:"data_source"`
	Data       []Record   `json:"data"`
	Error      string     `json:"error,omitempty"`
}

// Failed reports whether the widget produced an error.
func (w WidgetData) Failed() bool {
	return w.Error != ""
}

// ReportMetadata summarizes one generation run.
type ReportMetadata struct {
	TotalRecords    int          `json:"total_records"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
	DataSourcesUsed []DataSource `json:"data_sources_used"`
	FiltersSummary  string       `json:"filters_summary"`
	FailedWidgets   int          `json:"failed_widgets"`
}

// GeneratedReport is the immutable output of running a template.
type GeneratedReport struct {
	ID           string         `json:"id"`
	TemplateID   string         `json:"template_id"`
	TemplateName string         `json:"template_name"`
	GeneratedAt  time.Time      `json:"generated_at"`
	GeneratedBy  string         `json:"generated_by"`
	Filters      []ReportFilter `json:"filters"`
	DateRange    *DateRange     `json:"date_range,omitempty"`
	Data         []WidgetData   `json:"data"`
	Metadata     ReportMetadata `json:"metadata"`
}

// GenerateReportRequest carries request-level inputs for a generation.
type GenerateReportRequest struct {
	Filters   []ReportFilter `json:"filters" validate:"dive"`
	DateRange *DateRange     `json:"date_range,omitempty"`
}

// ListReportsRequest narrows a generated report listing.
type ListReportsRequest struct {
	GeneratedBy string
	TemplateID  string
	Page        int
	Limit       int
}

// ListReportsResponse is a page of generated reports.
type ListReportsResponse struct {
	Reports    []*GeneratedReport `json:"reports"`
	Pagination Pagination         `json:"pagination"`
}

// Pagination describes a result page.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// QueryRequest is the template-independent query surface.
type QueryRequest struct {
	DataSource  DataSource     `json:"data_source" validate:"required"`
	Filters     []ReportFilter `json:"filters" validate:"dive"`
	Where       *FilterNode    `json:"where,omitempty"`
	GroupBy     []string       `json:"group_by,omitempty"`
	Aggregation *Aggregation   `json:"aggregation,omitempty"`
	SortBy      *SortBy        `json:"sort_by,omitempty"`
	Limit       int            `json:"limit,omitempty" validate:"gte=0"`
}

// QueryConfig returns the widget-style query configuration for r.
func (r *QueryRequest) QueryConfig() QueryConfig {
	return QueryConfig{
		Filters:     r.Filters,
		Where:       r.Where,
		GroupBy:     r.GroupBy,
		Aggregation: r.Aggregation,
		SortBy:      r.SortBy,
		Limit:       r.Limit,
	}
}
