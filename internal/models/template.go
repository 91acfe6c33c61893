package models

import (
	"time"
)

// DataSource names a logical origin of records.
type DataSource string

const (
	SourceWazuhAlerts     DataSource = "wazuh-alerts"
	SourceWazuhAgents     DataSource = "wazuh-agents"
	SourceWazuhRules      DataSource = "wazuh-rules"
	SourceIRISCases       DataSource = "iris-cases"
	SourceVulnerabilities DataSource = "vulnerabilities"
	SourceFIMEvents       DataSource = "fim-events"
	SourceCustomQuery     DataSource = "custom-query"
)

// DataSources lists every declared data source, implemented or not.
var DataSources = []DataSource{
	SourceWazuhAlerts, SourceWazuhAgents, SourceWazuhRules, SourceIRISCases,
	SourceVulnerabilities, SourceFIMEvents, SourceCustomQuery,
}

// Widget types understood by the dashboard front end.
const (
	WidgetMetric   = "metric"
	WidgetTable    = "table"
	WidgetBarChart = "bar-chart"
	WidgetPieChart = "pie-chart"
	WidgetLine     = "line-chart"
	WidgetList     = "list"
)

// Position places a widget on the layout grid.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// WidgetConfig is one visual unit of a template bound to a single data source.
type WidgetConfig struct {
	ID          string      `json:"id" yaml:"id" validate:"required"`
	Type        string      `json:"type" yaml:"type" validate:"required"`
	Title       string      `json:"title" yaml:"title"`
	DataSource  DataSource  `json:"data_source" yaml:"data_source" validate:"required"`
	QueryConfig QueryConfig `json:"query_config" yaml:"query_config"`
	Position    Position    `json:"position" yaml:"position"`
}

// Layout carries grid settings for rendering.
type Layout struct {
	Columns   int `json:"columns" yaml:"columns"`
	RowHeight int `json:"row_height" yaml:"row_height"`
}

// Schedule describes periodic generation of a template.
type Schedule struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Interval string `json:"interval" yaml:"interval"` // e.g. "24h"
	Lookback string `json:"lookback,omitempty" yaml:"lookback,omitempty"`
}

// IntervalDuration parses Interval, returning 0 when invalid.
func (s *Schedule) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 0
	}
	return d
}

// LookbackDuration parses Lookback, defaulting to the interval.
func (s *Schedule) LookbackDuration() time.Duration {
	if s.Lookback == "" {
		return s.IntervalDuration()
	}
	d, err := time.ParseDuration(s.Lookback)
	if err != nil {
		return s.IntervalDuration()
	}
	return d
}

// ReportTemplate is a saved, reusable report definition.
type ReportTemplate struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category      string         `json:"category" yaml:"category"`
	Widgets       []WidgetConfig `json:"widgets" yaml:"widgets"`
	GlobalFilters []ReportFilter `json:"global_filters" yaml:"global_filters"`
	Layout        Layout         `json:"layout" yaml:"layout"`
	IsPublic      bool           `json:"is_public" yaml:"is_public"`
	IsPredefined  bool           `json:"is_predefined" yaml:"is_predefined"`
	CreatedBy     string         `json:"created_by" yaml:"created_by"`
	Version       int            `json:"version" yaml:"version"`
	Tags          []string       `json:"tags" yaml:"tags"`
	Schedule      *Schedule      `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	CreatedAt     time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time      `json:"updated_at" yaml:"-"`
}

// HasTag reports whether t carries tag.
func (t *ReportTemplate) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// CreateTemplateRequest is the payload for creating a template.
type CreateTemplateRequest struct {
	Name          string         `json:"name" yaml:"name" validate:"required,max=200"`
	Description   string         `json:"description" yaml:"description"`
	Category      string         `json:"category" yaml:"category" validate:"required"`
	Widgets       []WidgetConfig `json:"widgets" yaml:"widgets" validate:"dive"`
	GlobalFilters []ReportFilter `json:"global_filters" yaml:"global_filters" validate:"dive"`
	Layout        Layout         `json:"layout" yaml:"layout"`
	IsPublic      bool           `json:"is_public" yaml:"is_public"`
	Tags          []string       `json:"tags" yaml:"tags"`
	Schedule      *Schedule      `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// UpdateTemplateRequest patches a template. Nil fields are left untouched.
// ExpectedVersion, when set, must match the stored version.
type UpdateTemplateRequest struct {
	Name            *string         `json:"name,omitempty" validate:"omitempty,max=200"`
	Description     *string         `json:"description,omitempty"`
	Category        *string         `json:"category,omitempty"`
	Widgets         *[]WidgetConfig `json:"widgets,omitempty" validate:"omitempty,dive"`
	GlobalFilters   *[]ReportFilter `json:"global_filters,omitempty" validate:"omitempty,dive"`
	Layout          *Layout         `json:"layout,omitempty"`
	IsPublic        *bool           `json:"is_public,omitempty"`
	Tags            *[]string       `json:"tags,omitempty"`
	Schedule        *Schedule       `json:"schedule,omitempty"`
	ExpectedVersion *int            `json:"expected_version,omitempty"`
}

// ListTemplatesRequest narrows a template listing.
type ListTemplatesRequest struct {
	Category string
	Tags     []string
}
