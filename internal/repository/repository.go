package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateExists   = errors.New("template already exists")
	ErrReportNotFound   = errors.New("report not found")
	ErrVersionConflict  = errors.New("template version conflict")
)

// TemplateRepository persists report templates.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *models.ReportTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.ReportTemplate, error)
	// UpdateTemplate applies the non-nil fields of req and increments the
	// version by one. When req.ExpectedVersion is set the update only applies
	// if it matches the stored version, otherwise ErrVersionConflict.
	UpdateTemplate(ctx context.Context, id string, req *models.UpdateTemplateRequest, updatedAt time.Time) (*models.ReportTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	// ListTemplates returns the templates userID owns plus every public one.
	ListTemplates(ctx context.Context, userID string, req *models.ListTemplatesRequest) ([]*models.ReportTemplate, error)
	ListScheduledTemplates(ctx context.Context) ([]*models.ReportTemplate, error)
}

// ReportRepository persists generated reports. Reports are append-only.
type ReportRepository interface {
	CreateReport(ctx context.Context, r *models.GeneratedReport) error
	GetReport(ctx context.Context, id string) (*models.GeneratedReport, error)
	ListReports(ctx context.Context, req *models.ListReportsRequest) ([]*models.GeneratedReport, int, error)
}

// Repository is the full storage surface of the report service.
type Repository interface {
	TemplateRepository
	ReportRepository

	Ping(ctx context.Context) error
	Close() error
}

// ApplyTemplatePatch copies the non-nil fields of req onto t. It does not
// touch the version.
func ApplyTemplatePatch(t *models.ReportTemplate, req *models.UpdateTemplateRequest) {
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.Widgets != nil {
		t.Widgets = *req.Widgets
	}
	if req.GlobalFilters != nil {
		t.GlobalFilters = *req.GlobalFilters
	}
	if req.Layout != nil {
		t.Layout = *req.Layout
	}
	if req.IsPublic != nil {
		t.IsPublic = *req.IsPublic
	}
	if req.Tags != nil {
		t.Tags = *req.Tags
	}
	if req.Schedule != nil {
		t.Schedule = req.Schedule
	}
}

func matchesTemplateFilter(t *models.ReportTemplate, req *models.ListTemplatesRequest) bool {
	if req == nil {
		return true
	}
	if req.Category != "" && t.Category != req.Category {
		return false
	}
	for _, tag := range req.Tags {
		if !t.HasTag(tag) {
			return false
		}
	}
	return true
}
