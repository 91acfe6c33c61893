package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/engine"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
)

// SystemUser owns the predefined templates.
const SystemUser = "system"

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrInvalidTemplate = errors.New("invalid template")
)

// TemplateService manages the template lifecycle and enforces ownership.
type TemplateService struct {
	repo     repository.TemplateRepository
	validate *validator.Validate
	now      func() time.Time
}

func NewTemplateService(repo repository.TemplateRepository) *TemplateService {
	return &TemplateService{
		repo:     repo,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Create stores a new template owned by userID at version 1.
func (s *TemplateService) Create(ctx context.Context, userID string, req *models.CreateTemplateRequest) (*models.ReportTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate template id: %w", err)
	}

	now := s.now().UTC()
	t := &models.ReportTemplate{
		ID:            id.String(),
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Widgets:       req.Widgets,
		GlobalFilters: req.GlobalFilters,
		Layout:        req.Layout,
		IsPublic:      req.IsPublic,
		IsPredefined:  false,
		CreatedBy:     userID,
		Version:       1,
		Tags:          req.Tags,
		Schedule:      req.Schedule,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if t.Widgets == nil {
		t.Widgets = []models.WidgetConfig{}
	}
	if t.GlobalFilters == nil {
		t.GlobalFilters = []models.ReportFilter{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if err := validateTemplate(t); err != nil {
		return nil, err
	}

	if err := s.repo.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return t, nil
}

// Get returns a template the user owns or that is public.
func (s *TemplateService) Get(ctx context.Context, userID, id string) (*models.ReportTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatedBy != userID && !t.IsPublic {
		return nil, ErrAccessDenied
	}
	return t, nil
}

// Update patches a template owned by userID. The version always advances by
// one; a set ExpectedVersion must match the stored version.
func (s *TemplateService) Update(ctx context.Context, userID, id string, req *models.UpdateTemplateRequest) (*models.ReportTemplate, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	current, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	preview := *current
	repository.ApplyTemplatePatch(&preview, req)
	if err := validateTemplate(&preview); err != nil {
		return nil, err
	}

	return s.repo.UpdateTemplate(ctx, id, req, s.now().UTC())
}

// Delete hard-deletes a template owned by userID.
func (s *TemplateService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.DeleteTemplate(ctx, id)
}

// List returns the user's templates plus all public ones.
func (s *TemplateService) List(ctx context.Context, userID string, req *models.ListTemplatesRequest) ([]*models.ReportTemplate, error) {
	return s.repo.ListTemplates(ctx, userID, req)
}

func (s *TemplateService) owned(ctx context.Context, userID, id string) (*models.ReportTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CreatedBy != userID {
		return nil, ErrAccessDenied
	}
	return t, nil
}

// validateTemplate checks what struct tags cannot. Unknown filter operators
// are accepted; the evaluator treats them as matching.
func validateTemplate(t *models.ReportTemplate) error {
	if err := validateFilters(t.GlobalFilters); err != nil {
		return fmt.Errorf("%w: global filters: %v", ErrInvalidTemplate, err)
	}

	seen := make(map[string]bool, len(t.Widgets))
	for _, w := range t.Widgets {
		if seen[w.ID] {
			return fmt.Errorf("%w: duplicate widget id %q", ErrInvalidTemplate, w.ID)
		}
		seen[w.ID] = true

		if !knownDataSource(w.DataSource) {
			return fmt.Errorf("%w: widget %q: unknown data source %q", ErrInvalidTemplate, w.ID, w.DataSource)
		}
		if err := validateQuery(w.QueryConfig); err != nil {
			return fmt.Errorf("%w: widget %q: %v", ErrInvalidTemplate, w.ID, err)
		}
	}

	if t.Schedule != nil && t.Schedule.Enabled && t.Schedule.IntervalDuration() < time.Minute {
		return fmt.Errorf("%w: schedule interval %q must be at least 1m", ErrInvalidTemplate, t.Schedule.Interval)
	}
	return nil
}

func validateQuery(qc models.QueryConfig) error {
	if err := validateFilters(qc.Filters); err != nil {
		return err
	}
	if qc.Where != nil {
		if _, err := engine.Compile(*qc.Where); err != nil {
			return err
		}
	}
	if qc.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

func validateFilters(filters []models.ReportFilter) error {
	for i, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("filter field is required")
		}
		switch f.Operator {
		case models.OpIn, models.OpNotIn:
			if _, ok := f.Value.AsArray(); !ok {
				return fmt.Errorf("filter %d (%s): operator %q requires an array value", i, f.Field, f.Operator)
			}
		case models.OpBetween:
			if bounds, ok := f.Value.AsArray(); !ok || len(bounds) != 2 {
				return fmt.Errorf("filter %d (%s): operator %q requires an array of two bounds", i, f.Field, f.Operator)
			}
		}
	}
	return nil
}

func knownDataSource(source models.DataSource) bool {
	for _, s := range models.DataSources {
		if s == source {
			return true
		}
	}
	return false
}
