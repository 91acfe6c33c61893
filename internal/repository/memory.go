package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// InMemoryRepository keeps templates and reports in process memory. It is
// used when no database is configured and in tests.
type InMemoryRepository struct {
	templates map[string]*models.ReportTemplate
	reports   map[string]*models.GeneratedReport
	mu        sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		templates: make(map[string]*models.ReportTemplate),
		reports:   make(map[string]*models.GeneratedReport),
	}
}

func cloneTemplate(t *models.ReportTemplate) *models.ReportTemplate {
	c := *t
	c.Widgets = append([]models.WidgetConfig(nil), t.Widgets...)
	c.GlobalFilters = append([]models.ReportFilter(nil), t.GlobalFilters...)
	c.Tags = append([]string(nil), t.Tags...)
	if t.Schedule != nil {
		s := *t.Schedule
		c.Schedule = &s
	}
	return &c
}

func (r *InMemoryRepository) CreateTemplate(ctx context.Context, t *models.ReportTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		return ErrTemplateExists
	}
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r *InMemoryRepository) GetTemplate(ctx context.Context, id string) (*models.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.templates[id]
	if !exists {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (r *InMemoryRepository) UpdateTemplate(ctx context.Context, id string, req *models.UpdateTemplateRequest, updatedAt time.Time) (*models.ReportTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.templates[id]
	if !exists {
		return nil, ErrTemplateNotFound
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != t.Version {
		return nil, ErrVersionConflict
	}

	updated := cloneTemplate(t)
	ApplyTemplatePatch(updated, req)
	updated.Version = t.Version + 1
	updated.UpdatedAt = updatedAt
	r.templates[id] = updated

	return cloneTemplate(updated), nil
}

func (r *InMemoryRepository) DeleteTemplate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[id]; !exists {
		return ErrTemplateNotFound
	}
	delete(r.templates, id)
	return nil
}

func (r *InMemoryRepository) ListTemplates(ctx context.Context, userID string, req *models.ListTemplatesRequest) ([]*models.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.ReportTemplate{}
	for _, t := range r.templates {
		if t.CreatedBy != userID && !t.IsPublic {
			continue
		}
		if !matchesTemplateFilter(t, req) {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sortTemplates(out)
	return out, nil
}

func (r *InMemoryRepository) ListScheduledTemplates(ctx context.Context) ([]*models.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.ReportTemplate{}
	for _, t := range r.templates {
		if t.Schedule != nil && t.Schedule.Enabled {
			out = append(out, cloneTemplate(t))
		}
	}
	sortTemplates(out)
	return out, nil
}

// predefined first, then most recently updated
func sortTemplates(ts []*models.ReportTemplate) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].IsPredefined != ts[j].IsPredefined {
			return ts[i].IsPredefined
		}
		if !ts[i].UpdatedAt.Equal(ts[j].UpdatedAt) {
			return ts[i].UpdatedAt.After(ts[j].UpdatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

func (r *InMemoryRepository) CreateReport(ctx context.Context, report *models.GeneratedReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *report
	r.reports[report.ID] = &c
	return nil
}

func (r *InMemoryRepository) GetReport(ctx context.Context, id string) (*models.GeneratedReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, exists := r.reports[id]
	if !exists {
		return nil, ErrReportNotFound
	}
	c := *report
	return &c, nil
}

func (r *InMemoryRepository) ListReports(ctx context.Context, req *models.ListReportsRequest) ([]*models.GeneratedReport, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*models.GeneratedReport{}
	for _, report := range r.reports {
		if req.GeneratedBy != "" && report.GeneratedBy != req.GeneratedBy {
			continue
		}
		if req.TemplateID != "" && report.TemplateID != req.TemplateID {
			continue
		}
		c := *report
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].GeneratedAt.Equal(matched[j].GeneratedAt) {
			return matched[i].GeneratedAt.After(matched[j].GeneratedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	offset := (req.Page - 1) * req.Limit
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*models.GeneratedReport{}, total, nil
	}
	end := total
	if req.Limit > 0 && offset+req.Limit < total {
		end = offset + req.Limit
	}
	return matched[offset:end], total, nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
