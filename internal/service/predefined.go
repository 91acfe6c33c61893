package service

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
)

//go:embed predefined/*.yaml
var predefinedFS embed.FS

// PredefinedTemplates parses the built-in templates. They are owned by
// SystemUser, public and read-only for everyone else.
func PredefinedTemplates() ([]*models.ReportTemplate, error) {
	return loadTemplates(predefinedFS, "predefined")
}

func loadTemplates(fsys fs.FS, dir string) ([]*models.ReportTemplate, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]*models.ReportTemplate, 0, len(entries))
	for _, entry := range entries {
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, err
		}

		var t models.ReportTemplate
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("parse %s: missing id", entry.Name())
		}
		if err := validateTemplate(&t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}

		t.CreatedBy = SystemUser
		t.IsPublic = true
		t.IsPredefined = true
		t.Version = 1
		if t.GlobalFilters == nil {
			t.GlobalFilters = []models.ReportFilter{}
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		out = append(out, &t)
	}
	return out, nil
}

// SeedPredefined stores every predefined template that is not present yet
// and returns how many were created. Existing copies are left untouched.
func (s *TemplateService) SeedPredefined(ctx context.Context, templates []*models.ReportTemplate) (int, error) {
	created := 0
	now := s.now().UTC()
	for _, t := range templates {
		t.CreatedAt = now
		t.UpdatedAt = now
		err := s.repo.CreateTemplate(ctx, t)
		switch {
		case errors.Is(err, repository.ErrTemplateExists):
			continue
		case err != nil:
			return created, fmt.Errorf("seed template %s: %w", t.ID, err)
		}
		created++
	}
	return created, nil
}

// seedTimeout bounds startup seeding.
const seedTimeout = 10 * time.Second

// SeedPredefinedTemplates loads and seeds the built-in templates.
func (s *TemplateService) SeedPredefinedTemplates(ctx context.Context) (int, error) {
	templates, err := PredefinedTemplates()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()
	return s.SeedPredefined(ctx, templates)
}
