package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

func newTemplate(id, owner string, public bool, category string, tags ...string) *models.ReportTemplate {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.ReportTemplate{
		ID:        id,
		Name:      "Template " + id,
		Category:  category,
		CreatedBy: owner,
		IsPublic:  public,
		Version:   1,
		Tags:      tags,
		Widgets: []models.WidgetConfig{
			{ID: "w1", Type: models.WidgetMetric, DataSource: models.SourceWazuhAlerts},
		},
		GlobalFilters: []models.ReportFilter{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func stringPtr(s string) *string { return &s }
func intPtr(i int) *int          { return &i }

// runTemplateContract exercises the TemplateRepository behavior shared by
// every implementation.
func runTemplateContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		tmpl := newTemplate("tpl-get", "alice", false, "security", "ssh")
		require.NoError(t, repo.CreateTemplate(ctx, tmpl))
		assert.ErrorIs(t, repo.CreateTemplate(ctx, tmpl), ErrTemplateExists)

		got, err := repo.GetTemplate(ctx, "tpl-get")
		require.NoError(t, err)
		assert.Equal(t, "Template tpl-get", got.Name)
		assert.Equal(t, 1, got.Version)
		assert.Equal(t, []string{"ssh"}, got.Tags)
		require.Len(t, got.Widgets, 1)
		assert.Equal(t, models.SourceWazuhAlerts, got.Widgets[0].DataSource)

		_, err = repo.GetTemplate(ctx, "missing")
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("update increments version", func(t *testing.T) {
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("tpl-upd", "alice", false, "security")))

		for i := 0; i < 3; i++ {
			before, err := repo.GetTemplate(ctx, "tpl-upd")
			require.NoError(t, err)

			after, err := repo.UpdateTemplate(ctx, "tpl-upd", &models.UpdateTemplateRequest{}, time.Now())
			require.NoError(t, err)
			assert.Equal(t, before.Version+1, after.Version)
		}

		got, err := repo.UpdateTemplate(ctx, "tpl-upd", &models.UpdateTemplateRequest{
			Name:     stringPtr("Renamed"),
			Tags:     &[]string{"a", "b"},
			Schedule: &models.Schedule{Enabled: true, Interval: "24h"},
		}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, "security", got.Category, "unset fields are kept")
		assert.Equal(t, []string{"a", "b"}, got.Tags)
		require.NotNil(t, got.Schedule)
		assert.True(t, got.Schedule.Enabled)
		assert.Equal(t, 5, got.Version)

		_, err = repo.UpdateTemplate(ctx, "missing", &models.UpdateTemplateRequest{}, time.Now())
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("expected version", func(t *testing.T) {
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("tpl-cas", "alice", false, "security")))

		got, err := repo.UpdateTemplate(ctx, "tpl-cas", &models.UpdateTemplateRequest{ExpectedVersion: intPtr(1)}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)

		_, err = repo.UpdateTemplate(ctx, "tpl-cas", &models.UpdateTemplateRequest{
			Name:            stringPtr("stale"),
			ExpectedVersion: intPtr(1),
		}, time.Now())
		assert.ErrorIs(t, err, ErrVersionConflict)

		current, err := repo.GetTemplate(ctx, "tpl-cas")
		require.NoError(t, err)
		assert.Equal(t, 2, current.Version)
		assert.NotEqual(t, "stale", current.Name)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("tpl-del", "alice", false, "security")))
		require.NoError(t, repo.DeleteTemplate(ctx, "tpl-del"))
		assert.ErrorIs(t, repo.DeleteTemplate(ctx, "tpl-del"), ErrTemplateNotFound)
		_, err := repo.GetTemplate(ctx, "tpl-del")
		assert.ErrorIs(t, err, ErrTemplateNotFound)
	})

	t.Run("list own and public", func(t *testing.T) {
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("ls-bob-private", "bob", false, "compliance", "pci")))
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("ls-bob-public", "bob", true, "compliance", "pci", "weekly")))
		require.NoError(t, repo.CreateTemplate(ctx, newTemplate("ls-carol-private", "carol", false, "compliance")))

		ids := func(ts []*models.ReportTemplate) []string {
			out := []string{}
			for _, tmpl := range ts {
				if len(tmpl.ID) > 3 && tmpl.ID[:3] == "ls-" {
					out = append(out, tmpl.ID)
				}
			}
			return out
		}

		tests := []struct {
			name string
			user string
			req  *models.ListTemplatesRequest
			want []string
		}{
			{"owner sees private", "bob", &models.ListTemplatesRequest{}, []string{"ls-bob-private", "ls-bob-public"}},
			{"others see public only", "carol", nil, []string{"ls-bob-public", "ls-carol-private"}},
			{"category filter", "carol", &models.ListTemplatesRequest{Category: "security"}, []string{}},
			{"all tags must match", "bob", &models.ListTemplatesRequest{Tags: []string{"pci", "weekly"}}, []string{"ls-bob-public"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.ListTemplates(ctx, tt.user, tt.req)
				require.NoError(t, err)
				assert.ElementsMatch(t, tt.want, ids(got))
			})
		}
	})

	t.Run("scheduled", func(t *testing.T) {
		tmpl := newTemplate("tpl-sched", "dave", false, "ops")
		tmpl.Schedule = &models.Schedule{Enabled: true, Interval: "1h"}
		require.NoError(t, repo.CreateTemplate(ctx, tmpl))
		off := newTemplate("tpl-sched-off", "dave", false, "ops")
		off.Schedule = &models.Schedule{Enabled: false, Interval: "1h"}
		require.NoError(t, repo.CreateTemplate(ctx, off))

		got, err := repo.ListScheduledTemplates(ctx)
		require.NoError(t, err)
		found := map[string]bool{}
		for _, tmpl := range got {
			found[tmpl.ID] = true
		}
		assert.True(t, found["tpl-sched"])
		assert.False(t, found["tpl-sched-off"])
	})
}

func runReportContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		user := "alice"
		if i%2 == 1 {
			user = "bob"
		}
		report := &models.GeneratedReport{
			ID:           fmt.Sprintf("rep-%d", i),
			TemplateID:   "tpl-a",
			TemplateName: "A",
			GeneratedAt:  base.Add(time.Duration(i) * time.Hour),
			GeneratedBy:  user,
			Filters:      []models.ReportFilter{{Field: "severity", Operator: models.OpEquals, Value: models.String("high")}},
			Data: []models.WidgetData{
				{WidgetID: "w1", WidgetType: models.WidgetTable, DataSource: models.SourceWazuhAlerts, Data: []models.Record{{"n": models.Int(i)}}},
				{WidgetID: "w2", WidgetType: models.WidgetMetric, DataSource: models.SourceIRISCases, Data: []models.Record{}, Error: "iris down"},
			},
			Metadata: models.ReportMetadata{TotalRecords: 1, FailedWidgets: 1, FiltersSummary: "severity equals high"},
		}
		if i == 0 {
			report.DateRange = &models.DateRange{Start: base.Add(-24 * time.Hour), End: base}
		}
		require.NoError(t, repo.CreateReport(ctx, report))
	}

	got, err := repo.GetReport(ctx, "rep-0")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.GeneratedBy)
	require.NotNil(t, got.DateRange)
	assert.True(t, got.DateRange.End.Equal(base))
	require.Len(t, got.Data, 2)
	assert.Equal(t, "iris down", got.Data[1].Error)
	assert.Equal(t, models.Int(0), got.Data[0].Data[0]["n"])
	assert.Equal(t, "severity equals high", got.Metadata.FiltersSummary)

	_, err = repo.GetReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrReportNotFound)

	tests := []struct {
		name      string
		req       *models.ListReportsRequest
		wantIDs   []string
		wantTotal int
	}{
		{"all newest first", &models.ListReportsRequest{Page: 1, Limit: 10}, []string{"rep-4", "rep-3", "rep-2", "rep-1", "rep-0"}, 5},
		{"by user", &models.ListReportsRequest{GeneratedBy: "bob", Page: 1, Limit: 10}, []string{"rep-3", "rep-1"}, 2},
		{"paged", &models.ListReportsRequest{Page: 2, Limit: 2}, []string{"rep-2", "rep-1"}, 5},
		{"past the end", &models.ListReportsRequest{Page: 4, Limit: 2}, []string{}, 5},
		{"by template", &models.ListReportsRequest{TemplateID: "other", Page: 1, Limit: 10}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, total, err := repo.ListReports(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			ids := []string{}
			for _, r := range reports {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestInMemoryRepository_Templates(t *testing.T) {
	runTemplateContract(t, NewInMemoryRepository())
}

func TestInMemoryRepository_Reports(t *testing.T) {
	runReportContract(t, NewInMemoryRepository())
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateTemplate(ctx, newTemplate("tpl", "alice", false, "security", "x")))

	got, err := repo.GetTemplate(ctx, "tpl")
	require.NoError(t, err)
	got.Name = "mutated"
	got.Tags[0] = "mutated"

	again, err := repo.GetTemplate(ctx, "tpl")
	require.NoError(t, err)
	assert.Equal(t, "Template tpl", again.Name)
	assert.Equal(t, []string{"x"}, again.Tags)
}

func TestApplyTemplatePatch(t *testing.T) {
	tmpl := newTemplate("tpl", "alice", false, "security")
	public := true
	ApplyTemplatePatch(tmpl, &models.UpdateTemplateRequest{
		Description: stringPtr("desc"),
		IsPublic:    &public,
		Layout:      &models.Layout{Columns: 12},
	})

	assert.Equal(t, "desc", tmpl.Description)
	assert.True(t, tmpl.IsPublic)
	assert.Equal(t, 12, tmpl.Layout.Columns)
	assert.Equal(t, 1, tmpl.Version)
	assert.Equal(t, "Template tpl", tmpl.Name)
}
