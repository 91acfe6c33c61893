package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/datasource"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/engine"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
)

type publishedMessage struct {
	subject string
	data    []byte
}

type mockPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (m *mockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, publishedMessage{subject: subject, data: data})
	return nil
}

type testEnv struct {
	repo      *repository.InMemoryRepository
	registry  *datasource.Registry
	templates *TemplateService
	reports   *ReportService
	publisher *mockPublisher
	seen      map[models.DataSource][]models.ReportFilter
	mu        sync.Mutex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      repository.NewInMemoryRepository(),
		registry:  datasource.NewRegistry(),
		publisher: &mockPublisher{},
		seen:      map[models.DataSource][]models.ReportFilter{},
	}
	env.templates = NewTemplateService(env.repo)
	planner := engine.NewPlanner(env.registry, 0)
	executor := engine.NewExecutor(planner, engine.ExecutorConfig{WidgetTimeout: time.Second}, logging.Discard())
	env.reports = NewReportService(env.templates, env.repo, env.registry, planner, executor, ReportServiceConfig{
		Publisher: env.publisher,
		Logger:    logging.Discard(),
	})
	return env
}

// register binds source to a fixed record set and remembers the filters
// each fetch received.
func (e *testEnv) register(source models.DataSource, records []models.Record, err error) {
	e.registry.Register(source, datasource.AdapterFunc(func(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
		e.mu.Lock()
		e.seen[source] = filters
		e.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return records, nil
	}))
}

func (e *testEnv) createTemplate(t *testing.T, owner string, public bool, widgets ...models.WidgetConfig) *models.ReportTemplate {
	t.Helper()
	tmpl, err := e.templates.Create(context.Background(), owner, &models.CreateTemplateRequest{
		Name:     "Test report",
		Category: "security",
		IsPublic: public,
		Widgets:  widgets,
		GlobalFilters: []models.ReportFilter{
			{Field: "manager", Operator: models.OpEquals, Value: models.String("wazuh-manager")},
		},
	})
	require.NoError(t, err)
	return tmpl
}

func alertRecords(n int) []models.Record {
	out := make([]models.Record, n)
	for i := range out {
		out[i] = models.Record{
			"id":        models.String(fmt.Sprintf("a-%d", i)),
			"manager":   models.String("wazuh-manager"),
			"severity":  models.String("high"),
			"timestamp": models.String(fmt.Sprintf("2025-03-0%dT10:00:00.000Z", i+1)),
		}
	}
	return out
}

func TestGenerate_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(5), nil)
	env.register(models.SourceIRISCases, nil, datasource.NewAdapterError(models.SourceIRISCases, datasource.KindNetwork, errors.New("connection refused")))

	tmpl := env.createTemplate(t, "alice", false,
		models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts},
		models.WidgetConfig{ID: "B", Type: models.WidgetTable, DataSource: models.SourceIRISCases},
	)

	report, err := env.reports.Generate(context.Background(), "alice", tmpl.ID, nil, TriggerAPI)
	require.NoError(t, err)

	require.Len(t, report.Data, 2)
	assert.Equal(t, "A", report.Data[0].WidgetID)
	assert.Len(t, report.Data[0].Data, 5)
	assert.Empty(t, report.Data[0].Error)
	assert.Equal(t, "B", report.Data[1].WidgetID)
	assert.Empty(t, report.Data[1].Data)
	assert.Contains(t, report.Data[1].Error, "connection refused")

	assert.Equal(t, 5, report.Metadata.TotalRecords)
	assert.Equal(t, 1, report.Metadata.FailedWidgets)
	assert.Equal(t, []models.DataSource{models.SourceWazuhAlerts, models.SourceIRISCases}, report.Metadata.DataSourcesUsed)
	assert.Equal(t, "manager equals wazuh-manager", report.Metadata.FiltersSummary)
	assert.Equal(t, "alice", report.GeneratedBy)
	assert.Equal(t, tmpl.Name, report.TemplateName)

	stored, err := env.repo.GetReport(context.Background(), report.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Data, 2)
}

func TestGenerate_OneResultPerWidget(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(3), nil)
	env.register(models.SourceWazuhAgents, nil, errors.New("boom"))

	widgets := make([]models.WidgetConfig, 0, 7)
	for i := 0; i < 7; i++ {
		source := models.SourceWazuhAlerts
		if i%3 == 0 {
			source = models.SourceWazuhAgents
		}
		widgets = append(widgets, models.WidgetConfig{ID: fmt.Sprintf("w%d", i), Type: models.WidgetTable, DataSource: source})
	}
	tmpl := env.createTemplate(t, "alice", false, widgets...)

	report, err := env.reports.Generate(context.Background(), "alice", tmpl.ID, nil, TriggerAPI)
	require.NoError(t, err)
	require.Len(t, report.Data, len(widgets))
	for i, w := range report.Data {
		assert.Equal(t, widgets[i].ID, w.WidgetID)
		assert.Equal(t, w.DataSource == models.SourceWazuhAgents, w.Failed())
	}
	assert.Equal(t, 3, report.Metadata.FailedWidgets)
	assert.Equal(t, 12, report.Metadata.TotalRecords)
}

func TestGenerate_EffectiveFilters(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(5), nil)
	tmpl := env.createTemplate(t, "alice", false, models.WidgetConfig{
		ID:         "A",
		Type:       models.WidgetTable,
		DataSource: models.SourceWazuhAlerts,
		QueryConfig: models.QueryConfig{
			Filters: []models.ReportFilter{{Field: "severity", Operator: models.OpEquals, Value: models.String("high")}},
		},
	})

	req := &models.GenerateReportRequest{
		Filters: []models.ReportFilter{{Field: "id", Operator: models.OpNotEquals, Value: models.String("a-1")}},
		DateRange: &models.DateRange{
			Start: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 4, 23, 59, 59, 0, time.UTC),
		},
	}
	report, err := env.reports.Generate(context.Background(), "alice", tmpl.ID, req, TriggerAPI)
	require.NoError(t, err)

	fields := []string{}
	for _, f := range env.seen[models.SourceWazuhAlerts] {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"manager", "id", "timestamp", "severity"}, fields)

	require.Len(t, report.Filters, 3)
	assert.Equal(t, models.OpBetween, report.Filters[2].Operator)
	assert.Equal(t, models.Strings("2025-03-02T00:00:00.000Z", "2025-03-04T23:59:59.000Z"), report.Filters[2].Value)

	ids := []string{}
	for _, r := range report.Data[0].Data {
		ids = append(ids, r["id"].String())
	}
	assert.Equal(t, []string{"a-2", "a-3"}, ids)
	assert.Equal(t, 2, report.Metadata.TotalRecords)
	assert.Contains(t, report.Metadata.FiltersSummary, "timestamp between [2025-03-02T00:00:00.000Z, 2025-03-04T23:59:59.000Z]")
}

func TestGenerate_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(1), nil)
	private := env.createTemplate(t, "alice", false, models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts})
	unsupported := env.createTemplate(t, "alice", false,
		models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts},
		models.WidgetConfig{ID: "V", Type: models.WidgetTable, DataSource: models.SourceVulnerabilities},
	)

	tests := []struct {
		name       string
		userID     string
		templateID string
		req        *models.GenerateReportRequest
		wantErr    error
	}{
		{"missing template", "alice", "nope", nil, repository.ErrTemplateNotFound},
		{"private template", "bob", private.ID, nil, ErrAccessDenied},
		{"unsupported source", "alice", unsupported.ID, nil, datasource.ErrUnsupportedDataSource},
		{"inverted date range", "alice", private.ID, &models.GenerateReportRequest{
			DateRange: &models.DateRange{Start: time.Now(), End: time.Now().Add(-time.Hour)},
		}, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reports.Generate(context.Background(), tt.userID, tt.templateID, tt.req, TriggerAPI)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, total, err := env.repo.ListReports(context.Background(), &models.ListReportsRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, total, "aborted generations store nothing")
}

func TestGenerate_CancelledStillStored(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(1), nil)
	tmpl := env.createTemplate(t, "alice", false, models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.reports.Generate(ctx, "alice", tmpl.ID, nil, TriggerAPI)
	require.NoError(t, err)
	require.Len(t, report.Data, 1)
	assert.Contains(t, report.Data[0].Error, "cancelled")

	_, err = env.repo.GetReport(context.Background(), report.ID)
	assert.NoError(t, err)
}

func TestGenerate_PublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(2), nil)
	tmpl := env.createTemplate(t, "alice", true, models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts})

	report, err := env.reports.Generate(context.Background(), "bob", tmpl.ID, nil, TriggerSchedule)
	require.NoError(t, err)

	require.Len(t, env.publisher.messages, 1)
	msg := env.publisher.messages[0]
	assert.Equal(t, messaging.SubjectReportsGenerated, msg.subject)

	var event ReportGeneratedEvent
	require.NoError(t, json.Unmarshal(msg.data, &event))
	assert.Equal(t, report.ID, event.ReportID)
	assert.Equal(t, "bob", event.GeneratedBy)
	assert.Equal(t, TriggerSchedule, event.Trigger)
	assert.Equal(t, 2, event.TotalRecords)

	env.publisher.err = errors.New("nats down")
	_, err = env.reports.Generate(context.Background(), "bob", tmpl.ID, nil, TriggerAPI)
	assert.NoError(t, err, "publish failures do not fail generation")
}

func TestReportService_GetAndList(t *testing.T) {
	env := newTestEnv(t)
	env.register(models.SourceWazuhAlerts, alertRecords(1), nil)
	tmpl := env.createTemplate(t, "alice", true, models.WidgetConfig{ID: "A", Type: models.WidgetTable, DataSource: models.SourceWazuhAlerts})
	ctx := context.Background()

	var aliceReport *models.GeneratedReport
	for i := 0; i < 3; i++ {
		r, err := env.reports.Generate(ctx, "alice", tmpl.ID, nil, TriggerAPI)
		require.NoError(t, err)
		aliceReport = r
	}
	_, err := env.reports.Generate(ctx, "bob", tmpl.ID, nil, TriggerAPI)
	require.NoError(t, err)

	got, err := env.reports.GetReport(ctx, "alice", aliceReport.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceReport.ID, got.ID)

	_, err = env.reports.GetReport(ctx, "bob", aliceReport.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = env.reports.GetReport(ctx, "alice", "missing")
	assert.ErrorIs(t, err, repository.ErrReportNotFound)

	page, err := env.reports.ListReports(ctx, "alice", &models.ListReportsRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Reports, 2)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	defaults, err := env.reports.ListReports(ctx, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Pagination.Total)
	assert.Equal(t, 20, defaults.Pagination.Limit)
}

func TestQueryData(t *testing.T) {
	env := newTestEnv(t)
	records := alertRecords(4)
	records[3]["severity"] = models.String("low")
	env.register(models.SourceWazuhAlerts, records, nil)
	env.register(models.SourceIRISCases, nil, datasource.NewAdapterError(models.SourceIRISCases, datasource.KindAuth, errors.New("401")))

	t.Run("group with count", func(t *testing.T) {
		got, err := env.reports.QueryData(context.Background(), &models.QueryRequest{
			DataSource:  models.SourceWazuhAlerts,
			GroupBy:     []string{"severity"},
			Aggregation: &models.Aggregation{Field: "id", Type: models.AggCount},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, models.String("high"), got[0]["severity"])
		assert.Equal(t, models.Int(3), got[0]["count"])
	})

	t.Run("or expression", func(t *testing.T) {
		got, err := env.reports.QueryData(context.Background(), &models.QueryRequest{
			DataSource: models.SourceWazuhAlerts,
			Where: &models.FilterNode{Op: models.NodeOr, Children: []models.FilterNode{
				{Filter: &models.ReportFilter{Field: "id", Operator: models.OpEquals, Value: models.String("a-0")}},
				{Filter: &models.ReportFilter{Field: "severity", Operator: models.OpEquals, Value: models.String("low")}},
			}},
		})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	tests := []struct {
		name    string
		req     *models.QueryRequest
		wantErr error
	}{
		{"missing source", &models.QueryRequest{}, ErrInvalidRequest},
		{"negative limit", &models.QueryRequest{DataSource: models.SourceWazuhAlerts, Limit: -1}, ErrInvalidRequest},
		{"unsupported", &models.QueryRequest{DataSource: models.SourceFIMEvents}, datasource.ErrUnsupportedDataSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reports.QueryData(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("adapter error surfaces", func(t *testing.T) {
		_, err := env.reports.QueryData(context.Background(), &models.QueryRequest{DataSource: models.SourceIRISCases})
		var adapterErr *datasource.AdapterError
		require.ErrorAs(t, err, &adapterErr)
		assert.Equal(t, datasource.KindAuth, adapterErr.Kind)
	})
}

func TestGenerate_PredefinedWithDemoData(t *testing.T) {
	env := newTestEnv(t)
	datasource.RegisterDemo(env.registry, datasource.DemoConfig{
		Seed: 7,
		Now:  func() time.Time { return time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC) },
	})
	_, err := env.templates.SeedPredefinedTemplates(context.Background())
	require.NoError(t, err)

	templates, err := PredefinedTemplates()
	require.NoError(t, err)
	for _, tmpl := range templates {
		t.Run(tmpl.ID, func(t *testing.T) {
			report, err := env.reports.Generate(context.Background(), "alice", tmpl.ID, nil, TriggerAPI)
			require.NoError(t, err)
			require.Len(t, report.Data, len(tmpl.Widgets))
			assert.Zero(t, report.Metadata.FailedWidgets)
			assert.Greater(t, report.Metadata.TotalRecords, 0)
		})
	}
}
