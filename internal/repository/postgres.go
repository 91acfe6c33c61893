package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/database"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const templateColumns = `id, name, description, category, widgets, global_filters, layout,
	is_public, is_predefined, created_by, version, tags, schedule, created_at, updated_at`

type templateRow struct {
	t             models.ReportTemplate
	widgets       []byte
	globalFilters []byte
	layout        []byte
	schedule      []byte
}

func (row *templateRow) dest() []interface{} {
	return []interface{}{
		&row.t.ID, &row.t.Name, &row.t.Description, &row.t.Category,
		&row.widgets, &row.globalFilters, &row.layout,
		&row.t.IsPublic, &row.t.IsPredefined, &row.t.CreatedBy, &row.t.Version,
		&row.t.Tags, &row.schedule, &row.t.CreatedAt, &row.t.UpdatedAt,
	}
}

func (row *templateRow) decode() (*models.ReportTemplate, error) {
	t := row.t
	if err := json.Unmarshal(row.widgets, &t.Widgets); err != nil {
		return nil, fmt.Errorf("failed to decode widgets: %w", err)
	}
	if err := json.Unmarshal(row.globalFilters, &t.GlobalFilters); err != nil {
		return nil, fmt.Errorf("failed to decode global filters: %w", err)
	}
	if len(row.layout) > 0 {
		if err := json.Unmarshal(row.layout, &t.Layout); err != nil {
			return nil, fmt.Errorf("failed to decode layout: %w", err)
		}
	}
	if len(row.schedule) > 0 && string(row.schedule) != "null" {
		t.Schedule = &models.Schedule{}
		if err := json.Unmarshal(row.schedule, t.Schedule); err != nil {
			return nil, fmt.Errorf("failed to decode schedule: %w", err)
		}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

func scanTemplate(s pgx.Row) (*models.ReportTemplate, error) {
	var row templateRow
	if err := s.Scan(row.dest()...); err != nil {
		return nil, err
	}
	return row.decode()
}

func scanTemplates(rows pgx.Rows) ([]*models.ReportTemplate, error) {
	defer rows.Close()

	templates := []*models.ReportTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return templates, nil
}

func scheduleJSON(s *models.Schedule) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// CreateTemplate inserts a new template
func (r *PostgresRepository) CreateTemplate(ctx context.Context, t *models.ReportTemplate) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	widgets, err := json.Marshal(nonNilWidgets(t.Widgets))
	if err != nil {
		return fmt.Errorf("failed to encode widgets: %w", err)
	}
	filters, err := json.Marshal(nonNilFilters(t.GlobalFilters))
	if err != nil {
		return fmt.Errorf("failed to encode global filters: %w", err)
	}
	layout, err := json.Marshal(t.Layout)
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	schedule, err := scheduleJSON(t.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	query := `
		INSERT INTO report_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		t.ID, t.Name, t.Description, t.Category, widgets, filters, layout,
		t.IsPublic, t.IsPredefined, t.CreatedBy, t.Version, nonNilStrings(t.Tags), schedule,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateExists
	}
	return nil
}

// GetTemplate retrieves a template by ID
func (r *PostgresRepository) GetTemplate(ctx context.Context, id string) (*models.ReportTemplate, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + templateColumns + ` FROM report_templates WHERE id = $1`
	t, err := scanTemplate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// UpdateTemplate patches a template and bumps its version in one statement
func (r *PostgresRepository) UpdateTemplate(ctx context.Context, id string, req *models.UpdateTemplateRequest, updatedAt time.Time) (*models.ReportTemplate, error) {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	setClauses := []string{"updated_at = $1", "version = version + 1"}
	args := []interface{}{updatedAt}
	argPos := 2

	set := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	setJSON := func(column string, value interface{}) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", column, err)
		}
		set(column, data)
		return nil
	}

	if req.Name != nil {
		set("name", *req.Name)
	}
	if req.Description != nil {
		set("description", *req.Description)
	}
	if req.Category != nil {
		set("category", *req.Category)
	}
	if req.Widgets != nil {
		if err := setJSON("widgets", nonNilWidgets(*req.Widgets)); err != nil {
			return nil, err
		}
	}
	if req.GlobalFilters != nil {
		if err := setJSON("global_filters", nonNilFilters(*req.GlobalFilters)); err != nil {
			return nil, err
		}
	}
	if req.Layout != nil {
		if err := setJSON("layout", req.Layout); err != nil {
			return nil, err
		}
	}
	if req.IsPublic != nil {
		set("is_public", *req.IsPublic)
	}
	if req.Tags != nil {
		set("tags", nonNilStrings(*req.Tags))
	}
	if req.Schedule != nil {
		if err := setJSON("schedule", req.Schedule); err != nil {
			return nil, err
		}
	}

	where := fmt.Sprintf("id = $%d", argPos)
	args = append(args, id)
	argPos++
	if req.ExpectedVersion != nil {
		where += fmt.Sprintf(" AND version = $%d", argPos)
		args = append(args, *req.ExpectedVersion)
	}

	query := fmt.Sprintf(`
		UPDATE report_templates
		SET %s
		WHERE %s
		RETURNING %s
	`, strings.Join(setClauses, ", "), where, templateColumns)

	t, err := scanTemplate(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	// no row: either gone or the version moved on
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM report_templates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check template: %w", err)
	}
	if exists {
		return nil, ErrVersionConflict
	}
	return nil, ErrTemplateNotFound
}

// DeleteTemplate hard-deletes a template
func (r *PostgresRepository) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM report_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// ListTemplates returns userID's templates and all public ones
func (r *PostgresRepository) ListTemplates(ctx context.Context, userID string, req *models.ListTemplatesRequest) ([]*models.ReportTemplate, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := "WHERE (created_by = $1 OR is_public)"
	args := []interface{}{userID}
	argPos := 2

	if req != nil && req.Category != "" {
		whereClause += fmt.Sprintf(" AND category = $%d", argPos)
		args = append(args, req.Category)
		argPos++
	}
	if req != nil && len(req.Tags) > 0 {
		whereClause += fmt.Sprintf(" AND tags @> $%d", argPos)
		args = append(args, req.Tags)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM report_templates
		%s
		ORDER BY is_predefined DESC, updated_at DESC, id
	`, templateColumns, whereClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return scanTemplates(rows)
}

// ListScheduledTemplates returns templates with an enabled schedule
func (r *PostgresRepository) ListScheduledTemplates(ctx context.Context) ([]*models.ReportTemplate, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + templateColumns + ` FROM report_templates
		WHERE (schedule->>'enabled')::boolean IS TRUE
		ORDER BY is_predefined DESC, updated_at DESC, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled templates: %w", err)
	}
	return scanTemplates(rows)
}

const reportColumns = `id, template_id, template_name, generated_at, generated_by,
	filters, date_range, data, metadata`

func scanReport(s pgx.Row) (*models.GeneratedReport, error) {
	var (
		rep                                   models.GeneratedReport
		filters, dateRange, data, metadataRaw []byte
	)
	if err := s.Scan(
		&rep.ID, &rep.TemplateID, &rep.TemplateName, &rep.GeneratedAt, &rep.GeneratedBy,
		&filters, &dateRange, &data, &metadataRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filters, &rep.Filters); err != nil {
		return nil, fmt.Errorf("failed to decode filters: %w", err)
	}
	if len(dateRange) > 0 && string(dateRange) != "null" {
		rep.DateRange = &models.DateRange{}
		if err := json.Unmarshal(dateRange, rep.DateRange); err != nil {
			return nil, fmt.Errorf("failed to decode date range: %w", err)
		}
	}
	if err := json.Unmarshal(data, &rep.Data); err != nil {
		return nil, fmt.Errorf("failed to decode widget data: %w", err)
	}
	if err := json.Unmarshal(metadataRaw, &rep.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &rep, nil
}

// CreateReport stores a generated report
func (r *PostgresRepository) CreateReport(ctx context.Context, rep *models.GeneratedReport) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	filters, err := json.Marshal(nonNilFilters(rep.Filters))
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}
	var dateRange []byte
	if rep.DateRange != nil {
		if dateRange, err = json.Marshal(rep.DateRange); err != nil {
			return fmt.Errorf("failed to encode date range: %w", err)
		}
	}
	data, err := json.Marshal(rep.Data)
	if err != nil {
		return fmt.Errorf("failed to encode widget data: %w", err)
	}
	metadata, err := json.Marshal(rep.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	query := `
		INSERT INTO generated_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		rep.ID, rep.TemplateID, rep.TemplateName, rep.GeneratedAt, rep.GeneratedBy,
		filters, dateRange, data, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// GetReport retrieves a generated report by ID
func (r *PostgresRepository) GetReport(ctx context.Context, id string) (*models.GeneratedReport, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `SELECT ` + reportColumns + ` FROM generated_reports WHERE id = $1`
	rep, err := scanReport(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return rep, nil
}

// ListReports returns a page of reports, newest first
func (r *PostgresRepository) ListReports(ctx context.Context, req *models.ListReportsRequest) ([]*models.GeneratedReport, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.GeneratedBy != "" {
		whereClause += fmt.Sprintf(" AND generated_by = $%d", argPos)
		args = append(args, req.GeneratedBy)
		argPos++
	}
	if req.TemplateID != "" {
		whereClause += fmt.Sprintf(" AND template_id = $%d", argPos)
		args = append(args, req.TemplateID)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM generated_reports %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, req.Limit, offset)

	query := fmt.Sprintf(`
		SELECT %s FROM generated_reports
		%s
		ORDER BY generated_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, reportColumns, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.GeneratedReport{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return reports, total, nil
}

func nonNilWidgets(w []models.WidgetConfig) []models.WidgetConfig {
	if w == nil {
		return []models.WidgetConfig{}
	}
	return w
}

func nonNilFilters(f []models.ReportFilter) []models.ReportFilter {
	if f == nil {
		return []models.ReportFilter{}
	}
	return f
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
