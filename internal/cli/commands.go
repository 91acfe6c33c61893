// Package cli implements reportctl, the command-line client of the report
// service.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

type app struct {
	cfgFile string
	profile string
	url     string
	token   string
	user    string
	output  string
}

func (a *app) client() (*Client, error) {
	cfg, err := LoadConfig(a.cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	p := cfg.GetProfile(a.profile)
	if a.url != "" {
		p.URL = a.url
	}
	if a.token != "" {
		p.Token = a.token
	}
	if a.user != "" {
		p.User = a.user
	}
	if p.Token == "" && p.User == "" {
		return nil, fmt.Errorf("no credentials: set --token or --user, or run 'reportctl configure'")
	}
	return NewClient(p), nil
}

func (a *app) printer(cmd *cobra.Command) *Printer {
	return NewPrinter(cmd.OutOrStdout(), a.output)
}

// NewRootCommand builds the reportctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "reportctl",
		Short: "InSoctor report engine CLI",
		Long: `reportctl manages report templates, generates reports and runs
ad-hoc queries against the InSoctor report service.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.reportctl/config.yaml)")
	root.PersistentFlags().StringVar(&a.profile, "profile", "", "profile to use")
	root.PersistentFlags().StringVar(&a.url, "url", "", "report service URL")
	root.PersistentFlags().StringVar(&a.token, "token", "", "bearer token")
	root.PersistentFlags().StringVar(&a.user, "user", "", "user id sent as X-User-ID when no token is set")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table, json, yaml")

	root.AddCommand(
		newConfigureCommand(a),
		newTemplatesCommand(a),
		newGenerateCommand(a),
		newReportsCommand(a),
		newQueryCommand(a),
	)
	return root
}

// Execute runs reportctl with os.Args.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		NewPrinter(os.Stderr, "").Error("%v", err)
		return err
	}
	return nil
}

func newConfigureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Save --url, --token and --user into a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			name := a.profile
			if name == "" {
				name = "default"
			}
			p := cfg.GetProfile(name)
			if a.url != "" {
				p.URL = a.url
			}
			if a.token != "" {
				p.Token = a.token
			}
			if a.user != "" {
				p.User = a.user
			}
			if err := cfg.SetProfile(name, p); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			a.printer(cmd).Success("Profile %q saved (%s)", name, p.URL)
			return nil
		},
	}
}

func newTemplatesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Manage report templates",
	}

	var category string
	var tags []string
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your templates and public ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			templates, err := c.ListTemplates(category, tags)
			if err != nil {
				return fmt.Errorf("failed to list templates: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(templates)
			}
			if len(templates) == 0 {
				p.Info("No templates found")
				return nil
			}
			table := NewTable("ID", "Name", "Category", "Widgets", "Owner", "Public", "Version")
			for _, t := range templates {
				table.AddRow(t.ID, t.Name, t.Category, strconv.Itoa(len(t.Widgets)), t.CreatedBy,
					strconv.FormatBool(t.IsPublic), strconv.Itoa(t.Version))
			}
			table.Render(cmd.OutOrStdout())
			return nil
		},
	}
	list.Flags().StringVar(&category, "category", "", "filter by category")
	list.Flags().StringSliceVar(&tags, "tag", nil, "filter by tag (repeatable, all must match)")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			t, err := c.GetTemplate(args[0])
			if err != nil {
				return fmt.Errorf("failed to get template: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(t)
			}
			p.Info("%s (%s)", t.Name, t.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Category: %s  Owner: %s  Version: %d  Public: %t\n",
				t.Category, t.CreatedBy, t.Version, t.IsPublic)
			if len(t.GlobalFilters) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Global filters: %s\n", models.SummarizeFilters(t.GlobalFilters))
			}
			table := NewTable("Widget", "Type", "Data Source", "Title")
			for _, w := range t.Widgets {
				table.AddRow(w.ID, w.Type, string(w.DataSource), w.Title)
			}
			table.Render(cmd.OutOrStdout())
			return nil
		},
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a template from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readTemplateFile(file)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			t, err := c.CreateTemplate(req)
			if err != nil {
				return fmt.Errorf("failed to create template: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(t)
			}
			p.Success("Template %q created: %s", t.Name, t.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "template definition file")
	_ = create.MarkFlagRequired("file")

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a template you own",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.DeleteTemplate(args[0]); err != nil {
				return fmt.Errorf("failed to delete template: %w", err)
			}
			a.printer(cmd).Success("Template %s deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, create, del)
	return cmd
}

func newGenerateCommand(a *app) *cobra.Command {
	var filters []string
	var since time.Duration
	var start, end string

	cmd := &cobra.Command{
		Use:   "generate <template-id>",
		Short: "Generate a report from a template",
		Long: `Generate a report from a template.

Filters use field:operator:value, e.g. --filter severity:in:["high","critical"].
Values that parse as JSON keep their type; anything else is a string.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ParseFilters(filters)
			if err != nil {
				return err
			}
			req := &models.GenerateReportRequest{Filters: parsed}
			if req.DateRange, err = parseDateRange(since, start, end, time.Now()); err != nil {
				return err
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			report, err := c.Generate(args[0], req)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(report)
			}
			printReport(cmd, p, report)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "request filter field:operator:value (repeatable)")
	cmd.Flags().DurationVar(&since, "since", 0, "date range ending now, e.g. 24h")
	cmd.Flags().StringVar(&start, "start", "", "date range start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "date range end (RFC3339)")
	return cmd
}

func newReportsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"report"},
		Short:   "Browse generated reports",
	}

	var templateID string
	var page, limit int
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List reports you generated, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			reports, pagination, err := c.ListReports(templateID, page, limit)
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(reports)
			}
			if len(reports) == 0 {
				p.Info("No reports found")
				return nil
			}
			table := NewTable("ID", "Template", "Generated", "Records", "Failed Widgets")
			for _, r := range reports {
				table.AddRow(r.ID, r.TemplateName, r.GeneratedAt.Format(time.RFC3339),
					strconv.Itoa(r.Metadata.TotalRecords), strconv.Itoa(r.Metadata.FailedWidgets))
			}
			table.Render(cmd.OutOrStdout())
			if pagination != nil {
				p.Info("Page %d of %d (%d total)", pagination.Page, pagination.TotalPages, pagination.Total)
			}
			return nil
		},
	}
	list.Flags().StringVar(&templateID, "template", "", "only reports of this template")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 20, "reports per page")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a generated report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			report, err := c.GetReport(args[0])
			if err != nil {
				return fmt.Errorf("failed to get report: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(report)
			}
			printReport(cmd, p, report)
			return nil
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func newQueryCommand(a *app) *cobra.Command {
	var filters, groupBy []string
	var agg, sortBy string
	var limit int

	cmd := &cobra.Command{
		Use:   "query <data-source>",
		Short: "Run an ad-hoc query against a data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ParseFilters(filters)
			if err != nil {
				return err
			}
			req := &models.QueryRequest{
				DataSource: models.DataSource(args[0]),
				Filters:    parsed,
				GroupBy:    groupBy,
				Limit:      limit,
			}
			if agg != "" {
				typ, field, ok := strings.Cut(agg, ":")
				if !ok {
					return fmt.Errorf("invalid --agg %q, expected type:field", agg)
				}
				req.Aggregation = &models.Aggregation{Type: models.AggregationType(typ), Field: field}
			}
			if sortBy != "" {
				field, order, _ := strings.Cut(sortBy, ":")
				req.SortBy = &models.SortBy{Field: field, Order: order}
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			result, err := c.Query(req)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}

			p := a.printer(cmd)
			if p.Structured() {
				return p.Value(result.Records)
			}
			printRecords(cmd, result.Records)
			p.Info("%d record(s) from %s", result.Count, result.DataSource)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "filter field:operator:value (repeatable)")
	cmd.Flags().StringSliceVar(&groupBy, "group-by", nil, "group by fields")
	cmd.Flags().StringVar(&agg, "agg", "", "aggregation type:field, e.g. avg:rule.level")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort field[:asc|desc]")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum records (server default when 0)")
	return cmd
}

// ParseFilters parses field:operator:value expressions.
func ParseFilters(exprs []string) ([]models.ReportFilter, error) {
	filters := make([]models.ReportFilter, 0, len(exprs))
	for _, expr := range exprs {
		parts := strings.SplitN(expr, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field:operator:value", expr)
		}
		f := models.ReportFilter{Field: parts[0], Operator: models.Operator(parts[1])}
		if len(parts) == 3 {
			f.Value = parseValue(parts[2])
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseValue(s string) models.Value {
	var v models.Value
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return models.String(s)
}

func parseDateRange(since time.Duration, start, end string, now time.Time) (*models.DateRange, error) {
	if since > 0 {
		if start != "" || end != "" {
			return nil, fmt.Errorf("--since cannot be combined with --start/--end")
		}
		return &models.DateRange{Start: now.Add(-since).UTC(), End: now.UTC()}, nil
	}
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("--start and --end must be set together")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return nil, fmt.Errorf("invalid --end: %w", err)
	}
	return &models.DateRange{Start: s, End: e}, nil
}

func readTemplateFile(path string) (*models.CreateTemplateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var req models.CreateTemplateRequest
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, &req)
	} else {
		err = yaml.Unmarshal(data, &req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &req, nil
}

func printReport(cmd *cobra.Command, p *Printer, r *models.GeneratedReport) {
	out := cmd.OutOrStdout()
	p.Success("Report %s (%s)", r.ID, r.TemplateName)
	fmt.Fprintf(out, "Generated %s by %s in %dms, %d record(s)\n",
		r.GeneratedAt.Format(time.RFC3339), r.GeneratedBy, r.Metadata.ExecutionTimeMs, r.Metadata.TotalRecords)
	if r.Metadata.FiltersSummary != "" {
		fmt.Fprintf(out, "Filters: %s\n", r.Metadata.FiltersSummary)
	}

	table := NewTable("Widget", "Type", "Data Source", "Records", "Error")
	for _, w := range r.Data {
		table.AddRow(w.WidgetID, w.WidgetType, string(w.DataSource), strconv.Itoa(len(w.Data)), w.Error)
	}
	table.Render(out)

	if r.Metadata.FailedWidgets > 0 {
		p.Warn("%d widget(s) failed", r.Metadata.FailedWidgets)
	}
}

// printRecords renders records as a table over the union of their top-level
// fields, in first-seen order.
func printRecords(cmd *cobra.Command, records []models.Record) {
	var columns []string
	seen := map[string]bool{}
	for _, r := range records {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	if len(columns) == 0 {
		return
	}

	table := NewTable(columns...)
	for _, r := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := r[col]; ok {
				row[i] = v.String()
			}
		}
		table.AddRow(row...)
	}
	table.Render(cmd.OutOrStdout())
}
