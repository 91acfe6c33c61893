package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// DemoConfig controls the synthetic data set.
type DemoConfig struct {
	Seed   int64
	Count  int
	Window time.Duration
	// Now anchors generated timestamps; defaults to time.Now.
	Now            func() time.Time
	TimestampField string
}

// DemoAdapter produces deterministic synthetic records shaped like the real
// sources, for running the service without a Wazuh or IRIS deployment. The
// same seed and clock always yield the same records.
type DemoAdapter struct {
	source    models.DataSource
	cfg       DemoConfig
	normalize Normalizer
}

// RegisterDemo binds a demo adapter to every source it can imitate.
func RegisterDemo(reg *Registry, cfg DemoConfig) {
	for _, source := range []models.DataSource{
		models.SourceWazuhAlerts,
		models.SourceWazuhAgents,
		models.SourceWazuhRules,
		models.SourceIRISCases,
	} {
		reg.Register(source, NewDemoAdapter(source, cfg))
	}
}

func NewDemoAdapter(source models.DataSource, cfg DemoConfig) *DemoAdapter {
	if cfg.Count <= 0 {
		cfg.Count = 200
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DemoAdapter{
		source:    source,
		cfg:       cfg,
		normalize: Normalizer{Source: source, TimestampField: cfg.TimestampField},
	}
}

var (
	demoAgents = []string{"web-01", "web-02", "db-01", "dc-01", "vpn-gw", "mail-01"}
	demoRules  = []struct {
		id          string
		level       int
		description string
		groups      []string
	}{
		{"5710", 5, "sshd: Attempt to login using a non-existent user", []string{"syslog", "sshd", "authentication_failed"}},
		{"5712", 10, "sshd: brute force trying to get access to the system", []string{"syslog", "sshd", "authentication_failures"}},
		{"5402", 3, "Successful sudo to ROOT executed", []string{"syslog", "sudo"}},
		{"550", 7, "Integrity checksum changed", []string{"ossec", "syscheck"}},
		{"31103", 6, "SQL injection attempt", []string{"web", "accesslog", "attack"}},
		{"87105", 12, "Malware detected by VirusTotal", []string{"virustotal"}},
		{"60122", 8, "Logon failure: unknown user or bad password", []string{"windows", "authentication_failed"}},
	}
)

func severityForLevel(level int) string {
	switch {
	case level >= 12:
		return "critical"
	case level >= 8:
		return "high"
	case level >= 5:
		return "medium"
	default:
		return "low"
	}
}

func (a *DemoAdapter) Fetch(ctx context.Context, _ []models.ReportFilter) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewAdapterError(a.source, KindTimeout, err)
	}

	faker := gofakeit.New(a.cfg.Seed)
	end := a.cfg.Now()
	start := end.Add(-a.cfg.Window)

	count := a.cfg.Count
	if a.source == models.SourceWazuhAgents {
		count = len(demoAgents)
	}
	if a.source == models.SourceWazuhRules {
		count = len(demoRules)
	}

	records := make([]models.Record, 0, count)
	for i := 0; i < count; i++ {
		var raw map[string]any
		switch a.source {
		case models.SourceWazuhAlerts:
			raw = demoAlert(faker, start, end)
		case models.SourceWazuhAgents:
			raw = demoAgent(faker, i, start, end)
		case models.SourceWazuhRules:
			raw = demoRule(i)
		case models.SourceIRISCases:
			raw = demoCase(faker, i, start, end)
		default:
			return nil, NewAdapterError(a.source, KindNotFound, fmt.Errorf("no demo data for %s", a.source))
		}
		records = append(records, a.normalize.Apply(models.RecordFromMap(raw)))
	}
	return records, nil
}

func demoAlert(f *gofakeit.Faker, start, end time.Time) map[string]any {
	rule := demoRules[f.Number(0, len(demoRules)-1)]
	agentIdx := f.Number(0, len(demoAgents)-1)
	groups := make([]any, len(rule.groups))
	for i, g := range rule.groups {
		groups[i] = g
	}
	return map[string]any{
		"id":        f.UUID(),
		"timestamp": f.DateRange(start, end).UTC().Format(time.RFC3339Nano),
		"severity":  severityForLevel(rule.level),
		"rule": map[string]any{
			"id":          rule.id,
			"level":       rule.level,
			"description": rule.description,
			"groups":      groups,
		},
		"agent": map[string]any{
			"id":   fmt.Sprintf("%03d", agentIdx+1),
			"name": demoAgents[agentIdx],
		},
		"data": map[string]any{
			"srcip":   f.IPv4Address(),
			"srcuser": f.Username(),
		},
		"manager": map[string]any{"name": "wazuh-manager"},
	}
}

func demoAgent(f *gofakeit.Faker, i int, start, end time.Time) map[string]any {
	return map[string]any{
		"id":            fmt.Sprintf("%03d", i+1),
		"name":          demoAgents[i],
		"ip":            f.IPv4Address(),
		"status":        f.RandomString([]string{"active", "active", "active", "disconnected", "never_connected"}),
		"version":       "Wazuh v4.7.2",
		"lastKeepAlive": f.DateRange(start, end).UTC().Format(time.RFC3339),
		"os": map[string]any{
			"platform": f.RandomString([]string{"ubuntu", "windows", "centos"}),
			"name":     f.RandomString([]string{"Ubuntu", "Microsoft Windows Server 2022", "CentOS Stream"}),
		},
	}
}

func demoRule(i int) map[string]any {
	rule := demoRules[i]
	groups := make([]any, len(rule.groups))
	for j, g := range rule.groups {
		groups[j] = g
	}
	return map[string]any{
		"id":          rule.id,
		"level":       rule.level,
		"description": rule.description,
		"groups":      groups,
		"status":      "enabled",
	}
}

func demoCase(f *gofakeit.Faker, i int, start, end time.Time) map[string]any {
	return map[string]any{
		"case_id":        i + 1,
		"name":           fmt.Sprintf("#%d - %s", i+1, f.HackerPhrase()),
		"description":    f.Sentence(12),
		"state_name":     f.RandomString([]string{"Open", "Open", "In progress", "Closed"}),
		"severity":       f.RandomString([]string{"low", "medium", "high", "critical"}),
		"owner":          f.Username(),
		"client_name":    f.Company(),
		"classification": f.RandomString([]string{"malicious-code:ransomware", "intrusions:compromised-account", "fraud:phishing"}),
		"open_date":      f.DateRange(start, end).UTC().Format("2006-01-02"),
	}
}
