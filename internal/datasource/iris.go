package datasource

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// IRISConfig points at a DFIR-IRIS instance.
type IRISConfig struct {
	URL            string
	APIKey         string
	Insecure       bool
	Timeout        time.Duration
	TimestampField string
}

// IRISCasesAdapter lists cases from the IRIS case manager. IRIS offers no
// server-side filtering on the case list, so every case is fetched and the
// engine filters them.
type IRISCasesAdapter struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	normalize Normalizer
}

func NewIRISCasesAdapter(cfg IRISConfig) *IRISCasesAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IRISCasesAdapter{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
			},
		},
		normalize: Normalizer{
			Source:         models.SourceIRISCases,
			TimestampField: cfg.TimestampField,
			TimeFrom:       []string{"open_date", "case_open_date", "initial_date"},
		},
	}
}

func (a *IRISCasesAdapter) Fetch(ctx context.Context, _ []models.ReportFilter) ([]models.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/manage/cases/list", nil)
	if err != nil {
		return nil, NewAdapterError(models.SourceIRISCases, KindQuery, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, NewAdapterError(models.SourceIRISCases, KindNetwork, fmt.Errorf("list cases: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(models.SourceIRISCases, resp.StatusCode, string(body))
	}

	var env struct {
		Status  string            `json:"status"`
		Message string            `json:"message"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, NewAdapterError(models.SourceIRISCases, KindDecode, fmt.Errorf("decode cases: %w", err))
	}
	if env.Status != "" && env.Status != "success" {
		return nil, NewAdapterError(models.SourceIRISCases, KindUpstream, fmt.Errorf("iris returned %s: %s", env.Status, env.Message))
	}

	records := make([]models.Record, 0, len(env.Data))
	for _, item := range env.Data {
		r, err := models.RecordFromJSON(item)
		if err != nil {
			return nil, NewAdapterError(models.SourceIRISCases, KindDecode, err)
		}
		records = append(records, a.normalize.Apply(r))
	}
	return records, nil
}
