package datasource

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

const (
	DefaultAlertsIndex = "wazuh-alerts-*"
	DefaultFetchSize   = 1000
)

// WazuhIndexerConfig points at the OpenSearch cluster behind the Wazuh indexer.
type WazuhIndexerConfig struct {
	URL            string
	Username       string
	Password       string
	Insecure       bool
	Index          string
	Size           int
	TimestampField string
}

// WazuhAlertsAdapter reads alerts from the Wazuh indexer, pushing the
// filters it understands down into an OpenSearch bool query.
type WazuhAlertsAdapter struct {
	client    *opensearch.Client
	index     string
	size      int
	normalize Normalizer
}

// NewWazuhIndexerClient creates an OpenSearch client for cfg.
func NewWazuhIndexerClient(cfg WazuhIndexerConfig) (*opensearch.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Insecure,
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return client, nil
}

// NewWazuhAlertsAdapter wraps an existing client.
func NewWazuhAlertsAdapter(client *opensearch.Client, cfg WazuhIndexerConfig) *WazuhAlertsAdapter {
	index := cfg.Index
	if index == "" {
		index = DefaultAlertsIndex
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultFetchSize
	}
	return &WazuhAlertsAdapter{
		client: client,
		index:  index,
		size:   size,
		normalize: Normalizer{
			Source:         models.SourceWazuhAlerts,
			TimestampField: cfg.TimestampField,
			TimeFrom:       []string{"@timestamp"},
		},
	}
}

func (a *WazuhAlertsAdapter) Fetch(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
	query := BuildAlertsQuery(filters, a.normalize.TimestampField)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, NewAdapterError(models.SourceWazuhAlerts, KindQuery, fmt.Errorf("encode query: %w", err))
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(&buf),
		a.client.Search.WithSize(a.size),
	)
	if err != nil {
		return nil, NewAdapterError(models.SourceWazuhAlerts, KindNetwork, fmt.Errorf("search request: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, statusError(models.SourceWazuhAlerts, res.StatusCode, string(body))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Index  string          `json:"_index"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, NewAdapterError(models.SourceWazuhAlerts, KindDecode, fmt.Errorf("decode response: %w", err))
	}

	records := make([]models.Record, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		r, err := models.RecordFromJSON(hit.Source)
		if err != nil {
			return nil, NewAdapterError(models.SourceWazuhAlerts, KindDecode, fmt.Errorf("decode hit %s: %w", hit.ID, err))
		}
		if _, ok := r["id"]; !ok {
			r["id"] = models.String(hit.ID)
		}
		r["_index"] = models.String(hit.Index)
		records = append(records, a.normalize.Apply(r))
	}
	return records, nil
}

// stampedFields are filled in after the search, from hit metadata or by the
// Normalizer, so the indexer cannot filter on them.
var stampedFields = map[string]bool{
	SourceField: true,
	"id":        true,
	"_index":    true,
}

// BuildAlertsQuery translates the filters OpenSearch can evaluate exactly into
// a bool query sorted newest first. contains, not-contains, unknown operators
// and fields stamped after the search are left to the engine.
func BuildAlertsQuery(filters []models.ReportFilter, timestampField string) map[string]interface{} {
	if timestampField == "" {
		timestampField = DefaultTimestampField
	}

	var must, mustNot []interface{}
	for _, f := range filters {
		if stampedFields[f.Field] {
			continue
		}
		clause, negate, ok := translateFilter(f)
		if !ok {
			continue
		}
		if negate {
			mustNot = append(mustNot, clause)
		} else {
			must = append(must, clause)
		}
	}

	query := map[string]interface{}{
		"match_all": map[string]interface{}{},
	}
	if len(must) > 0 || len(mustNot) > 0 {
		boolQuery := map[string]interface{}{}
		if len(must) > 0 {
			boolQuery["filter"] = must
		}
		if len(mustNot) > 0 {
			boolQuery["must_not"] = mustNot
		}
		query = map[string]interface{}{"bool": boolQuery}
	}

	return map[string]interface{}{
		"query": query,
		"sort": []map[string]interface{}{
			{timestampField: map[string]interface{}{"order": "desc", "unmapped_type": "date"}},
		},
	}
}

func translateFilter(f models.ReportFilter) (clause map[string]interface{}, negate bool, ok bool) {
	field := f.Field
	switch f.Operator {
	case models.OpEquals, models.OpNotEquals:
		if f.Value.IsNil() || f.Value.Kind() == models.KindArray || f.Value.Kind() == models.KindMap {
			return nil, false, false
		}
		return map[string]interface{}{
			"term": map[string]interface{}{field: f.Value.Any()},
		}, f.Operator == models.OpNotEquals, true

	case models.OpIn, models.OpNotIn:
		items, isArray := f.Value.AsArray()
		if !isArray {
			return nil, false, false
		}
		terms := make([]interface{}, 0, len(items))
		for _, item := range items {
			if item.Kind() == models.KindArray || item.Kind() == models.KindMap || item.IsNil() {
				return nil, false, false
			}
			terms = append(terms, item.Any())
		}
		return map[string]interface{}{
			"terms": map[string]interface{}{field: terms},
		}, f.Operator == models.OpNotIn, true

	case models.OpGreaterThan, models.OpLessThan:
		if f.Value.Kind() != models.KindNumber && f.Value.Kind() != models.KindString {
			return nil, false, false
		}
		op := "gt"
		if f.Operator == models.OpLessThan {
			op = "lt"
		}
		return map[string]interface{}{
			"range": map[string]interface{}{field: map[string]interface{}{op: f.Value.Any()}},
		}, false, true

	case models.OpBetween:
		bounds, isArray := f.Value.AsArray()
		if !isArray || len(bounds) != 2 || bounds[0].IsNil() || bounds[1].IsNil() {
			return nil, false, false
		}
		return map[string]interface{}{
			"range": map[string]interface{}{field: map[string]interface{}{
				"gte": bounds[0].Any(),
				"lte": bounds[1].Any(),
			}},
		}, false, true

	case models.OpExists, models.OpNotExists:
		return map[string]interface{}{
			"exists": map[string]interface{}{"field": field},
		}, f.Operator == models.OpNotExists, true
	}
	return nil, false, false
}
