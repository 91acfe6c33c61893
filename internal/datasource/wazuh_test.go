package datasource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

func TestBuildAlertsQuery(t *testing.T) {
	filters := []models.ReportFilter{
		{Field: "rule.level", Operator: models.OpGreaterThan, Value: models.Int(7)},
		{Field: "agent.name", Operator: models.OpEquals, Value: models.String("web-01")},
		{Field: "severity", Operator: models.OpNotIn, Value: models.Strings("low")},
		{Field: "timestamp", Operator: models.OpBetween, Value: models.Strings("2025-03-01T00:00:00.000Z", "2025-03-02T00:00:00.000Z")},
		{Field: "data.srcip", Operator: models.OpExists},
		{Field: "rule.description", Operator: models.OpContains, Value: models.String("ssh")},
		{Field: "rule.id", Operator: "regex", Value: models.String("57.*")},
		{Field: "rule.groups", Operator: models.OpIn, Value: models.String("not-an-array")},
	}

	query := BuildAlertsQuery(filters, "")
	data, err := json.Marshal(query)
	require.NoError(t, err)

	var got struct {
		Query struct {
			Bool struct {
				Filter  []map[string]map[string]any `json:"filter"`
				MustNot []map[string]map[string]any `json:"must_not"`
			} `json:"bool"`
		} `json:"query"`
		Sort []map[string]map[string]any `json:"sort"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	require.Len(t, got.Query.Bool.Filter, 4)
	assert.Equal(t, map[string]any{"gt": float64(7)}, got.Query.Bool.Filter[0]["range"]["rule.level"])
	assert.Equal(t, "web-01", got.Query.Bool.Filter[1]["term"]["agent.name"])
	assert.Equal(t, map[string]any{"gte": "2025-03-01T00:00:00.000Z", "lte": "2025-03-02T00:00:00.000Z"}, got.Query.Bool.Filter[2]["range"]["timestamp"])
	assert.Equal(t, "data.srcip", got.Query.Bool.Filter[3]["exists"]["field"])

	require.Len(t, got.Query.Bool.MustNot, 1)
	assert.Equal(t, []any{"low"}, got.Query.Bool.MustNot[0]["terms"]["severity"])

	require.Len(t, got.Sort, 1)
	assert.Equal(t, "desc", got.Sort[0]["timestamp"]["order"])
}

func TestBuildAlertsQuery_MatchAll(t *testing.T) {
	query := BuildAlertsQuery([]models.ReportFilter{
		{Field: "rule.description", Operator: models.OpNotContains, Value: models.String("sudo")},
	}, "@timestamp")

	q := query["query"].(map[string]interface{})
	assert.Contains(t, q, "match_all")
}

func TestBuildAlertsQuery_StampedFieldsStayInEngine(t *testing.T) {
	tests := []struct {
		name   string
		filter models.ReportFilter
	}{
		{"source", models.ReportFilter{Field: SourceField, Operator: models.OpEquals, Value: models.String("wazuh-alerts")}},
		{"id from _id", models.ReportFilter{Field: "id", Operator: models.OpEquals, Value: models.String("abc")}},
		{"index metadata", models.ReportFilter{Field: "_index", Operator: models.OpIn, Value: models.Strings("wazuh-alerts-4.x-2025.03.01")}},
		{"negated source", models.ReportFilter{Field: SourceField, Operator: models.OpNotEquals, Value: models.String("iris-cases")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := BuildAlertsQuery([]models.ReportFilter{tt.filter}, "")
			q := query["query"].(map[string]interface{})
			assert.Contains(t, q, "match_all")
			assert.NotContains(t, q, "bool")
		})
	}
}

func TestWazuhAlertsAdapter_Fetch(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wazuh-alerts-*/_search", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("size"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": {"total": {"value": 2}, "hits": [
				{"_id": "abc", "_index": "wazuh-alerts-4.x-2025.03.01", "_source": {
					"timestamp": "2025-03-01T10:00:00.000+0000",
					"rule": {"level": 10, "description": "sshd: brute force"},
					"agent": {"name": "web-01"}}},
				{"_id": "def", "_index": "wazuh-alerts-4.x-2025.03.01", "_source": {
					"id": "1700000000.123",
					"timestamp": "2025-03-01T11:00:00.000+0100",
					"rule": {"level": 3}}}
			]}}`))
	}))
	defer srv.Close()

	client, err := NewWazuhIndexerClient(WazuhIndexerConfig{URL: srv.URL})
	require.NoError(t, err)
	adapter := NewWazuhAlertsAdapter(client, WazuhIndexerConfig{Size: 50})

	records, err := adapter.Fetch(context.Background(), []models.ReportFilter{
		{Field: "rule.level", Operator: models.OpGreaterThan, Value: models.Int(2)},
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Contains(t, body, "query")
	assert.Equal(t, models.String("abc"), records[0]["id"])
	assert.Equal(t, models.String("1700000000.123"), records[1]["id"], "source id wins over _id")
	assert.Equal(t, models.String("2025-03-01T10:00:00.000Z"), records[0]["timestamp"])
	assert.Equal(t, models.String("2025-03-01T10:00:00.000Z"), records[1]["timestamp"])
	assert.Equal(t, models.String("wazuh-alerts"), records[0][SourceField])
	assert.Equal(t, models.Int(10), records[0]["rule"].Field("level"))
}

func TestWazuhAlertsAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized"}`, KindAuth},
		{"missing index", http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`, KindNotFound},
		{"bad query", http.StatusBadRequest, `{"error":{"type":"parsing_exception"}}`, KindQuery},
		{"garbage", http.StatusOK, `not json`, KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewWazuhIndexerClient(WazuhIndexerConfig{URL: srv.URL})
			require.NoError(t, err)

			_, err = NewWazuhAlertsAdapter(client, WazuhIndexerConfig{}).Fetch(context.Background(), nil)
			var ae *AdapterError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.want, ae.Kind)
			assert.Equal(t, models.SourceWazuhAlerts, ae.Source)
		})
	}
}

func TestWazuhQuery(t *testing.T) {
	known := fieldSet("status", "os.platform", "id", "level")

	tests := []struct {
		name    string
		filters []models.ReportFilter
		want    string
	}{
		{
			name: "equals and not-equals",
			filters: []models.ReportFilter{
				{Field: "status", Operator: models.OpEquals, Value: models.String("active")},
				{Field: "os.platform", Operator: models.OpNotEquals, Value: models.String("windows")},
			},
			want: "status=active;os.platform!=windows",
		},
		{
			name: "numeric comparisons only",
			filters: []models.ReportFilter{
				{Field: "level", Operator: models.OpGreaterThan, Value: models.Int(7)},
				{Field: "level", Operator: models.OpLessThan, Value: models.String("12")},
			},
			want: "level>7",
		},
		{
			name: "unknown fields and operators skipped",
			filters: []models.ReportFilter{
				{Field: "timestamp", Operator: models.OpBetween, Value: models.Strings("a", "b")},
				{Field: "severity", Operator: models.OpEquals, Value: models.String("high")},
				{Field: "status", Operator: models.OpContains, Value: models.String("act")},
				{Field: "id", Operator: models.OpIn, Value: models.Strings("001", "002")},
			},
			want: "",
		},
		{
			name: "reserved characters skipped",
			filters: []models.ReportFilter{
				{Field: "status", Operator: models.OpEquals, Value: models.String("active;id=1")},
				{Field: "id", Operator: models.OpEquals, Value: models.String("001")},
			},
			want: "id=001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WazuhQuery(tt.filters, known))
		})
	}
}

type fakeWazuh struct {
	t           *testing.T
	tokenTTL    time.Duration
	logins      int32
	reject      int32
	items       []map[string]any
	lastQueries []string
}

func (f *fakeWazuh) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /security/user/authenticate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "wazuh" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&f.logins, 1)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(f.tokenTTL).Unix(),
		})
		signed, err := token.SignedString([]byte("manager-key"))
		require.NoError(f.t, err)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"token": signed}, "error": 0})
	})
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if atomic.LoadInt32(&f.reject) > 0 {
			atomic.AddInt32(&f.reject, -1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.lastQueries = append(f.lastQueries, r.URL.Query().Get("q"))

		offset := atoiOr(r.URL.Query().Get("offset"), 0)
		limit := atoiOr(r.URL.Query().Get("limit"), 500)
		end := offset + limit
		if end > len(f.items) {
			end = len(f.items)
		}
		page := []map[string]any{}
		if offset < len(f.items) {
			page = f.items[offset:end]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"affected_items":       page,
				"total_affected_items": len(f.items),
			},
			"error": 0,
		})
	})
	return mux
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func TestWazuhAgentsAdapter_Fetch(t *testing.T) {
	fake := &fakeWazuh{t: t, tokenTTL: time.Hour}
	for i := 0; i < 5; i++ {
		fake.items = append(fake.items, map[string]any{
			"id":            []string{"000", "001", "002", "003", "004"}[i],
			"name":          []string{"manager", "web-01", "web-02", "db-01", "dc-01"}[i],
			"status":        "active",
			"lastKeepAlive": "2025-03-01T10:00:00+00:00",
		})
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewWazuhAPIClient(WazuhAPIConfig{URL: srv.URL, Username: "wazuh", Password: "secret", PageSize: 2})
	adapter := NewWazuhAgentsAdapter(client, "")

	records, err := adapter.Fetch(context.Background(), []models.ReportFilter{
		{Field: "status", Operator: models.OpEquals, Value: models.String("active")},
		{Field: "severity", Operator: models.OpEquals, Value: models.String("high")},
	})
	require.NoError(t, err)
	require.Len(t, records, 5, "pages are followed until total_affected_items")
	assert.Equal(t, models.String("web-01"), records[1]["name"])
	assert.Equal(t, models.String("2025-03-01T10:00:00.000Z"), records[1]["timestamp"])
	assert.Equal(t, models.String("wazuh-agents"), records[1][SourceField])

	assert.Equal(t, []string{"status=active", "status=active", "status=active"}, fake.lastQueries)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.logins), "token is reused across pages")

	// a revoked token is refreshed once
	atomic.StoreInt32(&fake.reject, 1)
	_, err = adapter.Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.logins))
}

func TestWazuhAPIClient_TokenExpiry(t *testing.T) {
	fake := &fakeWazuh{t: t, tokenTTL: 10 * time.Second}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewWazuhAPIClient(WazuhAPIConfig{URL: srv.URL, Username: "wazuh", Password: "secret"})
	adapter := NewWazuhAgentsAdapter(client, "")

	_, err := adapter.Fetch(context.Background(), nil)
	require.NoError(t, err)
	_, err = adapter.Fetch(context.Background(), nil)
	require.NoError(t, err)

	// expiry inside the refresh skew forces a new login every time
	assert.Equal(t, int32(2), atomic.LoadInt32(&fake.logins))
}

func TestWazuhAPIClient_BadCredentials(t *testing.T) {
	fake := &fakeWazuh{t: t, tokenTTL: time.Hour}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := NewWazuhAPIClient(WazuhAPIConfig{URL: srv.URL, Username: "wazuh", Password: "wrong"})
	_, err := NewWazuhRulesAdapter(client, "").Fetch(context.Background(), nil)

	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindAuth, ae.Kind)
	assert.Equal(t, models.SourceWazuhRules, ae.Source)
}
