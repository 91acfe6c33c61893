package datasource

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

const (
	DefaultWazuhPageSize = 500
	tokenRefreshSkew     = 30 * time.Second
	defaultTokenLifetime = 15 * time.Minute
)

var errUnauthorized = errors.New("unauthorized")

// WazuhAPIConfig points at the Wazuh manager REST API.
type WazuhAPIConfig struct {
	URL      string
	Username string
	Password string
	Insecure bool
	Timeout  time.Duration
	PageSize int
	// MaxItems caps how many items one Fetch pages through.
	MaxItems       int
	TimestampField string
}

// WazuhAPIClient talks to the Wazuh manager API. It logs in with basic auth,
// caches the bearer token until shortly before it expires and re-authenticates
// once when a request comes back 401.
type WazuhAPIClient struct {
	baseURL  string
	username string
	password string
	pageSize int
	maxItems int
	http     *http.Client
	now      func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewWazuhAPIClient creates a client for cfg.
func NewWazuhAPIClient(cfg WazuhAPIConfig) *WazuhAPIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultWazuhPageSize
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 10 * pageSize
	}
	return &WazuhAPIClient{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		pageSize: pageSize,
		maxItems: maxItems,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
			},
		},
		now: time.Now,
	}
}

type wazuhEnvelope struct {
	Data struct {
		Token              string            `json:"token"`
		AffectedItems      []json.RawMessage `json:"affected_items"`
		TotalAffectedItems int               `json:"total_affected_items"`
	} `json:"data"`
	Message string `json:"message"`
	Error   int    `json:"error"`
}

func (c *WazuhAPIClient) authenticate(ctx context.Context, source models.DataSource) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(tokenRefreshSkew).Before(c.tokenExp) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/security/user/authenticate", nil)
	if err != nil {
		return "", NewAdapterError(source, KindQuery, err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", NewAdapterError(source, KindNetwork, fmt.Errorf("authenticate: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", statusError(source, resp.StatusCode, string(body))
	}

	var env wazuhEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", NewAdapterError(source, KindDecode, fmt.Errorf("decode token: %w", err))
	}
	if env.Data.Token == "" {
		return "", NewAdapterError(source, KindAuth, errors.New("empty token in authenticate response"))
	}

	c.token = env.Data.Token
	c.tokenExp = c.tokenExpiry(env.Data.Token)
	return c.token, nil
}

// tokenExpiry reads exp from the manager-issued JWT. The manager holds the
// signing key, so the signature is not checked here.
func (c *WazuhAPIClient) tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return c.now().Add(defaultTokenLifetime)
}

func (c *WazuhAPIClient) invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

// List pages through GET path and returns every affected item as a record.
func (c *WazuhAPIClient) List(ctx context.Context, source models.DataSource, path string, params url.Values) ([]models.Record, error) {
	var records []models.Record
	for offset := 0; offset < c.maxItems; {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		env, err := c.get(ctx, source, path, q)
		if errors.Is(err, errUnauthorized) {
			env, err = c.get(ctx, source, path, q)
		}
		if errors.Is(err, errUnauthorized) {
			return nil, NewAdapterError(source, KindAuth, err)
		}
		if err != nil {
			return nil, err
		}

		for _, item := range env.Data.AffectedItems {
			r, err := models.RecordFromJSON(item)
			if err != nil {
				return nil, NewAdapterError(source, KindDecode, err)
			}
			records = append(records, r)
		}

		offset += len(env.Data.AffectedItems)
		if len(env.Data.AffectedItems) == 0 || offset >= env.Data.TotalAffectedItems {
			break
		}
	}
	return records, nil
}

func (c *WazuhAPIClient) get(ctx context.Context, source models.DataSource, path string, q url.Values) (*wazuhEnvelope, error) {
	token, err := c.authenticate(ctx, source)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, NewAdapterError(source, KindQuery, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewAdapterError(source, KindNetwork, fmt.Errorf("GET %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidate(token)
		return nil, errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(source, resp.StatusCode, string(body))
	}

	var env wazuhEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, NewAdapterError(source, KindDecode, fmt.Errorf("decode %s: %w", path, err))
	}
	return &env, nil
}

// WazuhQuery renders the filters expressible in the Wazuh API query language
// as a q parameter. Only fields listed in known are pushed, since the manager
// rejects queries on fields it does not index. Anything else is left to the
// engine.
func WazuhQuery(filters []models.ReportFilter, known map[string]bool) string {
	var parts []string
	for _, f := range filters {
		if !known[f.Field] {
			continue
		}
		var op string
		switch f.Operator {
		case models.OpEquals:
			op = "="
		case models.OpNotEquals:
			op = "!="
		case models.OpGreaterThan:
			op = ">"
		case models.OpLessThan:
			op = "<"
		default:
			continue
		}

		switch f.Operator {
		case models.OpGreaterThan, models.OpLessThan:
			if f.Value.Kind() != models.KindNumber {
				continue
			}
		default:
			if f.Value.Kind() != models.KindString && f.Value.Kind() != models.KindNumber {
				continue
			}
		}

		value := f.Value.String()
		if value == "" || strings.ContainsAny(value, ";,()") {
			continue
		}
		parts = append(parts, f.Field+op+value)
	}
	return strings.Join(parts, ";")
}

// WazuhListAdapter exposes one Wazuh API collection (agents, rules) as a data source.
type WazuhListAdapter struct {
	client    *WazuhAPIClient
	source    models.DataSource
	path      string
	fields    map[string]bool
	normalize Normalizer
}

// NewWazuhAgentsAdapter lists /agents. lastKeepAlive becomes the record time.
func NewWazuhAgentsAdapter(client *WazuhAPIClient, timestampField string) *WazuhListAdapter {
	return &WazuhListAdapter{
		client: client,
		source: models.SourceWazuhAgents,
		path:   "/agents",
		fields: fieldSet("id", "name", "ip", "status", "version", "group", "node_name", "manager", "os.name", "os.platform"),
		normalize: Normalizer{
			Source:         models.SourceWazuhAgents,
			TimestampField: timestampField,
			TimeFrom:       []string{"lastKeepAlive", "dateAdd"},
		},
	}
}

// NewWazuhRulesAdapter lists /rules. Rules carry no time of their own.
func NewWazuhRulesAdapter(client *WazuhAPIClient, timestampField string) *WazuhListAdapter {
	return &WazuhListAdapter{
		client: client,
		source: models.SourceWazuhRules,
		path:   "/rules",
		fields: fieldSet("id", "level", "filename", "relative_dirname", "status", "groups"),
		normalize: Normalizer{
			Source:         models.SourceWazuhRules,
			TimestampField: timestampField,
		},
	}
}

func (a *WazuhListAdapter) Fetch(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
	params := url.Values{}
	if q := WazuhQuery(filters, a.fields); q != "" {
		params.Set("q", q)
	}

	records, err := a.client.List(ctx, a.source, a.path, params)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		a.normalize.Apply(r)
	}
	return records, nil
}

func fieldSet(fields ...string) map[string]bool {
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}
