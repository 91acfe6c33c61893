package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// Client talks to the report service API.
type Client struct {
	baseURL string
	token   string
	user    string
	client  *http.Client
}

func NewClient(p *Profile) *Client {
	return &Client{
		baseURL: strings.TrimRight(p.URL, "/"),
		token:   p.Token,
		user:    p.User,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type resourceDoc struct {
	Data struct {
		Type       string          `json:"type"`
		ID         string          `json:"id"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
}

type collectionDoc struct {
	Data []struct {
		Type       string          `json:"type"`
		ID         string          `json:"id"`
		Attributes json.RawMessage `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Pagination *models.Pagination `json:"pagination"`
	} `json:"meta"`
}

type errorDoc struct {
	Errors []struct {
		Status int    `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Title)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (c *Client) doRequest(method, path string, body interface{}, expect int) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != expect {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		var errResp errorDoc
		if err := json.Unmarshal(data, &errResp); err == nil && len(errResp.Errors) > 0 {
			apiErr.Title = errResp.Errors[0].Title
			apiErr.Detail = errResp.Errors[0].Detail
		}
		return nil, apiErr
	}
	return data, nil
}

func (c *Client) getResource(method, path string, body interface{}, expect int, dst interface{}) error {
	data, err := c.doRequest(method, path, body, expect)
	if err != nil {
		return err
	}
	var doc resourceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(doc.Data.Attributes, dst)
}

func (c *Client) ListTemplates(category string, tags []string) ([]*models.ReportTemplate, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	for _, tag := range tags {
		q.Add("tag", tag)
	}
	path := "/api/v1/templates"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	data, err := c.doRequest(http.MethodGet, path, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]*models.ReportTemplate, 0, len(doc.Data))
	for _, d := range doc.Data {
		var t models.ReportTemplate
		if err := json.Unmarshal(d.Attributes, &t); err != nil {
			return nil, fmt.Errorf("failed to decode template %s: %w", d.ID, err)
		}
		out = append(out, &t)
	}
	return out, nil
}

func (c *Client) GetTemplate(id string) (*models.ReportTemplate, error) {
	var t models.ReportTemplate
	if err := c.getResource(http.MethodGet, "/api/v1/templates/"+url.PathEscape(id), nil, http.StatusOK, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CreateTemplate(req *models.CreateTemplateRequest) (*models.ReportTemplate, error) {
	var t models.ReportTemplate
	if err := c.getResource(http.MethodPost, "/api/v1/templates", req, http.StatusCreated, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTemplate(id string) error {
	_, err := c.doRequest(http.MethodDelete, "/api/v1/templates/"+url.PathEscape(id), nil, http.StatusNoContent)
	return err
}

func (c *Client) Generate(templateID string, req *models.GenerateReportRequest) (*models.GeneratedReport, error) {
	var r models.GeneratedReport
	path := "/api/v1/templates/" + url.PathEscape(templateID) + "/generate"
	if err := c.getResource(http.MethodPost, path, req, http.StatusCreated, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) ListReports(templateID string, page, limit int) ([]*models.GeneratedReport, *models.Pagination, error) {
	q := url.Values{}
	if templateID != "" {
		q.Set("template_id", templateID)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/reports"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	data, err := c.doRequest(http.MethodGet, path, nil, http.StatusOK)
	if err != nil {
		return nil, nil, err
	}
	var doc collectionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]*models.GeneratedReport, 0, len(doc.Data))
	for _, d := range doc.Data {
		var r models.GeneratedReport
		if err := json.Unmarshal(d.Attributes, &r); err != nil {
			return nil, nil, fmt.Errorf("failed to decode report %s: %w", d.ID, err)
		}
		out = append(out, &r)
	}
	return out, doc.Meta.Pagination, nil
}

func (c *Client) GetReport(id string) (*models.GeneratedReport, error) {
	var r models.GeneratedReport
	if err := c.getResource(http.MethodGet, "/api/v1/reports/"+url.PathEscape(id), nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// QueryResult mirrors the attributes of a query response.
type QueryResult struct {
	DataSource models.DataSource `json:"data_source"`
	Count      int               `json:"count"`
	Records    []models.Record   `json:"records"`
}

func (c *Client) Query(req *models.QueryRequest) (*QueryResult, error) {
	var r QueryResult
	if err := c.getResource(http.MethodPost, "/api/v1/query", req, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
