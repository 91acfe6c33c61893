package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, 50},
		{"explicit", "?page=3&limit=20", 3, 20},
		{"limit clamped", "?limit=5000", 1, 200},
		{"negative page", "?page=-2", 1, 50},
		{"zero limit", "?limit=0", 1, 50},
		{"garbage", "?page=x&limit=y", 1, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports"+tt.query, nil)
			p := ParsePagination(req, 50, 200)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLimit, p.Limit)
		})
	}

	assert.Equal(t, 40, Pagination{Page: 3, Limit: 20}.Offset())
}

func TestWriteJSONAPICollection(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONAPICollection(w, http.StatusOK, []JSONAPIResource{
		{Type: "report", ID: "r1", Attributes: map[string]string{"name": "weekly"}},
	}, &Pagination{Page: 1, Limit: 10, Total: 25})

	assert.Equal(t, "application/vnd.api+json", w.Header().Get("Content-Type"))

	var body struct {
		Data []JSONAPIResource `json:"data"`
		Meta struct {
			Pagination map[string]int `json:"pagination"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "r1", body.Data[0].ID)
	assert.Equal(t, 3, body.Meta.Pagination["total_pages"])
}

func TestWriteJSONAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONAPINotFoundError(w, "template", "t-1")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"not_found"`)
	assert.Contains(t, w.Body.String(), "t-1")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"weekly"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "weekly", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nme":"weekly"}`))
	assert.Error(t, DecodeJSON(req, &dst))
}
