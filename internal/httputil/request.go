package httputil

import (
	"net/http"
	"strconv"
)

// ParseIntParam parses an integer query parameter, returning defaultVal when
// it is empty or invalid.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// Pagination represents common pagination parameters.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total,omitempty"`
}

// ParsePagination reads page and limit, clamping limit to maxLimit and page to >= 1.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	page := ParseIntParam(r.URL.Query().Get("page"), 1)
	limit := ParseIntParam(r.URL.Query().Get("limit"), defaultLimit)

	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if page < 1 {
		page = 1
	}

	return Pagination{Page: page, Limit: limit}
}

// Offset is the zero-based row offset of the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}
