package httputil

import (
	"net/http"
)

// JSONAPIResource is a single JSON:API resource object.
type JSONAPIResource struct {
	Type       string      `json:"type"`
	ID         string      `json:"id"`
	Attributes interface{} `json:"attributes"`
}

// JSONAPIErrorObject is a single JSON:API error.
type JSONAPIErrorObject struct {
	Status int    `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteJSONAPIResource writes a single resource document.
func WriteJSONAPIResource(w http.ResponseWriter, status int, resourceType, id string, attributes interface{}) {
	WriteJSONAPI(w, status, map[string]interface{}{
		"data": JSONAPIResource{Type: resourceType, ID: id, Attributes: attributes},
	})
}

// WriteJSONAPICollection writes a collection document, with pagination meta
// when pagination is non-nil.
func WriteJSONAPICollection(w http.ResponseWriter, status int, resources []JSONAPIResource, pagination *Pagination) {
	if resources == nil {
		resources = []JSONAPIResource{}
	}
	response := map[string]interface{}{
		"data": resources,
	}

	if pagination != nil {
		totalPages := 0
		if pagination.Limit > 0 {
			totalPages = (pagination.Total + pagination.Limit - 1) / pagination.Limit
		}
		response["meta"] = map[string]interface{}{
			"pagination": map[string]interface{}{
				"page":        pagination.Page,
				"limit":       pagination.Limit,
				"total":       pagination.Total,
				"total_pages": totalPages,
			},
		}
	}

	WriteJSONAPI(w, status, response)
}

// WriteJSONAPIError writes a single-error document.
func WriteJSONAPIError(w http.ResponseWriter, status int, code, title, detail string) {
	WriteJSONAPI(w, status, map[string]interface{}{
		"errors": []JSONAPIErrorObject{{Status: status, Code: code, Title: title, Detail: detail}},
	})
}

func WriteJSONAPIValidationError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusBadRequest, "validation_failed", "Validation Failed", detail)
}

func WriteJSONAPINotFoundError(w http.ResponseWriter, resourceType, id string) {
	WriteJSONAPIError(w, http.StatusNotFound, "not_found", "Resource Not Found",
		"The requested "+resourceType+" with ID '"+id+"' was not found")
}

func WriteJSONAPIUnauthorizedError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", detail)
}

func WriteJSONAPIForbiddenError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusForbidden, "forbidden", "Forbidden", detail)
}

func WriteJSONAPIConflictError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusConflict, "conflict", "Conflict", detail)
}

// WriteJSONAPIInternalError writes a 500. Log the cause before calling it.
func WriteJSONAPIInternalError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", detail)
}
