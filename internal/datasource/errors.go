package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// ErrorKind classifies adapter failures.
type ErrorKind string

const (
	KindNetwork  ErrorKind = "network"
	KindAuth     ErrorKind = "auth"
	KindNotFound ErrorKind = "not_found"
	KindQuery    ErrorKind = "query"
	KindUpstream ErrorKind = "upstream"
	KindDecode   ErrorKind = "decode"
	KindTimeout  ErrorKind = "timeout"
)

// AdapterError is the typed failure every adapter returns.
type AdapterError struct {
	Source models.DataSource
	Kind   ErrorKind
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter %s error: %v", e.Source, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError wraps err for source, classifying context errors as timeouts.
func NewAdapterError(source models.DataSource, kind ErrorKind, err error) *AdapterError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &AdapterError{Source: source, Kind: kind, Err: err}
}

// statusError maps a non-2xx upstream HTTP status to an AdapterError.
func statusError(source models.DataSource, status int, body string) *AdapterError {
	err := fmt.Errorf("status %d: %s", status, truncate(body, 256))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAdapterError(source, KindAuth, err)
	case status == http.StatusNotFound:
		return NewAdapterError(source, KindNotFound, err)
	case status >= 400 && status < 500:
		return NewAdapterError(source, KindQuery, err)
	default:
		return NewAdapterError(source, KindUpstream, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
