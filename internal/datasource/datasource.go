// Package datasource defines the adapter boundary between the report engine
// and the external systems records come from.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// ErrUnsupportedDataSource is returned when no adapter is registered for a source.
var ErrUnsupportedDataSource = errors.New("unsupported data source")

// SourceField is stamped on every normalized record with its origin.
const SourceField = "source"

// Adapter fetches normalized records from one data source. Implementations
// may push some filters down to the backend, but callers re-check every
// returned record, so pushing down is optional.
type Adapter interface {
	Fetch(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error)

func (f AdapterFunc) Fetch(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
	return f(ctx, filters)
}

// Registry maps data sources to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.DataSource]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.DataSource]Adapter)}
}

// Register binds adapter to source, replacing any previous binding.
func (r *Registry) Register(source models.DataSource, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[source] = adapter
}

// Adapter returns the adapter bound to source.
func (r *Registry) Adapter(source models.DataSource) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataSource, source)
	}
	return a, nil
}

// Supports reports whether source has an adapter.
func (r *Registry) Supports(source models.DataSource) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[source]
	return ok
}

// Sources lists registered sources in name order.
func (r *Registry) Sources() []models.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.DataSource, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Wrap replaces every registered adapter with wrap(source, adapter).
func (r *Registry) Wrap(wrap func(models.DataSource, Adapter) Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s, a := range r.adapters {
		r.adapters[s] = wrap(s, a)
	}
}
