package datasource

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/metrics"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// ResultCache is the subset of cache.ResultCache the Cached decorator needs.
type ResultCache interface {
	Get(ctx context.Context, source models.DataSource, filters []models.ReportFilter) ([]models.Record, bool, error)
	Set(ctx context.Context, source models.DataSource, filters []models.ReportFilter, records []models.Record) error
}

// Cached serves fetches from cache when possible. Cache failures are logged
// and fall through to the adapter.
func Cached(source models.DataSource, next Adapter, cache ResultCache, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return AdapterFunc(func(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
		records, ok, err := cache.Get(ctx, source, filters)
		if err != nil {
			logger.WarnContext(ctx, "result cache lookup failed", "data_source", source, "error", err)
		}
		if ok {
			metrics.CacheRequests.WithLabelValues(string(source), "hit").Inc()
			return records, nil
		}
		metrics.CacheRequests.WithLabelValues(string(source), "miss").Inc()

		records, err = next.Fetch(ctx, filters)
		if err != nil {
			return nil, err
		}
		if err := cache.Set(ctx, source, filters, records); err != nil {
			logger.WarnContext(ctx, "result cache store failed", "data_source", source, "error", err)
		}
		return records, nil
	})
}

// Instrumented records fetch latency, errors and record counts.
func Instrumented(source models.DataSource, next Adapter) Adapter {
	label := string(source)
	return AdapterFunc(func(ctx context.Context, filters []models.ReportFilter) ([]models.Record, error) {
		start := time.Now()
		records, err := next.Fetch(ctx, filters)
		metrics.AdapterDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if err != nil {
			kind := string(KindUpstream)
			var ae *AdapterError
			if errors.As(err, &ae) {
				kind = string(ae.Kind)
			}
			metrics.AdapterErrors.WithLabelValues(label, kind).Inc()
			return nil, err
		}
		metrics.AdapterRecords.WithLabelValues(label).Add(float64(len(records)))
		return records, nil
	})
}
