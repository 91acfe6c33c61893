package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/datasource"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// DefaultLimit caps raw widget results when a query sets no limit.
const DefaultLimit = 1000

// AdapterResolver finds the adapter for a data source.
type AdapterResolver interface {
	Adapter(source models.DataSource) (datasource.Adapter, error)
}

// Planner runs a single widget query: fetch, re-check, then group,
// aggregate or truncate.
type Planner struct {
	adapters     AdapterResolver
	defaultLimit int
}

// NewPlanner creates a planner. A non-positive defaultLimit uses DefaultLimit.
func NewPlanner(adapters AdapterResolver, defaultLimit int) *Planner {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Planner{adapters: adapters, defaultLimit: defaultLimit}
}

// PlanWidget merges global filters ahead of the widget's own and runs the query.
func (p *Planner) PlanWidget(ctx context.Context, global []models.ReportFilter, w models.WidgetConfig) ([]models.Record, error) {
	qc := w.QueryConfig
	filters := make([]models.ReportFilter, 0, len(global)+len(qc.Filters))
	filters = append(filters, global...)
	filters = append(filters, qc.Filters...)
	qc.Filters = filters
	return p.Query(ctx, w.DataSource, qc)
}

// Query fetches from source and shapes the result:
//  1. aggregation without groupBy yields [{<type>: value}]
//  2. groupBy yields one record per group, with per-group aggregation if set
//  3. otherwise the matching records, sorted if requested, up to the limit
func (p *Planner) Query(ctx context.Context, source models.DataSource, qc models.QueryConfig) ([]models.Record, error) {
	adapter, err := p.adapters.Adapter(source)
	if err != nil {
		return nil, err
	}

	expr := All(qc.Filters)
	if qc.Where != nil {
		where, err := Compile(*qc.Where)
		if err != nil {
			return nil, fmt.Errorf("invalid where clause: %w", err)
		}
		expr = And{expr, where}
	}

	fetched, err := adapter.Fetch(ctx, qc.Filters)
	if err != nil {
		return nil, err
	}
	records := Match(fetched, expr)

	agg := qc.Aggregation
	if agg != nil && len(qc.GroupBy) == 0 {
		return []models.Record{{
			string(agg.Type): models.Number(Aggregate(records, agg.Field, agg.Type)),
		}}, nil
	}

	if len(qc.GroupBy) > 0 {
		groups := GroupBy(records, qc.GroupBy)
		out := make([]models.Record, len(groups))
		for i, g := range groups {
			rec := g.Record()
			if agg != nil {
				rec[string(agg.Type)] = models.Number(Aggregate(g.Items, agg.Field, agg.Type))
			}
			out[i] = rec
		}
		return out, nil
	}

	if qc.SortBy != nil && qc.SortBy.Field != "" {
		SortRecords(records, *qc.SortBy)
	}

	limit := qc.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SortRecords orders records in place by s. Values that cannot be compared
// keep their relative order and sort after comparable ones.
func SortRecords(records []models.Record, s models.SortBy) {
	desc := s.Order == models.SortDesc
	sort.SliceStable(records, func(i, j int) bool {
		a := GetField(records[i], s.Field)
		b := GetField(records[j], s.Field)
		if a.IsNil() || b.IsNil() {
			return !a.IsNil() && b.IsNil()
		}
		cmp, ok := a.Compare(b)
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
