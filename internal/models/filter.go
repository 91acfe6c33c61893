package models

import (
	"fmt"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not-equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not-contains"
	OpGreaterThan Operator = "greater-than"
	OpLessThan    Operator = "less-than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not-in"
	OpBetween     Operator = "between"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not-exists"
)

// Operators lists every supported operator.
var Operators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan,
	OpIn, OpNotIn, OpBetween, OpExists, OpNotExists,
}

// LogicalOperator is the advisory join hint carried by a filter.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ReportFilter is a single field/operator/value predicate.
type ReportFilter struct {
	Field           string          `json:"field" yaml:"field" validate:"required"`
	Operator        Operator        `json:"operator" yaml:"operator" validate:"required"`
	Value           Value           `json:"value" yaml:"value"`
	LogicalOperator LogicalOperator `json:"logical_operator,omitempty" yaml:"logical_operator,omitempty"`
}

// String renders the filter for report summaries, e.g. `severity in [high, critical]`.
func (f ReportFilter) String() string {
	switch f.Operator {
	case OpExists, OpNotExists:
		return fmt.Sprintf("%s %s", f.Field, f.Operator)
	}
	return fmt.Sprintf("%s %s %s", f.Field, f.Operator, describeValue(f.Value))
}

func describeValue(v Value) string {
	switch v.Kind() {
	case KindArray:
		items, _ := v.AsArray()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = describeValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindNull, KindUndefined:
		return "null"
	default:
		return v.String()
	}
}

// SummarizeFilters joins filters into a human-readable sentence.
func SummarizeFilters(filters []ReportFilter) string {
	if len(filters) == 0 {
		return "No filters applied"
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, " AND ")
}

// Expression tree node types.
const (
	NodeAnd = "and"
	NodeOr  = "or"
)

// FilterNode is the serialized form of a boolean filter expression: either a
// leaf holding Filter, or an and/or node over Children.
type FilterNode struct {
	Op       string        `json:"op,omitempty" yaml:"op,omitempty"`
	Children []FilterNode  `json:"children,omitempty" yaml:"children,omitempty"`
	Filter   *ReportFilter `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// IsLeaf reports whether n holds a single predicate.
func (n FilterNode) IsLeaf() bool {
	return n.Filter != nil
}

// AggregationType names a numeric reduction.
type AggregationType string

const (
	AggCount AggregationType = "count"
	AggSum   AggregationType = "sum"
	AggAvg   AggregationType = "avg"
	AggMin   AggregationType = "min"
	AggMax   AggregationType = "max"
)

// Aggregation reduces Field with Type.
type Aggregation struct {
	Field string          `json:"field" yaml:"field" validate:"required"`
	Type  AggregationType `json:"type" yaml:"type" validate:"required,oneof=count sum avg min max"`
}

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SortBy orders raw widget records.
type SortBy struct {
	Field string `json:"field" yaml:"field" validate:"required"`
	Order string `json:"order,omitempty" yaml:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}

// QueryConfig is the data-fetch contract of one widget.
type QueryConfig struct {
	Filters     []ReportFilter `json:"filters" yaml:"filters" validate:"dive"`
	Where       *FilterNode    `json:"where,omitempty" yaml:"where,omitempty"`
	GroupBy     []string       `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	Aggregation *Aggregation   `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	SortBy      *SortBy        `json:"sort_by,omitempty" yaml:"sort_by,omitempty"`
	Limit       int            `json:"limit,omitempty" yaml:"limit,omitempty" validate:"gte=0"`
}
