package engine

import (
	"strings"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// Evaluate tests a single predicate against r. It never fails: operators it
// does not recognize evaluate to true so newer filter definitions keep
// working against older engines.
func Evaluate(r models.Record, f models.ReportFilter) bool {
	actual := GetField(r, f.Field)

	switch f.Operator {
	case models.OpEquals:
		return actual.Equal(f.Value)
	case models.OpNotEquals:
		return !actual.Equal(f.Value)
	case models.OpContains:
		return containsFold(actual, f.Value)
	case models.OpNotContains:
		return !containsFold(actual, f.Value)
	case models.OpGreaterThan:
		cmp, ok := actual.Compare(f.Value)
		return ok && cmp > 0
	case models.OpLessThan:
		cmp, ok := actual.Compare(f.Value)
		return ok && cmp < 0
	case models.OpIn:
		set, ok := f.Value.AsArray()
		return ok && member(actual, set)
	case models.OpNotIn:
		set, ok := f.Value.AsArray()
		return ok && !member(actual, set)
	case models.OpBetween:
		return between(actual, f.Value)
	case models.OpExists:
		return !actual.IsNil()
	case models.OpNotExists:
		return actual.IsNil()
	default:
		return true
	}
}

// EvaluateAll is the conjunction of Evaluate over filters. Per-filter
// logical operator hints are ignored; use an expression tree for OR.
func EvaluateAll(r models.Record, filters []models.ReportFilter) bool {
	for _, f := range filters {
		if !Evaluate(r, f) {
			return false
		}
	}
	return true
}

func containsFold(actual, needle models.Value) bool {
	return strings.Contains(strings.ToLower(actual.String()), strings.ToLower(needle.String()))
}

func member(actual models.Value, set []models.Value) bool {
	for _, candidate := range set {
		if actual.Equal(candidate) {
			return true
		}
	}
	return false
}

func between(actual, bounds models.Value) bool {
	items, ok := bounds.AsArray()
	if !ok || len(items) != 2 {
		return false
	}
	lo, ok := actual.Compare(items[0])
	if !ok || lo < 0 {
		return false
	}
	hi, ok := actual.Compare(items[1])
	return ok && hi <= 0
}
