package engine

import (
	"fmt"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// Expr is a boolean expression over records.
type Expr interface {
	Eval(r models.Record) bool
}

// Predicate is a leaf expression wrapping one filter.
type Predicate struct {
	Filter models.ReportFilter
}

func (p Predicate) Eval(r models.Record) bool {
	return Evaluate(r, p.Filter)
}

// And is true when every child is true. An empty And is true.
type And []Expr

func (a And) Eval(r models.Record) bool {
	for _, e := range a {
		if !e.Eval(r) {
			return false
		}
	}
	return true
}

// Or is true when any child is true. An empty Or is false.
type Or []Expr

func (o Or) Eval(r models.Record) bool {
	for _, e := range o {
		if e.Eval(r) {
			return true
		}
	}
	return false
}

// All builds the conjunction of a flat filter list.
func All(filters []models.ReportFilter) Expr {
	out := make(And, len(filters))
	for i, f := range filters {
		out[i] = Predicate{Filter: f}
	}
	return out
}

// Compile converts a serialized filter tree into an Expr.
func Compile(n models.FilterNode) (Expr, error) {
	if n.IsLeaf() {
		if len(n.Children) > 0 {
			return nil, fmt.Errorf("filter node has both a filter and children")
		}
		if n.Op != "" {
			return nil, fmt.Errorf("filter node has both a filter and op %q", n.Op)
		}
		return Predicate{Filter: *n.Filter}, nil
	}

	children := make([]Expr, 0, len(n.Children))
	for i, child := range n.Children {
		e, err := Compile(child)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		children = append(children, e)
	}

	switch n.Op {
	case models.NodeAnd, "":
		return And(children), nil
	case models.NodeOr:
		return Or(children), nil
	default:
		return nil, fmt.Errorf("unknown filter node op %q", n.Op)
	}
}

// Match keeps the records for which expr holds.
func Match(records []models.Record, expr Expr) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if expr.Eval(r) {
			out = append(out, r)
		}
	}
	return out
}
