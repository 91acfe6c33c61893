// Package engine turns widget query configurations into materialized data:
// field access, filter evaluation, grouping, aggregation and widget fan-out.
package engine

import (
	"strings"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// GetField resolves a dotted path such as "rule.level" against r. It returns
// Undefined when any segment is missing or a non-final segment is not a map.
func GetField(r models.Record, path string) models.Value {
	// jq-style leading dot is accepted
	path = strings.TrimPrefix(path, ".")
	if path == "" || r == nil {
		return models.Undefined()
	}

	head, rest, nested := strings.Cut(path, ".")
	current, ok := r[head]
	if !ok {
		return models.Undefined()
	}
	for nested {
		var part string
		part, rest, nested = strings.Cut(rest, ".")
		if current.Kind() != models.KindMap {
			return models.Undefined()
		}
		current = current.Field(part)
		if current.IsUndefined() {
			return current
		}
	}
	return current
}
