package engine

import (
	"strings"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// GroupKeySeparator joins field values into a composite group key.
const GroupKeySeparator = "|"

// undefinedKeyPart stands for a missing field in a group key. It cannot
// begin a JSON document, so it never collides with a present value.
const undefinedKeyPart = "~"

// Reserved keys of a synthetic group record.
const (
	GroupCountKey = "count"
	GroupItemsKey = "items"
)

// Group is one bucket of records sharing the same values for the grouped fields.
type Group struct {
	// Key identifies the bucket. Each field value is encoded as kind-tagged
	// JSON, so null, missing and "" stay apart and separators inside string
	// values cannot merge distinct tuples.
	Key    string
	Fields []string
	Values []models.Value
	Items  []models.Record
}

// Count is the number of member records.
func (g *Group) Count() int {
	return len(g.Items)
}

// Record renders g as a synthetic record holding each grouped field value,
// the member count and the members themselves.
func (g *Group) Record() models.Record {
	out := make(models.Record, len(g.Fields)+2)
	for i, field := range g.Fields {
		out[field] = g.Values[i]
	}
	out[GroupCountKey] = models.Int(g.Count())
	out[GroupItemsKey] = models.RecordsValue(g.Items)
	return out
}

// GroupBy partitions records by the values of fields. Every record lands in
// exactly one group. Groups come back in first-seen order, callers must not
// rely on any other ordering.
func GroupBy(records []models.Record, fields []string) []*Group {
	index := make(map[string]*Group)
	groups := make([]*Group, 0)

	for _, r := range records {
		values := make([]models.Value, len(fields))
		parts := make([]string, len(fields))
		for i, field := range fields {
			values[i] = GetField(r, field)
			parts[i] = groupKeyPart(values[i])
		}
		key := strings.Join(parts, GroupKeySeparator)

		g, ok := index[key]
		if !ok {
			g = &Group{Key: key, Fields: fields, Values: values}
			index[key] = g
			groups = append(groups, g)
		}
		g.Items = append(g.Items, r)
	}

	return groups
}

func groupKeyPart(v models.Value) string {
	if v.IsUndefined() {
		return undefinedKeyPart
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return v.Kind().String() + ":" + v.String()
	}
	return string(data)
}
