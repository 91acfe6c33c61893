package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the fixed-width UTC layout adapters normalize record
// timestamps to, so that range filters can compare them as strings.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is one normalized row returned by a data source.
type Record map[string]Value

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordFromMap converts a decoded JSON object into a Record.
func RecordFromMap(m map[string]any) Record {
	r := make(Record, len(m))
	for k, v := range m {
		r[k] = FromAny(v)
	}
	return r
}

// RecordFromJSON decodes a JSON object into a Record.
func RecordFromJSON(data []byte) (Record, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	return Record(m), nil
}

// RecordsValue wraps a record slice as an array Value.
func RecordsValue(records []Record) Value {
	items := make([]Value, len(records))
	for i, r := range records {
		items[i] = Map(r)
	}
	return Array(items...)
}
