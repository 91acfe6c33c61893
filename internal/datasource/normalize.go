package datasource

import (
	"strings"
	"time"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
)

// DefaultTimestampField is where adapters put the normalized record time.
const DefaultTimestampField = "timestamp"

// layouts seen from Wazuh, OpenSearch and IRIS, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseTimestamp parses the timestamp formats upstream systems emit.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalizer stamps records with their source and rewrites their time field
// into models.TimestampLayout.
type Normalizer struct {
	Source         models.DataSource
	TimestampField string
	// TimeFrom lists source fields copied into TimestampField when it is absent.
	TimeFrom []string
}

// Apply normalizes r in place and returns it.
func (n Normalizer) Apply(r models.Record) models.Record {
	field := n.TimestampField
	if field == "" {
		field = DefaultTimestampField
	}

	ts := r[field]
	if ts.IsNil() {
		for _, from := range n.TimeFrom {
			if v := getPath(r, from); !v.IsNil() {
				ts = v
				break
			}
		}
	}
	if s, ok := ts.AsString(); ok {
		if t, ok := ParseTimestamp(s); ok {
			r[field] = models.String(models.FormatTimestamp(t))
		}
	} else if f, ok := ts.AsNumber(); ok && f > 0 {
		r[field] = models.String(models.FormatTimestamp(time.UnixMilli(int64(f))))
	}

	r[SourceField] = models.String(string(n.Source))
	return r
}

func getPath(r models.Record, path string) models.Value {
	v := models.Map(r)
	for _, part := range strings.Split(path, ".") {
		v = v.Field(part)
	}
	return v
}
