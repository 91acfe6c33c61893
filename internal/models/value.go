package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindUndefined marks an absent value. It is the zero Kind and never
	// produced by JSON decoding.
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "undefined"
	}
}

// Value is a structured, dynamically typed value as returned by data sources:
// string, number, bool, null, array or map. The zero Value is Undefined.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

func Undefined() Value           { return Value{} }
func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, n: n} }
func Int(n int) Value            { return Value{kind: KindNumber, n: float64(n)} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Map wraps m as a map Value. A nil map becomes an empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, obj: m}
}

// Strings builds an array Value of strings.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Array(items...)
}

func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is null or undefined.
func (v Value) IsNil() bool { return v.kind == KindNull || v.kind == KindUndefined }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) AsMap() (map[string]Value, bool) { return v.obj, v.kind == KindMap }

// AsNumber returns the number held by v without coercion.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// Float coerces v to a number. Bools become 0 or 1, numeric strings are
// parsed, everything else fails.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		s := strings.TrimSpace(v.s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Field returns the member key of a map Value, or Undefined.
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Undefined()
	}
	if f, ok := v.obj[key]; ok {
		return f
	}
	return Undefined()
}

// String renders v as text. Null and undefined render as the empty string,
// arrays as comma-joined elements and maps as compact JSON.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindString:
		return v.s
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.String()
		}
		return strings.Join(parts, ",")
	case KindMap:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Equal is strict equality: kinds must match, no coercion. Arrays and maps
// compare element-wise.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values. Numbers compare numerically and strings
// lexicographically. Mixed scalar kinds fall back to numeric coercion. ok is
// false when the values are not comparable.
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.kind == KindString && o.kind == KindString {
		return strings.Compare(v.s, o.s), true
	}
	a, aok := v.Float()
	b, bok := o.Float()
	if !aok || !bok {
		return 0, false
	}
	switch {
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	default:
		return 0, true
	}
}

// Any converts v back into plain Go values (nil, bool, float64, string,
// []any, map[string]any). Undefined converts to nil.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Any()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts decoded JSON (or similar plain Go data) into a Value.
// Unknown types are converted through their JSON encoding.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case time.Time:
		return String(FormatTimestamp(t))
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}
		return Array(items...)
	case []string:
		return Strings(t...)
	case []Value:
		return Array(t...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return Map(m)
	case map[string]Value:
		return Map(t)
	case Record:
		return Map(t)
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null()
	}
	data, err := json.Marshal(x)
	if err != nil {
		return String(fmt.Sprint(x))
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return String(fmt.Sprint(x))
	}
	return FromAny(decoded)
}

// MarshalJSON encodes v. Undefined encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindMap:
		// sorted keys keep encodings stable for cache keys
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// UnmarshalYAML decodes a YAML node into v.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// MarshalYAML encodes v as plain YAML data.
func (v Value) MarshalYAML() (any, error) {
	return v.Any(), nil
}
