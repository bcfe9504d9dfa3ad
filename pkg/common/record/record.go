// Package record holds the generic JSON tree that flows from the transport
// through the filter and normalizer into the sinks.
//
// Values inside a Record are the ones produced by encoding/json with
// UseNumber: nil, bool, json.Number, string, []any and map[string]any.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotObject = errors.New("json document is not an object")

type Record map[string]any

// Decode parses a JSON object, keeping numbers as json.Number so that large
// integers survive without float rounding.
func Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotObject, v)
	}
	return Record(m), nil
}

// FromValue converts a nested value to a Record when it is an object.
func FromValue(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	default:
		return nil, false
	}
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Lookup follows a dotted path through nested objects.
func (r Record) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := FromValue(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Find returns the first field called name, searching depth-first through
// nested objects and arrays of objects. A direct hit on the top level is
// returned even when it is null; nested nulls are skipped so the search can
// continue to a sibling branch. Keys are visited in sorted order.
func (r Record) Find(name string) (any, bool) {
	if v, ok := r[name]; ok {
		return v, true
	}
	for _, k := range sortedKeys(r) {
		if v, ok := findNested(r[k], name); ok {
			return v, true
		}
	}
	return nil, false
}

func findNested(v any, name string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if found, ok := Record(t).Find(name); ok && found != nil {
			return found, true
		}
	case Record:
		if found, ok := t.Find(name); ok && found != nil {
			return found, true
		}
	case []any:
		for _, item := range t {
			m, ok := FromValue(item)
			if !ok {
				continue
			}
			if found, ok := m.Find(name); ok && found != nil {
				return found, true
			}
		}
	}
	return nil, false
}

// Text renders a value the way filter clauses compare against it: strings
// raw, everything else as its JSON text.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Objects returns the elements of an array field that are objects.
func (r Record) Objects(field string) []Record {
	arr, ok := r[field].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(arr))
	for _, item := range arr {
		if m, ok := FromValue(item); ok {
			out = append(out, m)
		}
	}
	return out
}

// String returns a field as a string if it holds one.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

func sortedKeys(m Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
