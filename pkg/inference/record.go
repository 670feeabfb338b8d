package inference

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/goliatone/go-churnform/pkg/schema"
)

// Entry is a single field value inside a Record. Categorical entries carry
// Text, numeric entries carry Number.
type Entry struct {
	Name   string
	Kind   schema.FieldKind
	Text   string
	Number float64
}

// Value returns the entry as a plain scalar (string or float64).
func (e Entry) Value() any {
	if e.Kind == schema.FieldKindNumeric {
		return e.Number
	}
	return e.Text
}

// Record is one fully populated set of field values in schema order.
type Record struct {
	entries []Entry
	index   map[string]int
}

// NewRecord builds a Record from values keyed by field name. Every schema
// field must be present exactly once with a value of the matching type:
// string for categorical fields, a finite number for numeric fields. Keys not
// in the schema are rejected.
func NewRecord(s *schema.Schema, values map[string]any) (Record, error) {
	if s == nil || s.Len() == 0 {
		return Record{}, fmt.Errorf("inference: schema is required")
	}
	fields := s.Fields()
	rec := Record{
		entries: make([]Entry, 0, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for _, field := range fields {
		raw, ok := values[field.Name]
		if !ok {
			return Record{}, fmt.Errorf("inference: missing value for %q", field.Name)
		}
		entry := Entry{Name: field.Name, Kind: field.Kind}
		switch field.Kind {
		case schema.FieldKindCategorical:
			text, ok := raw.(string)
			if !ok {
				return Record{}, fmt.Errorf("inference: field %q expects a string, got %T", field.Name, raw)
			}
			entry.Text = text
		case schema.FieldKindNumeric:
			number, ok := toFloat(raw)
			if !ok {
				return Record{}, fmt.Errorf("inference: field %q expects a number, got %T", field.Name, raw)
			}
			if math.IsNaN(number) || math.IsInf(number, 0) {
				return Record{}, fmt.Errorf("inference: field %q must be finite", field.Name)
			}
			entry.Number = number
		}
		rec.index[field.Name] = len(rec.entries)
		rec.entries = append(rec.entries, entry)
	}
	if len(values) != len(fields) {
		for name := range values {
			if _, ok := rec.index[name]; !ok {
				return Record{}, fmt.Errorf("inference: unknown field %q", name)
			}
		}
	}
	return rec, nil
}

// Len returns the number of entries.
func (r Record) Len() int {
	return len(r.entries)
}

// Entries returns the entries in schema order.
func (r Record) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Get returns the entry stored under name.
func (r Record) Get(name string) (Entry, bool) {
	idx, ok := r.index[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Map returns the record as a name to scalar map.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.entries))
	for _, entry := range r.entries {
		out[entry.Name] = entry.Value()
	}
	return out
}

// MarshalJSON encodes the record as an object keyed by field name in schema
// order.
func (r Record) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, entry := range r.entries {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(entry.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Value())
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}

// Batch is the structured input handed to a Classifier. The adapter always
// submits exactly one row.
type Batch []Record

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
