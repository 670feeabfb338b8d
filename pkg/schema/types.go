package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FieldKind enumerates the two input kinds a churn schema can declare.
type FieldKind string

const (
	FieldKindCategorical FieldKind = "categorical"
	FieldKindNumeric     FieldKind = "numeric"
)

// Field describes one expected model input. Categorical fields carry their
// closed domain in Options; numeric fields carry Default and an optional Min.
type Field struct {
	Name    string    `json:"name"`
	Kind    FieldKind `json:"kind"`
	Label   string    `json:"label"`
	Options []string  `json:"options,omitempty"`
	Min     *float64  `json:"min,omitempty"`
	Default float64   `json:"default"`
}

// HasMin reports whether the field declares a lower bound.
func (f Field) HasMin() bool {
	return f.Kind == FieldKindNumeric && f.Min != nil
}

// Allows reports whether value belongs to the categorical domain.
func (f Field) Allows(value string) bool {
	for _, option := range f.Options {
		if option == value {
			return true
		}
	}
	return false
}

func (f Field) clone() Field {
	out := f
	if len(f.Options) > 0 {
		out.Options = append([]string(nil), f.Options...)
	}
	if f.Min != nil {
		value := *f.Min
		out.Min = &value
	}
	return out
}

// Schema is the ordered, immutable set of fields loaded once per process.
type Schema struct {
	fields []Field
	index  map[string]int
}

var (
	errFieldNameMissing = errors.New("schema: field name is required")
	errNoFields         = errors.New("schema: at least one field is required")
)

// New validates the supplied fields and returns a Schema preserving their
// order. Labels left empty are derived with DefaultLabeler.
func New(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errNoFields
	}

	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, field := range fields {
		field = field.clone()
		field.Name = strings.TrimSpace(field.Name)
		if field.Name == "" {
			return nil, errFieldNameMissing
		}
		if _, exists := s.index[field.Name]; exists {
			return nil, fmt.Errorf("schema: duplicate field %q", field.Name)
		}
		if err := validateField(field); err != nil {
			return nil, err
		}
		if field.Label == "" {
			field.Label = DefaultLabeler(field.Name)
		}
		s.index[field.Name] = len(s.fields)
		s.fields = append(s.fields, field)
	}
	return s, nil
}

func validateField(field Field) error {
	switch field.Kind {
	case FieldKindCategorical:
		if len(field.Options) == 0 {
			return fmt.Errorf("schema: categorical field %q has an empty domain", field.Name)
		}
		seen := make(map[string]struct{}, len(field.Options))
		for _, option := range field.Options {
			if _, dup := seen[option]; dup {
				return fmt.Errorf("schema: categorical field %q repeats option %q", field.Name, option)
			}
			seen[option] = struct{}{}
		}
		if field.Min != nil {
			return fmt.Errorf("schema: categorical field %q cannot declare a lower bound", field.Name)
		}
	case FieldKindNumeric:
		if len(field.Options) > 0 {
			return fmt.Errorf("schema: numeric field %q cannot declare options", field.Name)
		}
		if math.IsNaN(field.Default) || math.IsInf(field.Default, 0) {
			return fmt.Errorf("schema: numeric field %q has a non-finite default", field.Name)
		}
		if field.Min != nil {
			if math.IsNaN(*field.Min) || math.IsInf(*field.Min, 0) {
				return fmt.Errorf("schema: numeric field %q has a non-finite lower bound", field.Name)
			}
			if field.Default < *field.Min {
				return fmt.Errorf("schema: numeric field %q default %v is below its lower bound %v", field.Name, field.Default, *field.Min)
			}
		}
	default:
		return fmt.Errorf("schema: field %q has unsupported kind %q", field.Name, field.Kind)
	}
	return nil
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Fields returns a copy of the fields in schema order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	for i, field := range s.fields {
		out[i] = field.clone()
	}
	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	idx, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[idx].clone(), true
}

// Names returns the field names in schema order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.fields))
	for i, field := range s.fields {
		names[i] = field.Name
	}
	return names
}
