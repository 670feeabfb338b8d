package form

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/schema"
)

var (
	// ErrOutOfDomain is returned when a categorical value is not one of the
	// field's declared options.
	ErrOutOfDomain = errors.New("form: value is not an allowed option")
	// ErrNotNumber is returned when a numeric value cannot be parsed or is not
	// finite.
	ErrNotNumber = errors.New("form: value is not a finite number")
	// ErrUnknownField is returned for names the schema does not declare.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrInvalid is returned by Record while field errors are pending.
	ErrInvalid = errors.New("form: fix the highlighted fields before submitting")
)

// FieldError describes a rejected edit. The field keeps its previous value.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("form: field %q: %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// State holds the widget values of one session. Categorical values are
// strings drawn from the field options, numeric values are float64 at or
// above the field's lower bound. A State is not safe for concurrent use;
// callers serialise access per session.
type State struct {
	schema *schema.Schema
	values map[string]any
	errors map[string][]string
}

// NewState seeds a state with schema defaults: the first option for
// categorical fields and Default for numeric fields.
func NewState(s *schema.Schema) *State {
	state := &State{schema: s}
	state.Reset()
	return state
}

// Reset restores every field to its default and clears errors.
func (s *State) Reset() {
	s.values = make(map[string]any, s.schema.Len())
	s.errors = make(map[string][]string)
	for _, field := range s.schema.Fields() {
		s.values[field.Name] = defaultValue(field)
	}
}

func defaultValue(field schema.Field) any {
	if field.Kind == schema.FieldKindCategorical {
		return field.Options[0]
	}
	value := field.Default
	if field.Min != nil && value < *field.Min {
		value = *field.Min
	}
	return value
}

// Schema returns the schema the state was built for.
func (s *State) Schema() *schema.Schema {
	return s.schema
}

// Value returns the current value of name.
func (s *State) Value(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	value, ok := s.values[name]
	return value, ok
}

// Text returns the current value of name formatted for an input control.
func (s *State) Text(name string) string {
	value, ok := s.Value(name)
	if !ok {
		return ""
	}
	switch typed := value.(type) {
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

// Values returns a copy of the current values.
func (s *State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the pending field errors.
func (s *State) Errors() map[string][]string {
	out := make(map[string][]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// ErrorsFor returns the pending errors for name.
func (s *State) ErrorsFor(name string) []string {
	if s == nil || len(s.errors) == 0 {
		return nil
	}
	return s.errors[name]
}

// Valid reports whether no field errors are pending.
func (s *State) Valid() bool {
	return len(s.errors) == 0
}

// Set applies one edit. raw may be a string (as posted by a form or typed in
// a prompt) or a number. Categorical values outside the domain and numeric
// values that do not parse are refused: the previous value is kept and an
// error is recorded against the field. Numeric values below the lower bound
// are clamped to it.
func (s *State) Set(name string, raw any) error {
	field, ok := s.schema.Field(name)
	if !ok {
		return &FieldError{Field: name, Value: fmt.Sprint(raw), Err: ErrUnknownField}
	}

	var (
		value any
		err   error
	)
	switch field.Kind {
	case schema.FieldKindCategorical:
		value, err = categoricalValue(field, raw)
	case schema.FieldKindNumeric:
		value, err = numericValue(field, raw)
	}
	if err != nil {
		fieldErr := &FieldError{Field: name, Value: fmt.Sprint(raw), Err: err}
		s.errors[name] = []string{errorMessage(err)}
		return fieldErr
	}
	s.values[name] = value
	delete(s.errors, name)
	return nil
}

// Apply sets every name in values. Fields absent from values keep their
// current value. All rejected edits are reported together.
func (s *State) Apply(values map[string]string) error {
	var errs []error
	for _, name := range s.schema.Names() {
		raw, ok := values[name]
		if !ok {
			continue
		}
		if err := s.Set(name, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record assembles the Input Record in schema order.
func (s *State) Record() (inference.Record, error) {
	if !s.Valid() {
		return inference.Record{}, ErrInvalid
	}
	return inference.NewRecord(s.schema, s.values)
}

func categoricalValue(field schema.Field, raw any) (string, error) {
	text, ok := raw.(string)
	if !ok {
		return "", ErrOutOfDomain
	}
	if !field.Allows(text) {
		return "", ErrOutOfDomain
	}
	return text, nil
}

func numericValue(field schema.Field, raw any) (float64, error) {
	var value float64
	switch typed := raw.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, ErrNotNumber
		}
		value = parsed
	case float64:
		value = typed
	case float32:
		value = float64(typed)
	case int:
		value = float64(typed)
	case int64:
		value = float64(typed)
	default:
		return 0, ErrNotNumber
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNotNumber
	}
	if field.Min != nil && value < *field.Min {
		value = *field.Min
	}
	return value, nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrOutOfDomain):
		return "Choose one of the listed options."
	case errors.Is(err, ErrNotNumber):
		return "Enter a number."
	default:
		return err.Error()
	}
}
