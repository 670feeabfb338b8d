package form_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-churnform/pkg/form"
	"github.com/goliatone/go-churnform/pkg/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	zero, one := 0.0, 1.0
	s, err := schema.New(
		schema.Field{Name: "plan", Kind: schema.FieldKindCategorical, Options: []string{"basic", "premium"}},
		schema.Field{Name: "region", Kind: schema.FieldKindCategorical, Options: []string{"eu", "us", "apac"}},
		schema.Field{Name: "monthly_fee", Kind: schema.FieldKindNumeric, Min: &zero, Default: 9.99},
		schema.Field{Name: "tenure_months", Kind: schema.FieldKindNumeric, Min: &one, Default: 1},
		schema.Field{Name: "discount", Kind: schema.FieldKindNumeric, Default: -5},
	)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func TestNewStateSeedsDefaults(t *testing.T) {
	state := form.NewState(testSchema(t))
	want := map[string]any{
		"plan":          "basic",
		"region":        "eu",
		"monthly_fee":   9.99,
		"tenure_months": 1.0,
		"discount":      -5.0,
	}
	if diff := cmp.Diff(want, state.Values()); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if !state.Valid() {
		t.Fatalf("fresh state should be valid")
	}
	if got := state.Text("monthly_fee"); got != "9.99" {
		t.Fatalf("expected text 9.99, got %q", got)
	}
}

func TestSetRefusesValuesOutsideDomain(t *testing.T) {
	state := form.NewState(testSchema(t))
	if err := state.Set("plan", "premium"); err != nil {
		t.Fatalf("Set premium: %v", err)
	}

	for _, raw := range []any{"enterprise", "", "Premium", 3} {
		err := state.Set("plan", raw)
		if !errors.Is(err, form.ErrOutOfDomain) {
			t.Fatalf("Set(%v): expected ErrOutOfDomain, got %v", raw, err)
		}
		var fieldErr *form.FieldError
		if !errors.As(err, &fieldErr) || fieldErr.Field != "plan" {
			t.Fatalf("Set(%v): expected FieldError for plan, got %v", raw, err)
		}
		if value, _ := state.Value("plan"); value != "premium" {
			t.Fatalf("Set(%v): previous value lost, got %v", raw, value)
		}
	}
	if len(state.ErrorsFor("plan")) != 1 {
		t.Fatalf("expected one pending error, got %v", state.ErrorsFor("plan"))
	}
	if _, err := state.Record(); !errors.Is(err, form.ErrInvalid) {
		t.Fatalf("expected ErrInvalid while errors are pending, got %v", err)
	}

	if err := state.Set("plan", "basic"); err != nil {
		t.Fatalf("Set basic: %v", err)
	}
	if !state.Valid() {
		t.Fatalf("valid edit should clear the field error, got %v", state.Errors())
	}
}

func TestSetClampsBelowLowerBound(t *testing.T) {
	cases := []struct {
		name  string
		field string
		raw   any
		want  float64
	}{
		{name: "below zero", field: "monthly_fee", raw: "-3.5", want: 0},
		{name: "exactly zero", field: "monthly_fee", raw: "0", want: 0},
		{name: "above bound", field: "monthly_fee", raw: " 12.5 ", want: 12.5},
		{name: "number input", field: "monthly_fee", raw: -1.0, want: 0},
		{name: "custom bound", field: "tenure_months", raw: "0.5", want: 1},
		{name: "exactly custom bound", field: "tenure_months", raw: 1, want: 1},
		{name: "no bound", field: "discount", raw: "-40", want: -40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := form.NewState(testSchema(t))
			if err := state.Set(tc.field, tc.raw); err != nil {
				t.Fatalf("Set: %v", err)
			}
			value, _ := state.Value(tc.field)
			if value != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, value)
			}
		})
	}
}

func TestSetRejectsNonNumbers(t *testing.T) {
	state := form.NewState(testSchema(t))
	for _, raw := range []any{"abc", "", "NaN", "Inf", true} {
		if err := state.Set("monthly_fee", raw); !errors.Is(err, form.ErrNotNumber) {
			t.Fatalf("Set(%v): expected ErrNotNumber, got %v", raw, err)
		}
	}
	if value, _ := state.Value("monthly_fee"); value != 9.99 {
		t.Fatalf("expected previous value 9.99, got %v", value)
	}
}

func TestSetUnknownField(t *testing.T) {
	state := form.NewState(testSchema(t))
	if err := state.Set("age", "3"); !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestApplyCollectsErrorsAndKeepsValidEdits(t *testing.T) {
	state := form.NewState(testSchema(t))
	err := state.Apply(map[string]string{
		"plan":        "gold",
		"region":      "us",
		"monthly_fee": "-2",
		"discount":    "lots",
	})
	if !errors.Is(err, form.ErrOutOfDomain) || !errors.Is(err, form.ErrNotNumber) {
		t.Fatalf("expected joined field errors, got %v", err)
	}
	want := map[string]any{
		"plan":          "basic",
		"region":        "us",
		"monthly_fee":   0.0,
		"tenure_months": 1.0,
		"discount":      -5.0,
	}
	if diff := cmp.Diff(want, state.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"discount", "plan"}, sortedKeys(state.Errors())); diff != "" {
		t.Fatalf("error fields mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordFollowsSchemaOrderAndRespectsBounds(t *testing.T) {
	s := testSchema(t)
	state := form.NewState(s)
	if err := state.Apply(map[string]string{
		"discount":      "3",
		"tenure_months": "-10",
		"monthly_fee":   "-0.01",
		"region":        "apac",
		"plan":          "premium",
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rec, err := state.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	var names []string
	for _, entry := range rec.Entries() {
		names = append(names, entry.Name)
		field, _ := s.Field(entry.Name)
		if field.Min != nil && entry.Number < *field.Min {
			t.Fatalf("field %s below bound: %v", entry.Name, entry.Number)
		}
		if field.Kind == schema.FieldKindCategorical && !field.Allows(entry.Text) {
			t.Fatalf("field %s outside domain: %q", entry.Name, entry.Text)
		}
	}
	if diff := cmp.Diff(s.Names(), names); diff != "" {
		t.Fatalf("record order mismatch (-want +got):\n%s", diff)
	}
}

func TestReset(t *testing.T) {
	state := form.NewState(testSchema(t))
	_ = state.Set("plan", "premium")
	_ = state.Set("monthly_fee", "oops")
	state.Reset()
	if value, _ := state.Value("plan"); value != "basic" {
		t.Fatalf("expected reset to default, got %v", value)
	}
	if !state.Valid() {
		t.Fatalf("expected errors cleared")
	}
}
