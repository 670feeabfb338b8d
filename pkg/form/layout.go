package form

import "github.com/goliatone/go-churnform/pkg/schema"

// DefaultSlots is the number of layout columns used when none is configured.
const DefaultSlots = 2

// Slot is one layout column.
type Slot struct {
	Index  int
	Fields []schema.Field
}

// Layout distributes fields across slots round-robin on schema order: field
// i lands in slot i mod slots. The assignment is presentational only; records
// are always assembled from the schema order.
func Layout(fields []schema.Field, slots int) []Slot {
	if slots < 1 {
		slots = 1
	}
	if len(fields) > 0 && slots > len(fields) {
		slots = len(fields)
	}
	out := make([]Slot, slots)
	for i := range out {
		out[i].Index = i
	}
	for i, field := range fields {
		slot := &out[i%slots]
		slot.Fields = append(slot.Fields, field)
	}
	return out
}
