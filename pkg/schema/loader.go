package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Top-level keys of the schema file.
const (
	keyCategorical = "cat_columns"
	keyNumeric     = "num_columns"
	keyDefaults    = "num_defaults"
	keyMinimums    = "num_min"
)

// Option configures how a schema document is turned into fields.
type Option func(*options)

type options struct {
	labeler        func(string) string
	defaultMin     *float64
	skipDefaultMin bool
}

// WithLabeler overrides DefaultLabeler.
func WithLabeler(fn func(string) string) Option {
	return func(o *options) {
		if fn != nil {
			o.labeler = fn
		}
	}
}

// WithDefaultMinimum sets the lower bound applied to numeric fields that do
// not declare one in num_min. The loader defaults to 0.
func WithDefaultMinimum(value float64) Option {
	return func(o *options) {
		o.defaultMin = &value
		o.skipDefaultMin = false
	}
}

// WithoutDefaultMinimum leaves numeric fields unbounded unless num_min names
// them explicitly.
func WithoutDefaultMinimum() Option {
	return func(o *options) {
		o.defaultMin = nil
		o.skipDefaultMin = true
	}
}

func newOptions(opts ...Option) options {
	zero := 0.0
	cfg := options{
		labeler:    DefaultLabeler,
		defaultMin: &zero,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return cfg
}

// LoadFile reads and parses a schema document from disk.
func LoadFile(path string, opts ...Option) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	s, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return s, nil
}

// LoadFS reads and parses a schema document from fsys.
func LoadFS(fsys fs.FS, name string, opts ...Option) (*Schema, error) {
	if fsys == nil {
		return nil, errors.New("schema: filesystem is nil")
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", name, err)
	}
	s, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, name)
	}
	return s, nil
}

// Parse decodes a JSON or YAML schema document:
//
//	{"cat_columns": {"plan": ["basic", "premium"]}, "num_columns": ["monthly_fee"]}
//
// Categorical fields come first in document order followed by numeric fields
// in list order. The document is decoded through yaml.v3 nodes so mapping key
// order survives.
func Parse(data []byte, opts ...Option) (*Schema, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("schema: document is empty")
	}
	cfg := newOptions(opts...)

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse document: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("schema: document must be a mapping")
	}

	entries, err := mappingEntries(root, "document")
	if err != nil {
		return nil, err
	}

	catNode, ok := entries[keyCategorical]
	if !ok {
		return nil, fmt.Errorf("schema: missing %q", keyCategorical)
	}
	numNode, ok := entries[keyNumeric]
	if !ok {
		return nil, fmt.Errorf("schema: missing %q", keyNumeric)
	}

	var fields []Field

	if catNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema: %q must map field names to option lists", keyCategorical)
	}
	for i := 0; i+1 < len(catNode.Content); i += 2 {
		name := catNode.Content[i].Value
		var values []string
		if err := catNode.Content[i+1].Decode(&values); err != nil {
			return nil, fmt.Errorf("schema: %q options for %q: %w", keyCategorical, name, err)
		}
		fields = append(fields, Field{
			Name:    name,
			Kind:    FieldKindCategorical,
			Label:   cfg.labeler(name),
			Options: values,
		})
	}

	var numeric []string
	if err := numNode.Decode(&numeric); err != nil {
		return nil, fmt.Errorf("schema: %q must be a list of field names: %w", keyNumeric, err)
	}

	defaults, err := decodeFloatMap(entries, keyDefaults)
	if err != nil {
		return nil, err
	}
	minimums, err := decodeFloatMap(entries, keyMinimums)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(numeric))
	for _, name := range numeric {
		known[name] = struct{}{}
		field := Field{
			Name:    name,
			Kind:    FieldKindNumeric,
			Label:   cfg.labeler(name),
			Default: defaults[name],
		}
		if value, ok := minimums[name]; ok {
			bound := value
			field.Min = &bound
		} else if !cfg.skipDefaultMin && cfg.defaultMin != nil {
			bound := *cfg.defaultMin
			field.Min = &bound
		}
		if _, explicit := defaults[name]; !explicit && field.Min != nil && field.Default < *field.Min {
			field.Default = *field.Min
		}
		fields = append(fields, field)
	}

	for _, extra := range []struct {
		key    string
		values map[string]float64
	}{{keyDefaults, defaults}, {keyMinimums, minimums}} {
		for name := range extra.values {
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("schema: %q references unknown numeric field %q", extra.key, name)
			}
		}
	}

	return New(fields...)
}

func mappingEntries(node *yaml.Node, context string) (map[string]*yaml.Node, error) {
	out := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, exists := out[key]; exists {
			return nil, fmt.Errorf("schema: %s defines %q twice", context, key)
		}
		out[key] = node.Content[i+1]
	}
	return out, nil
}

func decodeFloatMap(entries map[string]*yaml.Node, key string) (map[string]float64, error) {
	node, ok := entries[key]
	if !ok {
		return nil, nil
	}
	var out map[string]float64
	if err := node.Decode(&out); err != nil {
		return nil, fmt.Errorf("schema: %q must map numeric fields to numbers: %w", key, err)
	}
	return out, nil
}
