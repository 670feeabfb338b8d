package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-churnform/pkg/schema"
)

// Paths and operation ids published by the document.
const (
	PredictPath      = "/api/predict"
	SchemaPath       = "/api/schema"
	OperationPredict = "predictChurn"
	OperationSchema  = "getFieldSchema"
)

// Option customises the generated document.
type Option func(*config)

type config struct {
	title     string
	version   string
	serverURL string
}

// WithTitle sets info.title.
func WithTitle(title string) Option {
	return func(cfg *config) {
		if title = strings.TrimSpace(title); title != "" {
			cfg.title = title
		}
	}
}

// WithVersion sets info.version.
func WithVersion(version string) Option {
	return func(cfg *config) {
		if version = strings.TrimSpace(version); version != "" {
			cfg.version = version
		}
	}
}

// WithServerURL adds a servers entry.
func WithServerURL(url string) Option {
	return func(cfg *config) {
		cfg.serverURL = strings.TrimSpace(url)
	}
}

// ValidationError reports a payload that does not match the request schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("openapi: invalid payload: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Document is the OpenAPI description of one schema's prediction API.
type Document struct {
	spec    *openapi3.T
	request *openapi3.Schema
}

// NewDocument builds the document for s.
func NewDocument(s *schema.Schema, opts ...Option) (*Document, error) {
	if s == nil {
		return nil, errors.New("openapi: schema is required")
	}
	cfg := config{title: "churnform prediction API", version: "1.0.0"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	request := RequestSchema(s)
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   cfg.title,
			Version: cfg.version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath(PredictPath, &openapi3.PathItem{Post: predictOperation(request)}),
			openapi3.WithPath(SchemaPath, &openapi3.PathItem{Get: schemaOperation()}),
		),
	}
	if cfg.serverURL != "" {
		spec.Servers = openapi3.Servers{{URL: cfg.serverURL}}
	}
	return &Document{spec: spec, request: request}, nil
}

// Spec exposes the underlying kin-openapi document.
func (d *Document) Spec() *openapi3.T {
	return d.spec
}

// Validate checks the generated document against the OpenAPI 3 rules.
func (d *Document) Validate(ctx context.Context) error {
	if err := d.spec.Validate(ctx); err != nil {
		return fmt.Errorf("openapi: validate document: %w", err)
	}
	return nil
}

// MarshalJSON renders the document.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.spec)
}

// DecodePredictRequest validates a `{"record": {...}}` payload and returns
// the record values keyed by field name. Numbers are float64, categorical
// values strings.
func (d *Document) DecodePredictRequest(payload []byte) (map[string]any, error) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("decode body: %w", err)}
	}
	if err := d.request.VisitJSON(body); err != nil {
		return nil, &ValidationError{Err: err}
	}
	object, _ := body.(map[string]any)
	record, _ := object["record"].(map[string]any)
	return record, nil
}

// RecordSchema is the JSON schema of one Input Record: every field is
// required and no others are allowed. Numeric bounds are documented but not
// enforced, values below the bound are raised to it.
func RecordSchema(s *schema.Schema) *openapi3.Schema {
	record := openapi3.NewObjectSchema()
	record.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(false)}
	for _, field := range s.Fields() {
		var property *openapi3.Schema
		switch field.Kind {
		case schema.FieldKindCategorical:
			enum := make([]any, 0, len(field.Options))
			for _, option := range field.Options {
				enum = append(enum, option)
			}
			property = openapi3.NewStringSchema().WithEnum(enum...)
		case schema.FieldKindNumeric:
			property = openapi3.NewFloat64Schema()
			property.Default = field.Default
			if field.Min != nil {
				property.Description = "Values below " + strconv.FormatFloat(*field.Min, 'f', -1, 64) + " are raised to it."
			}
		default:
			continue
		}
		property.Title = field.Label
		record.WithProperty(field.Name, property)
		record.Required = append(record.Required, field.Name)
	}
	return record
}

// RequestSchema wraps RecordSchema in the predict request envelope.
func RequestSchema(s *schema.Schema) *openapi3.Schema {
	request := openapi3.NewObjectSchema().WithProperty("record", RecordSchema(s))
	request.Required = []string{"record"}
	request.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(false)}
	return request
}

func predictOperation(request *openapi3.Schema) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = OperationPredict
	op.Summary = "Predict churn for one customer record"
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(request),
	}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription("Verdict for the record").WithJSONSchema(verdictSchema()),
		}),
		openapi3.WithStatus(400, errorResponse("Payload does not match the record schema")),
		openapi3.WithStatus(422, errorResponse("The classifier failed on this record")),
		openapi3.WithStatus(503, errorResponse("Model or schema could not be loaded")),
	)
	return op
}

func schemaOperation() *openapi3.Operation {
	field := openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("kind", openapi3.NewStringSchema().WithEnum(string(schema.FieldKindCategorical), string(schema.FieldKindNumeric))).
		WithProperty("label", openapi3.NewStringSchema()).
		WithProperty("options", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("min", openapi3.NewFloat64Schema()).
		WithProperty("default", openapi3.NewFloat64Schema())
	field.Required = []string{"name", "kind", "label"}

	op := openapi3.NewOperation()
	op.OperationID = OperationSchema
	op.Summary = "List the form fields in record order"
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription("Field schema").WithJSONSchema(openapi3.NewArraySchema().WithItems(field)),
		}),
		openapi3.WithStatus(503, errorResponse("Model or schema could not be loaded")),
	)
	return op
}

func verdictSchema() *openapi3.Schema {
	out := openapi3.NewObjectSchema().
		WithProperty("label", openapi3.NewIntegerSchema().WithEnum(0.0, 1.0)).
		WithProperty("state", openapi3.NewStringSchema().WithEnum("churn", "no_churn")).
		WithProperty("probability", openapi3.NewFloat64Schema().WithMin(0).WithMax(1)).
		WithProperty("percent", openapi3.NewStringSchema()).
		WithProperty("headline", openapi3.NewStringSchema()).
		WithProperty("advisory", openapi3.NewStringSchema()).
		WithProperty("metric_label", openapi3.NewStringSchema())
	out.Required = []string{"label", "state", "probability", "percent"}
	return out
}

func errorResponse(description string) *openapi3.ResponseRef {
	body := openapi3.NewObjectSchema().WithProperty("error", openapi3.NewStringSchema())
	body.Required = []string{"error"}
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description).WithJSONSchema(body),
	}
}
