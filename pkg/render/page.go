package render

import (
	"errors"
	"strconv"
	"strings"

	"github.com/goliatone/go-churnform/pkg/form"
	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/schema"
	"github.com/goliatone/go-churnform/pkg/verdict"
)

// Control names used by FieldView.Control.
const (
	ControlSelect = "select"
	ControlNumber = "number"
)

// Chrome is the static page decoration around the form.
type Chrome struct {
	Title       string `json:"title" yaml:"title"`
	Icon        string `json:"icon" yaml:"icon"`
	Description string `json:"description" yaml:"description"`
	SubmitLabel string `json:"submit_label" yaml:"submit_label"`
	SubmitIcon  string `json:"submit_icon" yaml:"submit_icon"`
	Action      string `json:"action" yaml:"action"`
}

// DefaultChrome returns the stock churn predictor decoration.
func DefaultChrome() Chrome {
	return Chrome{
		Title:       "Netflix Customer Churn Predictor",
		Icon:        "🎬",
		Description: "Predict if a customer will cancel their subscription based on their usage patterns.",
		SubmitLabel: "Predict Churn Status",
		SubmitIcon:  "🔮",
		Action:      "/predict",
	}
}

func (c Chrome) withDefaults() Chrome {
	defaults := DefaultChrome()
	if strings.TrimSpace(c.Title) == "" {
		c.Title = defaults.Title
	}
	if strings.TrimSpace(c.SubmitLabel) == "" {
		c.SubmitLabel = defaults.SubmitLabel
	}
	if strings.TrimSpace(c.Action) == "" {
		c.Action = defaults.Action
	}
	return c
}

// OptionView is one entry of a closed-choice control.
type OptionView struct {
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// FieldView is the render-ready form of a schema field bound to its current
// session value.
type FieldView struct {
	Name    string       `json:"name"`
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Kind    string       `json:"kind"`
	Control string       `json:"control"`
	Value   string       `json:"value"`
	Options []OptionView `json:"options,omitempty"`
	Min     string       `json:"min,omitempty"`
	Errors  []string     `json:"errors,omitempty"`
}

// Column is one layout slot of field views.
type Column struct {
	Index  int         `json:"index"`
	Fields []FieldView `json:"fields"`
}

// Diagnostic replaces the form when resources fail to load.
type Diagnostic struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Artifact string `json:"artifact,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Page is the view model handed to renderers. Either Diagnostic is set and
// nothing else about the form is, or Columns and Fields describe the form.
type Page struct {
	Title           string              `json:"title"`
	Icon            string              `json:"icon,omitempty"`
	Description     string              `json:"description,omitempty"`
	SubmitLabel     string              `json:"submit_label,omitempty"`
	SubmitIcon      string              `json:"submit_icon,omitempty"`
	Action          string              `json:"action,omitempty"`
	Fields          []FieldView         `json:"fields,omitempty"`
	Columns         []Column            `json:"columns,omitempty"`
	Verdict         *verdict.Verdict    `json:"verdict,omitempty"`
	PredictionError string              `json:"prediction_error,omitempty"`
	FormErrors      []string            `json:"form_errors,omitempty"`
	Diagnostic      *Diagnostic         `json:"diagnostic,omitempty"`
	Model           inference.ModelInfo `json:"model"`
	Theme           Theme               `json:"theme"`
	Hidden          []HiddenField       `json:"hidden,omitempty"`
}

// HiddenField is emitted as a hidden input next to the visible controls.
type HiddenField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PageOption customises a form page.
type PageOption func(*Page, *pageConfig)

type pageConfig struct {
	slots int
}

// WithSlots sets the number of layout columns.
func WithSlots(n int) PageOption {
	return func(_ *Page, cfg *pageConfig) {
		if n > 0 {
			cfg.slots = n
		}
	}
}

// WithVerdict attaches the outcome of the last submission.
func WithVerdict(v verdict.Verdict) PageOption {
	return func(p *Page, _ *pageConfig) {
		p.Verdict = &v
	}
}

// WithPredictionError surfaces a failed submission inline.
func WithPredictionError(err error) PageOption {
	return func(p *Page, _ *pageConfig) {
		if err != nil {
			p.PredictionError = err.Error()
		}
	}
}

// WithFormError adds a form-level message.
func WithFormError(msg string) PageOption {
	return func(p *Page, _ *pageConfig) {
		if msg = strings.TrimSpace(msg); msg != "" {
			p.FormErrors = append(p.FormErrors, msg)
		}
	}
}

// WithModelInfo records which artifact produced the verdicts.
func WithModelInfo(info inference.ModelInfo) PageOption {
	return func(p *Page, _ *pageConfig) {
		p.Model = info
	}
}

// WithTheme sets the palette.
func WithTheme(theme Theme) PageOption {
	return func(p *Page, _ *pageConfig) {
		p.Theme = theme
	}
}

// WithHidden adds hidden inputs.
func WithHidden(fields ...HiddenField) PageOption {
	return func(p *Page, _ *pageConfig) {
		p.Hidden = append(p.Hidden, fields...)
	}
}

// NewFormPage binds the session state to the schema and lays the fields out
// in columns. Fields keeps schema order; Columns is presentational only.
func NewFormPage(chrome Chrome, state *form.State, opts ...PageOption) Page {
	chrome = chrome.withDefaults()
	page := Page{
		Title:       chrome.Title,
		Icon:        chrome.Icon,
		Description: SanitizeDescription(chrome.Description),
		SubmitLabel: chrome.SubmitLabel,
		SubmitIcon:  chrome.SubmitIcon,
		Action:      chrome.Action,
	}
	cfg := pageConfig{slots: form.DefaultSlots}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&page, &cfg)
	}

	fields := state.Schema().Fields()
	views := make(map[string]FieldView, len(fields))
	page.Fields = make([]FieldView, 0, len(fields))
	for _, field := range fields {
		view := fieldView(field, state)
		views[field.Name] = view
		page.Fields = append(page.Fields, view)
	}
	for _, slot := range form.Layout(fields, cfg.slots) {
		column := Column{Index: slot.Index, Fields: make([]FieldView, 0, len(slot.Fields))}
		for _, field := range slot.Fields {
			column.Fields = append(column.Fields, views[field.Name])
		}
		page.Columns = append(page.Columns, column)
	}
	return page
}

// NewDiagnosticPage describes a resource failure. No form is attached.
func NewDiagnosticPage(chrome Chrome, err error, opts ...PageOption) Page {
	chrome = chrome.withDefaults()
	page := Page{
		Title:       chrome.Title,
		Icon:        chrome.Icon,
		Description: SanitizeDescription(chrome.Description),
		Diagnostic: &Diagnostic{
			Title:   "The predictor could not start",
			Message: "unknown error",
		},
	}
	if err != nil {
		page.Diagnostic.Message = err.Error()
	}
	var loadErr *resources.ResourceLoadError
	if errors.As(err, &loadErr) {
		page.Diagnostic.Artifact = loadErr.Artifact
		page.Diagnostic.Path = loadErr.Path
	}
	var cfg pageConfig
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&page, &cfg)
	}
	page.Fields, page.Columns, page.Verdict, page.PredictionError = nil, nil, nil, ""
	return page
}

func fieldView(field schema.Field, state *form.State) FieldView {
	view := FieldView{
		Name:   field.Name,
		ID:     "field-" + field.Name,
		Label:  field.Label,
		Kind:   string(field.Kind),
		Value:  state.Text(field.Name),
		Errors: state.ErrorsFor(field.Name),
	}
	switch field.Kind {
	case schema.FieldKindCategorical:
		view.Control = ControlSelect
		view.Options = make([]OptionView, 0, len(field.Options))
		for _, option := range field.Options {
			view.Options = append(view.Options, OptionView{Value: option, Selected: option == view.Value})
		}
	case schema.FieldKindNumeric:
		view.Control = ControlNumber
		if field.Min != nil {
			view.Min = strconv.FormatFloat(*field.Min, 'f', -1, 64)
		}
	}
	return view
}
