package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-churnform/pkg/form"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/schema"
)

// Renderer drives a terminal session: Collect prompts for every field and
// Render prints a page as plain text.
type Renderer struct {
	driver      PromptDriver
	theme       Theme
	skipConfirm bool
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs a TUI renderer backed by the survey driver unless another
// driver is supplied.
func New(options ...Option) *Renderer {
	r := &Renderer{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	return r
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// ContentType reports the format produced by Render.
func (r *Renderer) ContentType() string {
	return "text/plain; charset=utf-8"
}

// Collect prompts for every field in schema order, starting from the current
// state values. Rejected answers are reported and asked again. It returns
// false when the user declines to submit.
func (r *Renderer) Collect(ctx context.Context, state *form.State) (bool, error) {
	if ctx == nil {
		return false, errors.New("tui: context is required")
	}
	if r.driver == nil {
		return false, ErrNoDriver
	}
	if state == nil {
		return false, ErrNoState
	}

	for _, field := range state.Schema().Fields() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var err error
		switch field.Kind {
		case schema.FieldKindCategorical:
			err = r.promptCategorical(ctx, field, state)
		case schema.FieldKindNumeric:
			err = r.promptNumeric(ctx, field, state)
		}
		if err != nil {
			return false, err
		}
	}

	if r.skipConfirm {
		return true, nil
	}
	page := render.NewFormPage(render.Chrome{}, state)
	return r.driver.Confirm(ctx, ConfirmConfig{
		Message: strings.TrimSpace(page.SubmitIcon + " " + page.SubmitLabel + "?"),
		Default: true,
	})
}

func (r *Renderer) promptCategorical(ctx context.Context, field schema.Field, state *form.State) error {
	current := state.Text(field.Name)
	for {
		idx, err := r.driver.Select(ctx, SelectConfig{
			Message:      field.Label,
			Options:      field.Options,
			DefaultIndex: indexOf(field.Options, current),
		})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(field.Options) {
			r.fieldError(ctx, field, "Choose one of the listed options.")
			continue
		}
		if err := state.Set(field.Name, field.Options[idx]); err != nil {
			r.fieldError(ctx, field, firstError(state, field.Name, err))
			continue
		}
		return nil
	}
}

func (r *Renderer) promptNumeric(ctx context.Context, field schema.Field, state *form.State) error {
	help := ""
	if field.Min != nil {
		help = fmt.Sprintf("Values below %s are raised to it.", strconv.FormatFloat(*field.Min, 'f', -1, 64))
	}
	for {
		current := state.Text(field.Name)
		input, err := r.driver.Input(ctx, InputConfig{
			Message: field.Label,
			Default: current,
			Help:    help,
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			input = current
		}
		if err := state.Set(field.Name, input); err != nil {
			r.fieldError(ctx, field, firstError(state, field.Name, err))
			continue
		}
		return nil
	}
}

func (r *Renderer) fieldError(ctx context.Context, field schema.Field, msg string) {
	_ = r.driver.Info(ctx, fmt.Sprintf("%sInvalid %s: %s", r.theme.ErrorPrefix, field.Label, msg))
}

func firstError(state *form.State, name string, err error) string {
	if msgs := state.ErrorsFor(name); len(msgs) > 0 {
		return msgs[0]
	}
	return err.Error()
}

// Show prints the text rendition of page through the driver.
func (r *Renderer) Show(ctx context.Context, page render.Page) error {
	if r.driver == nil {
		return ErrNoDriver
	}
	out, err := r.Render(ctx, page)
	if err != nil {
		return err
	}
	return r.driver.Info(ctx, strings.TrimRight(string(out), "\n"))
}

// Render writes the page as plain text.
func (r *Renderer) Render(ctx context.Context, page render.Page) ([]byte, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(page.Icon + " " + page.Title))
	b.WriteByte('\n')
	if desc := render.PlainText(page.Description); desc != "" {
		b.WriteString(desc)
		b.WriteByte('\n')
	}

	if diag := page.Diagnostic; diag != nil {
		b.WriteByte('\n')
		b.WriteString(r.theme.ErrorPrefix + diag.Title + "\n")
		if diag.Artifact != "" {
			b.WriteString("Artifact: " + diag.Artifact)
			if diag.Path != "" {
				b.WriteString(" (" + diag.Path + ")")
			}
			b.WriteByte('\n')
		}
		b.WriteString(diag.Message + "\n")
		return []byte(b.String()), nil
	}

	if len(page.Fields) > 0 {
		b.WriteByte('\n')
		width := 0
		for _, field := range page.Fields {
			width = max(width, len(field.Label))
		}
		for _, field := range page.Fields {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, field.Label, field.Value)
			for _, msg := range field.Errors {
				fmt.Fprintf(&b, "  %-*s  %s%s\n", width, "", r.theme.ErrorPrefix, msg)
			}
		}
	}
	for _, msg := range page.FormErrors {
		b.WriteString(r.theme.ErrorPrefix + msg + "\n")
	}

	if page.PredictionError != "" {
		b.WriteString("\n" + r.theme.ErrorPrefix + "Prediction Error: " + page.PredictionError + "\n")
	}
	if v := page.Verdict; v != nil {
		b.WriteByte('\n')
		b.WriteString(r.theme.InfoPrefix + v.Headline + "\n")
		b.WriteString(v.Advisory + "\n")
		b.WriteString(v.MetricLabel + ": " + v.Percent + "\n")
	}
	return []byte(b.String()), nil
}
