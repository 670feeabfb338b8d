package vanilla

import (
	"bytes"
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/render/template"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla/components"
)

// componentRenderer renders one page worth of fields and remembers which
// components were used so their stylesheets can be linked.
type componentRenderer struct {
	templates template.TemplateRenderer
	registry  *components.Registry

	used map[string]struct{}
}

func newComponentRenderer(templates template.TemplateRenderer, registry *components.Registry) *componentRenderer {
	if registry == nil {
		registry = components.NewDefaultRegistry()
	}
	return &componentRenderer{
		templates: templates,
		registry:  registry,
		used:      make(map[string]struct{}),
	}
}

func (r *componentRenderer) render(field render.FieldView) (string, error) {
	name := field.Control
	if name == "" {
		return "", fmt.Errorf("field %q has no control", field.Name)
	}
	descriptor, ok := r.registry.Descriptor(name)
	if !ok {
		return "", fmt.Errorf("component %q not registered for field %q", name, field.Name)
	}

	var control bytes.Buffer
	if err := descriptor.Renderer(&control, field, components.ComponentData{Template: r.templates}); err != nil {
		return "", fmt.Errorf("render component %q for field %q: %w", name, field.Name, err)
	}
	r.used[descriptor.Name] = struct{}{}
	return buildFieldMarkup(field, descriptor.Name, control.String()), nil
}

func (r *componentRenderer) stylesheets() []string {
	if len(r.used) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.used))
	for name := range r.used {
		names = append(names, name)
	}
	slices.Sort(names)
	return r.registry.Stylesheets(names)
}

func buildFieldMarkup(field render.FieldView, componentName, control string) string {
	var builder strings.Builder
	builder.Grow(len(control) + 192)

	builder.WriteString(`<div class="`)
	builder.WriteString(string(ClassField))
	if len(field.Errors) > 0 {
		builder.WriteString(` is-invalid`)
	}
	builder.WriteString(`" data-field="`)
	builder.WriteString(html.EscapeString(field.Name))
	builder.WriteString(`" data-kind="`)
	builder.WriteString(html.EscapeString(field.Kind))
	builder.WriteString(`" data-component="`)
	builder.WriteString(html.EscapeString(componentName))
	builder.WriteString("\">\n")

	builder.WriteString(`  <label for="`)
	builder.WriteString(html.EscapeString(field.ID))
	builder.WriteString(`">`)
	builder.WriteString(html.EscapeString(field.Label))
	builder.WriteString("</label>\n")

	for _, line := range strings.Split(control, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		builder.WriteString("  ")
		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	for _, msg := range field.Errors {
		builder.WriteString(`  <p class="`)
		builder.WriteString(string(ClassFieldError))
		builder.WriteString(`" role="alert">`)
		builder.WriteString(html.EscapeString(msg))
		builder.WriteString("</p>\n")
	}

	builder.WriteString("</div>")
	return builder.String()
}
