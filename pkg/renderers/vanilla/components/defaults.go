package components

import (
	"bytes"
	"fmt"

	"github.com/goliatone/go-churnform/pkg/render"
)

// Component names used by the default registry. They match
// render.FieldView.Control.
const (
	NameSelect = render.ControlSelect
	NameNumber = render.ControlNumber
)

const templatePrefix = "templates/components/"

// NewDefaultRegistry returns the built-in select and number components.
func NewDefaultRegistry() *Registry {
	registry := New()
	registry.MustRegister(NameSelect, Descriptor{
		Renderer: templateComponentRenderer(templatePrefix + "select.tmpl"),
	})
	registry.MustRegister(NameNumber, Descriptor{
		Renderer: templateComponentRenderer(templatePrefix + "number.tmpl"),
	})
	return registry
}

func templateComponentRenderer(templateName string) Renderer {
	return func(buf *bytes.Buffer, field render.FieldView, data ComponentData) error {
		if data.Template == nil {
			return fmt.Errorf("components: template renderer not configured for %q", templateName)
		}
		rendered, err := data.Template.RenderTemplate(templateName, map[string]any{
			"field": field,
		})
		if err != nil {
			return fmt.Errorf("components: render template %q: %w", templateName, err)
		}
		buf.WriteString(rendered)
		return nil
	}
}
