package template

import (
	"io"
)

// TemplateRenderer is the engine contract renderers depend on. Callers can
// swap in their own engine as long as templates receive the same data.
type TemplateRenderer interface {
	RenderTemplate(name string, data any, out ...io.Writer) (string, error)
	RenderString(templateContent string, data any, out ...io.Writer) (string, error)
	RegisterFilter(name string, fn func(input any, param any) (any, error)) error
	GlobalContext(data any) error
}
