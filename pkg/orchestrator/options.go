package orchestrator

import (
	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/resources"
)

// ResourceSource hands out the process-wide resources. *resources.Loader is
// the production implementation.
type ResourceSource interface {
	Load() (*resources.Resources, error)
}

// ThemeSelector resolves a theme and variant into a go-theme selection.
type ThemeSelector interface {
	Select(name, variant string, opts ...theme.QueryOption) (*theme.Selection, error)
}

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithResources injects the resource source.
func WithResources(source ResourceSource) Option {
	return func(o *Orchestrator) {
		if source != nil {
			o.source = source
		}
	}
}

// WithRegistry injects a renderer registry.
func WithRegistry(registry *render.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithDefaultRenderer overrides the renderer used when a request omits an
// explicit Renderer field.
func WithDefaultRenderer(name string) Option {
	return func(o *Orchestrator) {
		o.defaultRenderer = name
	}
}

// WithChrome sets the page decoration.
func WithChrome(chrome render.Chrome) Option {
	return func(o *Orchestrator) {
		o.chrome = chrome
	}
}

// WithSlots sets the number of layout columns.
func WithSlots(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.slots = n
		}
	}
}

// WithThemeSelector resolves Request.ThemeName/ThemeVariant through selector.
// Without a selector the built-in churnform palette is used.
func WithThemeSelector(selector ThemeSelector) Option {
	return func(o *Orchestrator) {
		o.themeSelector = selector
	}
}

// WithThemeVariant picks the built-in palette variant used when requests do
// not name one.
func WithThemeVariant(variant string) Option {
	return func(o *Orchestrator) {
		o.themeVariant = variant
	}
}

// WithInvokerOptions forwards options to the inference invoker.
func WithInvokerOptions(opts ...inference.InvokerOption) Option {
	return func(o *Orchestrator) {
		o.invokerOpts = append(o.invokerOpts, opts...)
	}
}
