package vanilla

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goliatone/go-churnform/pkg/render"
	rendertemplate "github.com/goliatone/go-churnform/pkg/render/template"
	gotemplate "github.com/goliatone/go-churnform/pkg/render/template/gotemplate"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla/components"
)

const (
	pageTemplate       = "templates/page.tmpl"
	diagnosticTemplate = "templates/diagnostic.tmpl"
)

// Option configures the renderer.
type Option func(*config)

type config struct {
	templateFS       fs.FS
	templateRenderer rendertemplate.TemplateRenderer
	registry         *components.Registry
	assetPrefix      string
}

// WithTemplatesFS supplies an alternate template bundle via fs.FS.
func WithTemplatesFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.templateFS = files
	}
}

// WithTemplatesDir loads templates from a directory on disk.
func WithTemplatesDir(path string) Option {
	return func(cfg *config) {
		if path == "" {
			return
		}
		cfg.templateFS = os.DirFS(path)
	}
}

// WithTemplateRenderer injects a custom template renderer implementation.
func WithTemplateRenderer(renderer rendertemplate.TemplateRenderer) Option {
	return func(cfg *config) {
		if renderer != nil {
			cfg.templateRenderer = renderer
		}
	}
}

// WithComponentRegistry replaces the default select/number components.
func WithComponentRegistry(registry *components.Registry) Option {
	return func(cfg *config) {
		if registry != nil {
			cfg.registry = registry
		}
	}
}

// WithAssetPrefix sets the URL prefix the embedded stylesheet is served
// under. An empty prefix omits the stylesheet link.
func WithAssetPrefix(prefix string) Option {
	return func(cfg *config) {
		cfg.assetPrefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	}
}

// Renderer produces a complete HTML page.
type Renderer struct {
	templates   rendertemplate.TemplateRenderer
	registry    *components.Registry
	assetPrefix string
}

var _ render.Renderer = (*Renderer)(nil)

// New constructs the vanilla renderer applying any provided options.
func New(options ...Option) (*Renderer, error) {
	cfg := config{
		templateFS:  TemplatesFS(),
		assetPrefix: "/assets",
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.templateFS == nil {
		cfg.templateFS = TemplatesFS()
	}
	if cfg.registry == nil {
		cfg.registry = components.NewDefaultRegistry()
	}

	renderer := cfg.templateRenderer
	if renderer == nil {
		engine, err := gotemplate.New(
			gotemplate.WithFS(cfg.templateFS),
			gotemplate.WithExtension(".tmpl"),
		)
		if err != nil {
			return nil, fmt.Errorf("vanilla renderer: configure template renderer: %w", err)
		}
		renderer = engine
	}

	return &Renderer{
		templates:   renderer,
		registry:    cfg.registry,
		assetPrefix: cfg.assetPrefix,
	}, nil
}

func (r *Renderer) Name() string {
	return "vanilla"
}

func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

// Render writes either the diagnostic page or the form page.
func (r *Renderer) Render(_ context.Context, page render.Page) ([]byte, error) {
	if r.templates == nil {
		return nil, fmt.Errorf("vanilla renderer: template renderer is nil")
	}

	stylesheets := r.baseStylesheets()
	if page.Diagnostic != nil {
		result, err := r.templates.RenderTemplate(diagnosticTemplate, map[string]any{
			"page":        page,
			"classes":     chromeClasses(),
			"stylesheets": stylesheets,
		})
		if err != nil {
			return nil, fmt.Errorf("vanilla renderer: render diagnostic: %w", err)
		}
		return []byte(result), nil
	}

	fields := newComponentRenderer(r.templates, r.registry)
	columns := make([]map[string]any, 0, len(page.Columns))
	for _, column := range page.Columns {
		markup := make([]string, 0, len(column.Fields))
		for _, field := range column.Fields {
			html, err := fields.render(field)
			if err != nil {
				return nil, fmt.Errorf("vanilla renderer: %w", err)
			}
			markup = append(markup, html)
		}
		columns = append(columns, map[string]any{
			"index":  column.Index,
			"fields": markup,
		})
	}
	stylesheets = append(stylesheets, fields.stylesheets()...)

	result, err := r.templates.RenderTemplate(pageTemplate, map[string]any{
		"page":        page,
		"columns":     columns,
		"classes":     chromeClasses(),
		"stylesheets": stylesheets,
	})
	if err != nil {
		return nil, fmt.Errorf("vanilla renderer: render template: %w", err)
	}
	return []byte(result), nil
}

func (r *Renderer) baseStylesheets() []string {
	if r.assetPrefix == "" {
		return []string{}
	}
	return []string{r.assetPrefix + "/" + StylesheetName}
}
