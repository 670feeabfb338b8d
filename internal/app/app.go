// Package app builds the shared collaborators of the churnform binaries from
// a config.Config.
package app

import (
	"github.com/goliatone/go-churnform/internal/config"
	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/schema"
)

// NewLoader configures the resource loader from cfg.Resources.
func NewLoader(cfg config.Config, extra ...resources.Option) *resources.Loader {
	var schemaOpts []schema.Option
	switch {
	case cfg.Resources.NoDefaultMinimum:
		schemaOpts = append(schemaOpts, schema.WithoutDefaultMinimum())
	case cfg.Resources.DefaultMinimum != nil:
		schemaOpts = append(schemaOpts, schema.WithDefaultMinimum(*cfg.Resources.DefaultMinimum))
	}

	opts := []resources.Option{
		resources.WithModelPath(cfg.Resources.Model),
		resources.WithSchemaPath(cfg.Resources.Schema),
		resources.WithSchemaOptions(schemaOpts...),
	}
	if cfg.Resources.SkipFeatureCheck {
		opts = append(opts, resources.WithoutFeatureCheck())
	}
	if cfg.Inference.Threshold > 0 {
		opts = append(opts, resources.WithDecisionThreshold(cfg.Inference.Threshold))
	}
	return resources.NewLoader(append(opts, extra...)...)
}

// NewOrchestrator wires source and registry with the page settings of cfg.
// A nil registry keeps the orchestrator default.
func NewOrchestrator(cfg config.Config, source orchestrator.ResourceSource, registry *render.Registry) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithResources(source),
		orchestrator.WithChrome(cfg.Page),
		orchestrator.WithSlots(cfg.Form.Slots),
		orchestrator.WithThemeVariant(cfg.Form.ThemeVariant),
	}
	if registry != nil {
		opts = append(opts, orchestrator.WithRegistry(registry), orchestrator.WithDefaultRenderer(cfg.Server.Renderer))
	}
	return orchestrator.New(opts...)
}
