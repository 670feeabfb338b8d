// Package churnform turns a churn model artifact and the columns.json it was
// trained against into a form that scores one customer per submission.
//
// The root package re-exports the orchestrator for callers that only need
// the quick path; the subpackages under pkg/ hold the building blocks.
package churnform

import (
	"context"
	"io/fs"

	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/verdict"
)

// Request describes one interaction with the orchestrator.
type Request = orchestrator.Request

// Response is what the orchestrator rendered and decided.
type Response = orchestrator.Response

// NewOrchestrator exposes the orchestrator constructor from the module root.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// FromFiles returns an orchestrator over the model and schema at the given
// paths. Nothing is read until the first render or prediction.
func FromFiles(modelPath, schemaPath string, options ...orchestrator.Option) *orchestrator.Orchestrator {
	loader := resources.NewLoader(
		resources.WithModelPath(modelPath),
		resources.WithSchemaPath(schemaPath),
	)
	return orchestrator.New(append([]orchestrator.Option{orchestrator.WithResources(loader)}, options...)...)
}

// RenderHTML renders the empty form, or the diagnostic page when the
// artifacts cannot be loaded, with the vanilla renderer.
func RenderHTML(ctx context.Context, modelPath, schemaPath string, options ...orchestrator.Option) ([]byte, error) {
	resp, err := FromFiles(modelPath, schemaPath, options...).RenderForm(ctx, Request{})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Predict scores values against the artifacts and returns the verdict.
func Predict(ctx context.Context, modelPath, schemaPath string, values map[string]any) (verdict.Verdict, error) {
	_, v, err := FromFiles(modelPath, schemaPath).Predict(ctx, values)
	return v, err
}

// EmbeddedTemplates exposes the built-in vanilla renderer templates so callers
// can reuse or extend them without importing the renderer package directly.
func EmbeddedTemplates() fs.FS {
	return vanilla.TemplatesFS()
}

// EmbeddedAssets exposes the stylesheet the vanilla templates link to.
//
// Typical mount:
//
//	mux.Handle("/assets/",
//	  http.StripPrefix("/assets/",
//	    http.FileServerFS(churnform.EmbeddedAssets()),
//	  ),
//	)
func EmbeddedAssets() fs.FS {
	return vanilla.AssetsFS()
}
