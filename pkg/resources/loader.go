package resources

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/schema"
)

// Artifact names reported by ResourceLoadError.
const (
	ArtifactModel  = "model"
	ArtifactSchema = "schema"
)

// Resources are the process-wide, read-only collaborators of the adapter.
type Resources struct {
	Model  inference.Classifier
	Schema *schema.Schema
	Info   inference.ModelInfo
}

// ResourceLoadError reports an artifact that could not be loaded. It is a
// static misconfiguration: loading is never retried.
type ResourceLoadError struct {
	Artifact string
	Path     string
	Err      error
}

func (e *ResourceLoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Path == "" {
		return fmt.Sprintf("resource load error: %s: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("resource load error: %s %s: %v", e.Artifact, e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ModelOpener loads a classifier from path.
type ModelOpener func(path string) (inference.Classifier, error)

// SchemaOpener loads a field schema from path.
type SchemaOpener func(path string, opts ...schema.Option) (*schema.Schema, error)

// Observer is told once about the outcome of the first Load.
type Observer func(res *Resources, err error)

// Option configures a Loader.
type Option func(*Loader)

// WithModelPath sets the model artifact location.
func WithModelPath(path string) Option {
	return func(l *Loader) {
		l.modelPath = strings.TrimSpace(path)
	}
}

// WithSchemaPath sets the schema file location.
func WithSchemaPath(path string) Option {
	return func(l *Loader) {
		l.schemaPath = strings.TrimSpace(path)
	}
}

// WithSchemaOptions forwards options to the schema parser.
func WithSchemaOptions(opts ...schema.Option) Option {
	return func(l *Loader) {
		l.schemaOpts = append(l.schemaOpts, opts...)
	}
}

// WithModelOpener replaces the model opener (inference.LoadArtifact by default).
func WithModelOpener(open ModelOpener) Option {
	return func(l *Loader) {
		if open != nil {
			l.openModel = open
		}
	}
}

// WithSchemaOpener replaces the schema opener (schema.LoadFile by default).
func WithSchemaOpener(open SchemaOpener) Option {
	return func(l *Loader) {
		if open != nil {
			l.openSchema = open
		}
	}
}

// WithFS loads both artifacts from fsys instead of the OS filesystem.
func WithFS(fsys fs.FS) Option {
	return func(l *Loader) {
		if fsys == nil {
			return
		}
		l.openModel = func(path string) (inference.Classifier, error) {
			return inference.LoadArtifactFS(fsys, path)
		}
		l.openSchema = func(path string, opts ...schema.Option) (*schema.Schema, error) {
			return schema.LoadFS(fsys, path, opts...)
		}
	}
}

// WithObserver registers fn to receive the outcome of the first Load.
func WithObserver(fn Observer) Option {
	return func(l *Loader) {
		if fn != nil {
			l.observers = append(l.observers, fn)
		}
	}
}

// WithoutFeatureCheck skips verifying that the model's columns exist in the
// schema.
func WithoutFeatureCheck() Option {
	return func(l *Loader) {
		l.checkFeatures = false
	}
}

// WithDecisionThreshold makes the loaded model label rows at threshold
// instead of the threshold stored in its artifact.
func WithDecisionThreshold(threshold float64) Option {
	return func(l *Loader) {
		l.threshold = threshold
	}
}

// Loader loads the model and schema on first use and hands out the same
// instances afterwards.
type Loader struct {
	modelPath     string
	schemaPath    string
	schemaOpts    []schema.Option
	openModel     ModelOpener
	openSchema    SchemaOpener
	observers     []Observer
	checkFeatures bool
	threshold     float64

	once sync.Once
	res  *Resources
	err  error
}

// NewLoader configures a Loader. Nothing is read until Load is called.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		openModel:     inference.LoadArtifact,
		openSchema:    schema.LoadFile,
		checkFeatures: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(l)
	}
	return l
}

// Load returns the cached resources, loading them on the first call. A
// failure is cached too: later calls return the same *ResourceLoadError
// without touching disk. Concurrent callers wait for the single load.
func (l *Loader) Load() (*Resources, error) {
	l.once.Do(func() {
		l.res, l.err = l.load()
		for _, observe := range l.observers {
			observe(l.res, l.err)
		}
	})
	return l.res, l.err
}

func (l *Loader) load() (*Resources, error) {
	if l.modelPath == "" {
		return nil, &ResourceLoadError{Artifact: ArtifactModel, Err: errors.New("path is not configured")}
	}
	if l.schemaPath == "" {
		return nil, &ResourceLoadError{Artifact: ArtifactSchema, Err: errors.New("path is not configured")}
	}

	model, err := l.openModel(l.modelPath)
	if err != nil {
		return nil, &ResourceLoadError{Artifact: ArtifactModel, Path: l.modelPath, Err: err}
	}
	if model == nil {
		return nil, &ResourceLoadError{Artifact: ArtifactModel, Path: l.modelPath, Err: errors.New("opener returned no model")}
	}

	model = inference.WithDecisionThreshold(model, l.threshold)

	fields, err := l.openSchema(l.schemaPath, l.schemaOpts...)
	if err != nil {
		return nil, &ResourceLoadError{Artifact: ArtifactSchema, Path: l.schemaPath, Err: err}
	}

	if l.checkFeatures {
		if lister, ok := model.(inference.FeatureLister); ok {
			for _, name := range lister.Features() {
				if _, ok := fields.Field(name); !ok {
					return nil, &ResourceLoadError{
						Artifact: ArtifactModel,
						Path:     l.modelPath,
						Err:      fmt.Errorf("model reads column %q which the schema does not declare", name),
					}
				}
			}
		}
	}

	res := &Resources{Model: model, Schema: fields}
	if describer, ok := model.(inference.Describer); ok {
		res.Info = describer.Describe()
	}
	return res, nil
}

// Static returns a Loader that always yields res. It is meant for embedding
// and tests where the collaborators are built in code.
func Static(res *Resources) *Loader {
	l := &Loader{}
	l.once.Do(func() {
		switch {
		case res == nil || res.Model == nil:
			l.err = &ResourceLoadError{Artifact: ArtifactModel, Err: errors.New("no model supplied")}
		case res.Schema == nil:
			l.err = &ResourceLoadError{Artifact: ArtifactSchema, Err: errors.New("no schema supplied")}
		default:
			l.res = res
		}
	})
	return l
}
