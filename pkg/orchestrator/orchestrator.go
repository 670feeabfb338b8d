package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goliatone/go-churnform/pkg/form"
	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/verdict"
)

const (
	defaultRendererName = "vanilla"
	invalidFormMessage  = "Fix the highlighted fields before submitting."
)

// Orchestrator coordinates one interaction at a time against shared,
// read-only resources. Session state is owned by the caller and passed in on
// every request.
type Orchestrator struct {
	source          ResourceSource
	registry        *render.Registry
	defaultRenderer string
	chrome          render.Chrome
	slots           int
	themeSelector   ThemeSelector
	themeVariant    string
	invokerOpts     []inference.InvokerOption

	initialiseErr error

	invokerOnce sync.Once
	invoker     *inference.Invoker
}

// New constructs an Orchestrator applying any provided options. Without a
// registry the vanilla HTML renderer is registered.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		defaultRenderer: defaultRendererName,
		chrome:          render.DefaultChrome(),
		slots:           form.DefaultSlots,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.source == nil {
		o.source = resources.NewLoader()
	}
	if o.registry == nil {
		o.registry = render.NewRegistry()
		renderer, err := vanilla.New()
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: default renderer: %w", err)
		} else {
			o.registry.MustRegister(renderer)
		}
	}
	return o
}

// Request describes one interaction.
type Request struct {
	// State is the session's form state. RenderForm and Submit create a fresh
	// one from the schema when nil.
	State *form.State

	// Values are raw submitted values keyed by field name (Submit only).
	Values map[string]string

	// Renderer names the renderer to use. If empty, the orchestrator falls back
	// to the configured default renderer.
	Renderer string

	ThemeName    string
	ThemeVariant string

	// Hidden inputs emitted with the form, such as a session token.
	Hidden []render.HiddenField
}

// Response is the outcome of an interaction. Err carries the error shown on
// the page: a *resources.ResourceLoadError, a *inference.PredictionError or
// input errors from form.State. It is nil on a clean render or a verdict.
type Response struct {
	Page        render.Page
	Body        []byte
	ContentType string
	State       *form.State
	Result      *inference.Result
	Verdict     *verdict.Verdict
	Err         error
}

// Resources returns the loaded resources.
func (o *Orchestrator) Resources() (*resources.Resources, error) {
	return o.source.Load()
}

// NewState returns form state seeded with schema defaults.
func (o *Orchestrator) NewState() (*form.State, error) {
	res, err := o.source.Load()
	if err != nil {
		return nil, err
	}
	return form.NewState(res.Schema), nil
}

// RenderForm renders the form for the session, or the diagnostic page when
// resources failed to load. It never invokes the classifier.
func (o *Orchestrator) RenderForm(ctx context.Context, req Request) (*Response, error) {
	if err := o.precheck(ctx); err != nil {
		return nil, err
	}
	res, err := o.source.Load()
	if err != nil {
		return o.diagnostic(ctx, req, err)
	}
	state := o.stateFor(req, res)
	return o.renderState(ctx, req, res, state, nil)
}

// Submit applies the submitted values to the session state and, when every
// field is valid, runs one inference and presents the verdict. Prediction
// errors are shown inline and leave the state untouched.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Response, error) {
	if err := o.precheck(ctx); err != nil {
		return nil, err
	}
	res, err := o.source.Load()
	if err != nil {
		return o.diagnostic(ctx, req, err)
	}
	state := o.stateFor(req, res)

	if err := state.Apply(req.Values); err != nil {
		return o.renderState(ctx, req, res, state, &outcome{err: err, formError: invalidFormMessage})
	}
	result, v, err := o.predict(ctx, res, state)
	if err != nil {
		var predErr *inference.PredictionError
		if errors.As(err, &predErr) {
			return o.renderState(ctx, req, res, state, &outcome{err: err, predictionErr: predErr})
		}
		msg := err.Error()
		if errors.Is(err, form.ErrInvalid) {
			msg = invalidFormMessage
		}
		return o.renderState(ctx, req, res, state, &outcome{err: err, formError: msg})
	}
	return o.renderState(ctx, req, res, state, &outcome{result: &result, verdict: &v})
}

// Predict runs one inference for values without touching any session. Values
// missing from the map keep their schema defaults.
func (o *Orchestrator) Predict(ctx context.Context, values map[string]any) (inference.Result, verdict.Verdict, error) {
	if err := o.precheck(ctx); err != nil {
		return inference.Result{}, verdict.Verdict{}, err
	}
	res, err := o.source.Load()
	if err != nil {
		return inference.Result{}, verdict.Verdict{}, err
	}
	state := form.NewState(res.Schema)
	var errs []error
	for name, raw := range values {
		if err := state.Set(name, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return inference.Result{}, verdict.Verdict{}, err
	}
	return o.predict(ctx, res, state)
}

func (o *Orchestrator) predict(ctx context.Context, res *resources.Resources, state *form.State) (inference.Result, verdict.Verdict, error) {
	rec, err := state.Record()
	if err != nil {
		return inference.Result{}, verdict.Verdict{}, err
	}
	result, err := o.invokerFor(res).Invoke(ctx, rec)
	if err != nil {
		return inference.Result{}, verdict.Verdict{}, err
	}
	return result, verdict.Present(result), nil
}

func (o *Orchestrator) invokerFor(res *resources.Resources) *inference.Invoker {
	o.invokerOnce.Do(func() {
		o.invoker = inference.NewInvoker(res.Model, o.invokerOpts...)
	})
	return o.invoker
}

type outcome struct {
	err           error
	formError     string
	predictionErr *inference.PredictionError
	result        *inference.Result
	verdict       *verdict.Verdict
}

func (o *Orchestrator) renderState(ctx context.Context, req Request, res *resources.Resources, state *form.State, out *outcome) (*Response, error) {
	themeView, err := o.themeFor(req)
	if err != nil {
		return nil, err
	}
	opts := []render.PageOption{
		render.WithSlots(o.slots),
		render.WithModelInfo(res.Info),
		render.WithTheme(themeView),
		render.WithHidden(req.Hidden...),
	}
	resp := &Response{State: state}
	if out != nil {
		resp.Err = out.err
		resp.Result = out.result
		resp.Verdict = out.verdict
		if out.formError != "" {
			opts = append(opts, render.WithFormError(out.formError))
		}
		if out.predictionErr != nil {
			opts = append(opts, render.WithPredictionError(out.predictionErr))
		}
		if out.verdict != nil {
			opts = append(opts, render.WithVerdict(*out.verdict))
		}
	}
	resp.Page = render.NewFormPage(o.chrome, state, opts...)
	return o.write(ctx, req, resp)
}

func (o *Orchestrator) diagnostic(ctx context.Context, req Request, loadErr error) (*Response, error) {
	themeView, err := o.themeFor(req)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Page: render.NewDiagnosticPage(o.chrome, loadErr, render.WithTheme(themeView)),
		Err:  loadErr,
	}
	return o.write(ctx, req, resp)
}

func (o *Orchestrator) write(ctx context.Context, req Request, resp *Response) (*Response, error) {
	renderer, err := o.rendererFor(req.Renderer)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(ctx, resp.Page)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: render output: %w", err)
	}
	resp.Body = body
	resp.ContentType = renderer.ContentType()
	return resp, nil
}

func (o *Orchestrator) stateFor(req Request, res *resources.Resources) *form.State {
	if req.State != nil {
		return req.State
	}
	return form.NewState(res.Schema)
}

func (o *Orchestrator) themeFor(req Request) (render.Theme, error) {
	variant := req.ThemeVariant
	if variant == "" {
		variant = o.themeVariant
	}
	if o.themeSelector == nil {
		return render.DefaultTheme(variant), nil
	}
	selection, err := o.themeSelector.Select(req.ThemeName, variant)
	if err != nil {
		return render.Theme{}, fmt.Errorf("orchestrator: select theme: %w", err)
	}
	return render.ThemeFromSelection(selection), nil
}

func (o *Orchestrator) precheck(ctx context.Context) error {
	if ctx == nil {
		return errors.New("orchestrator: context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.initialiseErr
}

func (o *Orchestrator) rendererFor(name string) (render.Renderer, error) {
	if o.registry == nil {
		return nil, errors.New("orchestrator: renderer registry is nil")
	}

	target := name
	if target == "" {
		target = o.defaultRenderer
	}

	if target != "" {
		renderer, err := o.registry.Get(target)
		if err == nil {
			return renderer, nil
		}
		if name != "" {
			return nil, fmt.Errorf("orchestrator: renderer %q: %w", name, err)
		}
	}

	renderer, err := o.registry.Get("")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return renderer, nil
}
