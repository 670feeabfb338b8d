package orchestrator_test

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-churnform/pkg/form"
	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/render"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/schema"
	"github.com/goliatone/go-churnform/pkg/verdict"
)

func planSchema(t *testing.T) *schema.Schema {
	t.Helper()
	zero := 0.0
	s, err := schema.New(
		schema.Field{Name: "plan", Kind: schema.FieldKindCategorical, Options: []string{"basic", "premium"}},
		schema.Field{Name: "monthly_fee", Kind: schema.FieldKindNumeric, Min: &zero},
	)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

// recordingModel answers with a fixed result and remembers the last batch.
type recordingModel struct {
	label inference.Label
	p     float64
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (m *recordingModel) Predict(_ context.Context, batch inference.Batch) ([]inference.Label, error) {
	m.calls.Add(1)
	m.last.Store(batch)
	if m.err != nil {
		return nil, m.err
	}
	return []inference.Label{m.label}, nil
}

func (m *recordingModel) PredictProba(_ context.Context, _ inference.Batch) ([][]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return [][]float64{{1 - m.p, m.p}}, nil
}

func newOrchestrator(t *testing.T, model inference.Classifier, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()
	loader := resources.Static(&resources.Resources{Model: model, Schema: planSchema(t)})
	return orchestrator.New(append([]orchestrator.Option{orchestrator.WithResources(loader)}, opts...)...)
}

func TestScenarios(t *testing.T) {
	cases := []struct {
		name     string
		values   map[string]string
		label    inference.Label
		p        float64
		state    verdict.State
		headline string
		percent  string
	}{
		{
			name:     "A no churn",
			values:   map[string]string{"plan": "premium", "monthly_fee": "15.0"},
			label:    inference.LabelNoChurn,
			p:        0.12,
			state:    verdict.StateNoChurn,
			headline: "no churn",
			percent:  "12.00%",
		},
		{
			name:     "B churn",
			values:   map[string]string{"plan": "basic", "monthly_fee": "5.0"},
			label:    inference.LabelChurn,
			p:        0.87,
			state:    verdict.StateChurn,
			headline: "churn predicted",
			percent:  "87.00%",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := &recordingModel{label: tc.label, p: tc.p}
			orch := newOrchestrator(t, model)

			resp, err := orch.Submit(context.Background(), orchestrator.Request{Values: tc.values})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if resp.Err != nil {
				t.Fatalf("unexpected page error: %v", resp.Err)
			}
			if resp.Verdict == nil || resp.Verdict.State != tc.state || resp.Verdict.Percent != tc.percent {
				t.Fatalf("unexpected verdict %+v", resp.Verdict)
			}
			body := string(resp.Body)
			if !strings.Contains(body, tc.headline) || !strings.Contains(body, tc.percent) {
				t.Fatalf("verdict not rendered\n%s", body)
			}

			batch := model.last.Load().(inference.Batch)
			if len(batch) != 1 {
				t.Fatalf("expected single-row batch, got %d", len(batch))
			}
			got := batch[0].Map()
			want := map[string]any{"plan": tc.values["plan"], "monthly_fee": mustFloat(t, tc.values["monthly_fee"])}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScenarioCMissingModelRendersDiagnosticOnly(t *testing.T) {
	loader := resources.NewLoader(
		resources.WithModelPath(filepath.Join(t.TempDir(), "missing.json")),
		resources.WithSchemaPath(filepath.Join("..", "schema", "testdata", "columns.json")),
	)
	orch := orchestrator.New(orchestrator.WithResources(loader))

	resp, err := orch.RenderForm(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	var loadErr *resources.ResourceLoadError
	if !errors.As(resp.Err, &loadErr) || loadErr.Artifact != resources.ArtifactModel {
		t.Fatalf("expected model ResourceLoadError, got %v", resp.Err)
	}
	if resp.Page.Diagnostic == nil || resp.Page.Fields != nil {
		t.Fatalf("expected diagnostic page only: %+v", resp.Page)
	}
	if strings.Contains(string(resp.Body), "<form") {
		t.Fatalf("form must not be rendered\n%s", resp.Body)
	}

	submitted, err := orch.Submit(context.Background(), orchestrator.Request{Values: map[string]string{"plan": "basic"}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.Page.Diagnostic == nil || submitted.Verdict != nil {
		t.Fatalf("submit must not proceed without resources: %+v", submitted.Page)
	}
	if _, err := orch.NewState(); !errors.As(err, &loadErr) {
		t.Fatalf("expected NewState to report the load error, got %v", err)
	}
}

func TestScenarioDPredictionErrorKeepsValues(t *testing.T) {
	model := inference.Funcs{
		PredictFunc: func(context.Context, inference.Batch) ([]inference.Label, error) {
			return nil, errors.New("model exploded")
		},
	}
	orch := newOrchestrator(t, model)
	state, err := orch.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}

	resp, err := orch.Submit(context.Background(), orchestrator.Request{
		State:  state,
		Values: map[string]string{"plan": "premium", "monthly_fee": "42"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	var predErr *inference.PredictionError
	if !errors.As(resp.Err, &predErr) || predErr.Stage != inference.StagePredict {
		t.Fatalf("expected PredictionError, got %v", resp.Err)
	}
	if resp.Verdict != nil {
		t.Fatalf("no verdict expected")
	}
	want := map[string]any{"plan": "premium", "monthly_fee": 42.0}
	if diff := cmp.Diff(want, state.Values()); diff != "" {
		t.Fatalf("state not retained (-want +got):\n%s", diff)
	}
	body := string(resp.Body)
	if !strings.Contains(body, "Prediction Error: prediction error (predict): model exploded") {
		t.Fatalf("inline error missing\n%s", body)
	}
	if !strings.Contains(body, `<option value="premium" selected>`) || !strings.Contains(body, `value="42"`) {
		t.Fatalf("entered values not rendered\n%s", body)
	}
}

func TestRenderFormNeverInvokes(t *testing.T) {
	model := &recordingModel{label: inference.LabelChurn, p: 0.9}
	orch := newOrchestrator(t, model)
	for range 3 {
		resp, err := orch.RenderForm(context.Background(), orchestrator.Request{})
		if err != nil {
			t.Fatalf("RenderForm: %v", err)
		}
		if resp.Verdict != nil || resp.Err != nil {
			t.Fatalf("unexpected outcome on render: %+v", resp)
		}
	}
	if calls := model.calls.Load(); calls != 0 {
		t.Fatalf("classifier called %d times during render", calls)
	}
}

func TestSubmitInputErrorsBlockInference(t *testing.T) {
	model := &recordingModel{label: inference.LabelChurn, p: 0.9}
	orch := newOrchestrator(t, model)
	state, _ := orch.NewState()

	resp, err := orch.Submit(context.Background(), orchestrator.Request{
		State:  state,
		Values: map[string]string{"plan": "gold", "monthly_fee": "-5"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !errors.Is(resp.Err, form.ErrOutOfDomain) {
		t.Fatalf("expected out-of-domain error, got %v", resp.Err)
	}
	if model.calls.Load() != 0 {
		t.Fatalf("classifier must not run with invalid input")
	}
	if got, _ := state.Value("monthly_fee"); got != 0.0 {
		t.Fatalf("expected clamped fee, got %v", got)
	}
	if got, _ := state.Value("plan"); got != "basic" {
		t.Fatalf("expected previous plan kept, got %v", got)
	}
	if diff := cmp.Diff([]string{"Fix the highlighted fields before submitting."}, resp.Page.FormErrors); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

func TestPredict(t *testing.T) {
	orch := newOrchestrator(t, inference.Static(inference.LabelNoChurn, 0.25))
	result, v, err := orch.Predict(context.Background(), map[string]any{"plan": "basic", "monthly_fee": 12.0})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if result.Probability != 0.25 || v.Percent != "25.00%" || v.Churn() {
		t.Fatalf("unexpected outcome %+v %+v", result, v)
	}
	if _, _, err := orch.Predict(context.Background(), map[string]any{"tier": "gold"}); !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestRendererSelection(t *testing.T) {
	registry := render.NewRegistry()
	registry.MustRegister(captureRenderer{})
	orch := newOrchestrator(t, inference.Static(inference.LabelNoChurn, 0.1),
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer("missing"),
	)

	resp, err := orch.RenderForm(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	if string(resp.Body) != "capture" || resp.ContentType != "text/plain" {
		t.Fatalf("expected registry default to be used, got %q", resp.Body)
	}
	if _, err := orch.RenderForm(context.Background(), orchestrator.Request{Renderer: "preact"}); err == nil {
		t.Fatalf("expected unknown renderer error")
	}
}

func TestThemeSelector(t *testing.T) {
	selector := &stubThemeSelector{selection: &theme.Selection{
		Theme:    "acme",
		Variant:  "night",
		Manifest: &theme.Manifest{Name: "acme", Tokens: map[string]string{"accent": "#123456"}},
	}}
	orch := newOrchestrator(t, inference.Static(inference.LabelNoChurn, 0.1), orchestrator.WithThemeSelector(selector))

	resp, err := orch.RenderForm(context.Background(), orchestrator.Request{ThemeName: "acme", ThemeVariant: "night"})
	if err != nil {
		t.Fatalf("RenderForm: %v", err)
	}
	if len(selector.calls) != 1 || selector.calls[0] != [2]string{"acme", "night"} {
		t.Fatalf("unexpected selector calls %v", selector.calls)
	}
	if resp.Page.Theme.CSSVars["--accent"] != "#123456" {
		t.Fatalf("selection not applied: %+v", resp.Page.Theme)
	}

	selector.err = errors.New("unknown theme")
	if _, err := orch.RenderForm(context.Background(), orchestrator.Request{ThemeName: "nope"}); err == nil {
		t.Fatalf("expected selector error")
	}
}

func TestContextRequired(t *testing.T) {
	orch := newOrchestrator(t, inference.Static(inference.LabelNoChurn, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := orch.Submit(ctx, orchestrator.Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

type captureRenderer struct{}

func (captureRenderer) Name() string        { return "capture" }
func (captureRenderer) ContentType() string { return "text/plain" }
func (captureRenderer) Render(context.Context, render.Page) ([]byte, error) {
	return []byte("capture"), nil
}

type stubThemeSelector struct {
	selection *theme.Selection
	err       error
	calls     [][2]string
}

func (s *stubThemeSelector) Select(name, variant string, _ ...theme.QueryOption) (*theme.Selection, error) {
	s.calls = append(s.calls, [2]string{name, variant})
	if s.err != nil {
		return nil, s.err
	}
	return s.selection, nil
}

func mustFloat(t *testing.T, raw string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return v
}
