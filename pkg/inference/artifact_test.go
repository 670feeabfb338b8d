package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-churnform/pkg/inference"
)

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func TestLogisticArtifact(t *testing.T) {
	clf, err := inference.LoadArtifact("testdata/logistic.json")
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	describer, ok := clf.(inference.Describer)
	if !ok {
		t.Fatalf("expected logistic model to describe itself")
	}
	if diff := cmp.Diff(inference.ModelInfo{Kind: "logistic", Name: "churn-lr", Version: "2024-06"}, describer.Describe()); diff != "" {
		t.Fatalf("model info mismatch (-want +got):\n%s", diff)
	}

	s := planSchema(t)
	batch := inference.Batch{
		mustRecord(t, s, map[string]any{"plan": "basic", "monthly_fee": 20.0}),
		mustRecord(t, s, map[string]any{"plan": "premium", "monthly_fee": 10.0}),
		mustRecord(t, s, map[string]any{"plan": "family", "monthly_fee": 10.0}),
	}
	proba, err := clf.PredictProba(context.Background(), batch)
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	wantP := []float64{sigmoid(2.5), sigmoid(-0.5), sigmoid(0)}
	for i, row := range proba {
		if len(row) != 2 {
			t.Fatalf("row %d: expected two class columns, got %d", i, len(row))
		}
		if math.Abs(row[1]-wantP[i]) > 1e-12 || math.Abs(row[0]+row[1]-1) > 1e-12 {
			t.Fatalf("row %d: expected churn probability %v, got %v", i, wantP[i], row)
		}
	}

	labels, err := clf.Predict(context.Background(), batch)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := []inference.Label{inference.LabelChurn, inference.LabelNoChurn, inference.LabelChurn}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestLogisticArtifactRejectsMissingColumn(t *testing.T) {
	clf, err := inference.DecodeArtifact([]byte(`{"kind":"logistic","numeric":{"tenure":{"weight":1}}}`))
	if err != nil {
		t.Fatalf("DecodeArtifact: %v", err)
	}
	rec := mustRecord(t, planSchema(t), map[string]any{"plan": "basic", "monthly_fee": 1.0})

	_, err = inference.NewInvoker(clf).Invoke(context.Background(), rec)
	var predErr *inference.PredictionError
	if !errors.As(err, &predErr) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
	if !strings.Contains(err.Error(), `missing column "tenure"`) {
		t.Fatalf("expected missing column message, got %q", err.Error())
	}
}

func TestTreeArtifact(t *testing.T) {
	clf, err := inference.LoadArtifact("testdata/tree.json")
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	thresholder, ok := clf.(inference.Thresholder)
	if !ok || thresholder.DecisionThreshold() != 0.6 {
		t.Fatalf("expected declared threshold 0.6")
	}

	s := planSchema(t)
	inv := inference.NewInvoker(clf)
	cases := []struct {
		values map[string]any
		want   inference.Result
	}{
		{values: map[string]any{"plan": "premium", "monthly_fee": 30.0}, want: inference.Result{Label: inference.LabelNoChurn, Probability: 0.12}},
		{values: map[string]any{"plan": "basic", "monthly_fee": 10.0}, want: inference.Result{Label: inference.LabelNoChurn, Probability: 0.4}},
		{values: map[string]any{"plan": "basic", "monthly_fee": 10.5}, want: inference.Result{Label: inference.LabelChurn, Probability: 0.87}},
	}
	for _, tc := range cases {
		got, err := inv.Invoke(context.Background(), mustRecord(t, s, tc.values))
		if err != nil {
			t.Fatalf("Invoke(%v): %v", tc.values, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("Invoke(%v) mismatch (-want +got):\n%s", tc.values, diff)
		}
	}
}

func TestRemoteArtifact(t *testing.T) {
	requests := make(chan []map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body struct {
			Instances []map[string]any `json:"instances"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		select {
		case requests <- body.Instances:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"labels":[1],"probabilities":[[0.13,0.87]]}`))
	}))
	defer srv.Close()

	clf, err := inference.DecodeArtifact([]byte(`{"kind":"remote","name":"scorer","endpoint":"` + srv.URL + `","timeout":"2s"}`))
	if err != nil {
		t.Fatalf("DecodeArtifact: %v", err)
	}
	rec := mustRecord(t, planSchema(t), map[string]any{"plan": "basic", "monthly_fee": 5.0})
	result, err := inference.NewInvoker(clf).Invoke(context.Background(), rec)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff(inference.Result{Label: inference.LabelChurn, Probability: 0.87}, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	want := []map[string]any{{"plan": "basic", "monthly_fee": 5.0}}
	if diff := cmp.Diff(want, <-requests); diff != "" {
		t.Fatalf("request instances mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoteArtifactStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clf, err := inference.NewRemote(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	rec := mustRecord(t, planSchema(t), map[string]any{"plan": "basic", "monthly_fee": 5.0})
	_, err = inference.NewInvoker(clf).Invoke(context.Background(), rec)
	if err == nil || !strings.Contains(err.Error(), "status=503: model offline") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDecodeArtifactErrors(t *testing.T) {
	cases := map[string]string{
		"empty":              ``,
		"invalid json":       `{"kind":`,
		"missing kind":       `{"intercept":1}`,
		"unsupported kind":   `{"kind":"pickle"}`,
		"threshold range":    `{"kind":"logistic","threshold":1.5,"numeric":{"a":{"weight":1}}}`,
		"logistic no terms":  `{"kind":"logistic","intercept":0.3}`,
		"logistic neg scale": `{"kind":"logistic","numeric":{"a":{"weight":1,"scale":-1}}}`,
		"tree empty":         `{"kind":"tree","nodes":[]}`,
		"tree backward edge": `{"kind":"tree","nodes":[{"feature":"a","threshold":1,"left":0,"right":1},{"leaf":true}]}`,
		"tree both splits":   `{"kind":"tree","nodes":[{"feature":"a","threshold":1,"equals":"x","left":1,"right":2},{"leaf":true},{"leaf":true}]}`,
		"tree leaf range":    `{"kind":"tree","nodes":[{"leaf":true,"probability":2}]}`,
		"remote no endpoint": `{"kind":"remote"}`,
		"remote bad scheme":  `{"kind":"remote","endpoint":"ftp://models.local/score"}`,
		"remote bad timeout": `{"kind":"remote","endpoint":"http://models.local/score","timeout":"soon"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := inference.DecodeArtifact([]byte(payload)); err == nil {
				t.Fatalf("expected error for %s", payload)
			}
		})
	}
}

func TestLoadArtifactFS(t *testing.T) {
	fsys := fstest.MapFS{
		"models/tree.json": {Data: []byte(`{"kind":"tree","nodes":[{"leaf":true,"probability":0.3}]}`)},
	}
	if _, err := inference.LoadArtifactFS(fsys, "models/tree.json"); err != nil {
		t.Fatalf("LoadArtifactFS: %v", err)
	}
	_, err := inference.LoadArtifactFS(fsys, "models/missing.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := inference.LoadArtifact("testdata/nope.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist from disk, got %v", err)
	}
}

func TestDecisionThresholdOverride(t *testing.T) {
	clf, err := inference.LoadArtifact("testdata/tree.json")
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	wrapped := inference.WithDecisionThreshold(clf, 0.3)

	if got := wrapped.(inference.Thresholder).DecisionThreshold(); got != 0.3 {
		t.Fatalf("expected threshold 0.3, got %v", got)
	}
	if info := wrapped.(inference.Describer).Describe(); info.Name != "churn-tree" {
		t.Fatalf("expected artifact info to pass through, got %+v", info)
	}
	if diff := cmp.Diff([]string{"monthly_fee", "plan"}, wrapped.(inference.FeatureLister).Features()); diff != "" {
		t.Fatalf("features mismatch (-want +got):\n%s", diff)
	}

	rec := mustRecord(t, planSchema(t), map[string]any{"plan": "basic", "monthly_fee": 10.0})
	got, err := inference.NewInvoker(wrapped).Invoke(context.Background(), rec)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := inference.Result{Label: inference.LabelChurn, Probability: 0.4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Invoke mismatch (-want +got):\n%s", diff)
	}

	if same := inference.WithDecisionThreshold(clf, 1); same != clf {
		t.Fatalf("expected out of range threshold to keep the classifier")
	}
}

func TestRemoteScoresOncePerInvoke(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// The endpoint drifts across the threshold between calls.
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"labels":[0],"probabilities":[[0.51,0.49]]}`))
			return
		}
		_, _ = w.Write([]byte(`{"labels":[1],"probabilities":[[0.49,0.51]]}`))
	}))
	defer srv.Close()

	clf, err := inference.DecodeArtifact([]byte(`{"kind":"remote","endpoint":"` + srv.URL + `"}`))
	if err != nil {
		t.Fatalf("DecodeArtifact: %v", err)
	}
	rec := mustRecord(t, planSchema(t), map[string]any{"plan": "basic", "monthly_fee": 5.0})

	result, err := inference.NewInvoker(clf).Invoke(context.Background(), rec)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diff := cmp.Diff(inference.Result{Label: inference.LabelNoChurn, Probability: 0.49}, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one request per Invoke, got %d", got)
	}

	wrapped := inference.WithDecisionThreshold(clf, 0.4)
	result, err = inference.NewInvoker(wrapped).Invoke(context.Background(), rec)
	if err != nil {
		t.Fatalf("Invoke with threshold override: %v", err)
	}
	if result.Label != inference.LabelChurn || result.Probability != 0.51 {
		t.Fatalf("unexpected relabelled result %+v", result)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected one request for the relabelled Invoke, got %d total", got)
	}
}
