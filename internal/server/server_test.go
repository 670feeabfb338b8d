package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/renderers/vanilla"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/schema"
	"github.com/goliatone/go-churnform/pkg/testsupport"
)

func planSchema(t *testing.T) *schema.Schema {
	t.Helper()
	zero := 0.0
	s, err := schema.New(
		schema.Field{Name: "plan", Kind: schema.FieldKindCategorical, Options: []string{"basic", "premium"}},
		schema.Field{Name: "monthly_fee", Kind: schema.FieldKindNumeric, Min: &zero, Default: 9.99},
	)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return s
}

func newTestServer(t *testing.T, source orchestrator.ResourceSource) *httptest.Server {
	t.Helper()
	sessions, err := NewSessionStore(8)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	orch := orchestrator.New(orchestrator.WithResources(source))
	srv := New(orch, sessions, WithAssets(vanilla.AssetsFS()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func staticSource(t *testing.T, model inference.Classifier) orchestrator.ResourceSource {
	t.Helper()
	return resources.Static(&resources.Resources{Model: model, Schema: planSchema(t)})
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestFormPage(t *testing.T) {
	ts := newTestServer(t, staticSource(t, inference.Static(inference.LabelNoChurn, 0.12)))
	resp, err := newClient(t).Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "<form") || strings.Count(body, "<select ") != 1 || strings.Count(body, `type="number"`) != 1 {
		t.Fatalf("unexpected form markup\n%s", body)
	}
	var found bool
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "churnform_session" && cookie.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("session cookie not set")
	}
}

func TestPredictFlowKeepsSessionState(t *testing.T) {
	ts := newTestServer(t, staticSource(t, inference.Static(inference.LabelChurn, 0.87)))
	client := newClient(t)
	if resp, err := client.Get(ts.URL + "/"); err != nil {
		t.Fatalf("GET /: %v", err)
	} else {
		readBody(t, resp)
	}

	resp, err := client.PostForm(ts.URL+"/predict", url.Values{"plan": {"premium"}, "monthly_fee": {"-3"}})
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d\n%s", resp.StatusCode, body)
	}
	for _, want := range []string{"High Risk: churn predicted", "87.00%", `<option value="premium" selected>`, `value="0"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q\n%s", want, body)
		}
	}

	again, err := client.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	page := readBody(t, again)
	if !strings.Contains(page, `<option value="premium" selected>`) {
		t.Fatalf("session state lost between requests\n%s", page)
	}
	if strings.Contains(page, "High Risk") {
		t.Fatalf("plain render must not show a verdict\n%s", page)
	}

	fresh, err := newClient(t).Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	if strings.Contains(readBody(t, fresh), `<option value="premium" selected>`) {
		t.Fatalf("state leaked across sessions")
	}
}

func TestPredictFailureIsInline(t *testing.T) {
	model := inference.Funcs{PredictFunc: func(context.Context, inference.Batch) ([]inference.Label, error) {
		return nil, errors.New("backend down")
	}}
	ts := newTestServer(t, staticSource(t, model))
	resp, err := newClient(t).PostForm(ts.URL+"/predict", url.Values{"plan": {"premium"}, "monthly_fee": {"20"}})
	if err != nil {
		t.Fatalf("POST /predict: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Prediction Error:") || !strings.Contains(body, `value="20"`) {
		t.Fatalf("expected inline error with retained values\n%s", body)
	}
}

func TestDiagnosticOnLoadFailure(t *testing.T) {
	loader := resources.NewLoader(
		resources.WithModelPath(filepath.Join(t.TempDir(), "missing.json")),
		resources.WithSchemaPath("columns.json"),
	)
	ts := newTestServer(t, loader)

	resp, err := newClient(t).Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if strings.Contains(body, "<form") || !strings.Contains(body, "The predictor could not start") {
		t.Fatalf("expected diagnostic page only\n%s", body)
	}

	api, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"record":{}}`))
	if err != nil {
		t.Fatalf("POST /api/predict: %v", err)
	}
	readBody(t, api)
	if api.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", api.StatusCode)
	}
}

func TestAPIPredict(t *testing.T) {
	ts := newTestServer(t, staticSource(t, inference.Static(inference.LabelNoChurn, 0.12)))

	resp, err := http.Post(ts.URL+"/api/predict", "application/json", bytes.NewBufferString(`{"record":{"plan":"premium","monthly_fee":15}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	want := map[string]any{
		"label":        0.0,
		"state":        "no_churn",
		"headline":     "Safe: no churn predicted",
		"advisory":     "This customer is likely to STAY.",
		"probability":  0.12,
		"percent":      "12.00%",
		"metric_label": "Churn Probability",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	bad, err := http.Post(ts.URL+"/api/predict", "application/json", strings.NewReader(`{"record":{"plan":"gold","monthly_fee":1}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	readBody(t, bad)
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}

func TestAPISchemaAndOpenAPI(t *testing.T) {
	ts := newTestServer(t, staticSource(t, inference.Static(inference.LabelNoChurn, 0.12)))

	resp, err := http.Get(ts.URL + "/api/schema")
	if err != nil {
		t.Fatalf("GET schema: %v", err)
	}
	var fields []schema.Field
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(fields) != 2 || fields[0].Name != "plan" || fields[1].Name != "monthly_fee" {
		t.Fatalf("unexpected fields %+v", fields)
	}

	doc, err := http.Get(ts.URL + "/openapi.json")
	if err != nil {
		t.Fatalf("GET openapi: %v", err)
	}
	body := readBody(t, doc)
	if !strings.Contains(body, `"/api/predict"`) || !strings.Contains(body, `"predictChurn"`) {
		t.Fatalf("unexpected document %s", body)
	}
}

func TestHealthzAndAssets(t *testing.T) {
	ts := newTestServer(t, staticSource(t, inference.Static(inference.LabelNoChurn, 0.12)))
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	if body := readBody(t, resp); body != "ok" {
		t.Fatalf("unexpected healthz body %q", body)
	}
	css, err := http.Get(ts.URL + "/assets/" + vanilla.StylesheetName)
	if err != nil {
		t.Fatalf("GET css: %v", err)
	}
	readBody(t, css)
	if css.StatusCode != http.StatusOK {
		t.Fatalf("stylesheet not served: %d", css.StatusCode)
	}
}

func TestHealthObserver(t *testing.T) {
	h := NewHealth()
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before load, got %v", got)
	}

	observe := HealthObserver(h)
	observe(&resources.Resources{}, nil)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	observe(nil, errors.New("boom"))
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestSessionStoreEvicts(t *testing.T) {
	store, err := NewSessionStore(1)
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	first, created, err := store.Get("")
	if err != nil || !created {
		t.Fatalf("expected new session, got %v %v", created, err)
	}
	same, created, _ := store.Get(first.ID)
	if created || same != first {
		t.Fatalf("expected existing session")
	}
	if _, _, err := store.Get(""); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected bounded store, got %d", store.Len())
	}
	again, created, _ := store.Get(first.ID)
	if !created || again.ID == first.ID {
		t.Fatalf("evicted session must start over")
	}
	if _, err := NewSessionStore(0); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}

func TestNetflixFixturesOverHTTP(t *testing.T) {
	ts := newTestServer(t, testsupport.NetflixLoader())
	client := newClient(t)

	cases := []struct {
		name     string
		values   map[string]any
		state    string
		headline string
	}{
		{name: "loyal", values: testsupport.LoyalCustomer(), state: `data-state="no_churn"`, headline: "Safe: no churn predicted"},
		{name: "disengaged", values: testsupport.DisengagedCustomer(), state: `data-state="churn"`, headline: "High Risk: churn predicted"},
	}
	for _, tc := range cases {
		form := url.Values{}
		for name, value := range testsupport.FormValues(tc.values) {
			form.Set(name, value)
		}
		resp, err := client.PostForm(ts.URL+"/predict", form)
		if err != nil {
			t.Fatalf("%s: POST /predict: %v", tc.name, err)
		}
		body := readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: unexpected status %d\n%s", tc.name, resp.StatusCode, body)
		}
		if !strings.Contains(body, tc.state) || !strings.Contains(body, tc.headline) {
			t.Fatalf("%s: expected %s verdict\n%s", tc.name, tc.state, body)
		}
	}
}
