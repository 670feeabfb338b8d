package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/goliatone/go-churnform/pkg/schema"
)

// NumericTerm standardizes a numeric column before weighting it:
// weight * (x - mean) / scale.
type NumericTerm struct {
	Weight float64 `json:"weight"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// Logistic is a one-hot + standard-scaler + logistic regression pipeline.
// Category values missing from the weight table contribute nothing.
type Logistic struct {
	info        ModelInfo
	threshold   float64
	Intercept   float64                       `json:"intercept"`
	Numeric     map[string]NumericTerm        `json:"numeric"`
	Categorical map[string]map[string]float64 `json:"categorical"`
}

func decodeLogistic(env envelope, data []byte) (*Logistic, error) {
	threshold, err := env.threshold()
	if err != nil {
		return nil, err
	}
	var model Logistic
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("inference: decode logistic artifact: %w", err)
	}
	if len(model.Numeric) == 0 && len(model.Categorical) == 0 {
		return nil, fmt.Errorf("inference: logistic artifact has no terms")
	}
	for name, term := range model.Numeric {
		if math.IsNaN(term.Weight) || math.IsInf(term.Weight, 0) {
			return nil, fmt.Errorf("inference: logistic weight for %q is not finite", name)
		}
		if term.Scale < 0 {
			return nil, fmt.Errorf("inference: logistic scale for %q is negative", name)
		}
	}
	model.info = env.info()
	model.threshold = threshold
	return &model, nil
}

// Describe implements Describer.
func (m *Logistic) Describe() ModelInfo {
	return m.info
}

// DecisionThreshold implements Thresholder.
func (m *Logistic) DecisionThreshold() float64 {
	return m.threshold
}

// Features lists the columns the model reads, sorted.
func (m *Logistic) Features() []string {
	names := make([]string, 0, len(m.Numeric)+len(m.Categorical))
	for name := range m.Numeric {
		names = append(names, name)
	}
	for name := range m.Categorical {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Predict implements Classifier.
func (m *Logistic) Predict(ctx context.Context, batch Batch) ([]Label, error) {
	proba, err := m.PredictProba(ctx, batch)
	if err != nil {
		return nil, err
	}
	labels := make([]Label, len(proba))
	for i, row := range proba {
		labels[i] = labelFor(row[1], m.threshold)
	}
	return labels, nil
}

// PredictProba implements Classifier.
func (m *Logistic) PredictProba(ctx context.Context, batch Batch) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(batch))
	for i, rec := range batch {
		z, err := m.score(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		p := sigmoid(z)
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// score sums terms in record order so repeated calls are bit-for-bit equal.
func (m *Logistic) score(rec Record) (float64, error) {
	for _, name := range m.Features() {
		if _, ok := rec.Get(name); !ok {
			return 0, fmt.Errorf("inference: missing column %q", name)
		}
	}

	z := m.Intercept
	for _, entry := range rec.entries {
		if term, ok := m.Numeric[entry.Name]; ok {
			if entry.Kind != schema.FieldKindNumeric {
				return 0, fmt.Errorf("inference: column %q must be numeric", entry.Name)
			}
			scale := term.Scale
			if scale == 0 {
				scale = 1
			}
			z += term.Weight * (entry.Number - term.Mean) / scale
		}
		if weights, ok := m.Categorical[entry.Name]; ok {
			if entry.Kind != schema.FieldKindCategorical {
				return 0, fmt.Errorf("inference: column %q must be categorical", entry.Name)
			}
			z += weights[entry.Text]
		}
	}
	return z, nil
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }
