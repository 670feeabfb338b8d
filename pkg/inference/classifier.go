package inference

import (
	"context"
	"errors"
	"fmt"
)

// Label is the binary churn outcome.
type Label int

const (
	LabelNoChurn Label = 0
	LabelChurn   Label = 1
)

func (l Label) String() string {
	switch l {
	case LabelChurn:
		return "churn"
	case LabelNoChurn:
		return "no_churn"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of the two known labels.
func (l Label) Valid() bool {
	return l == LabelNoChurn || l == LabelChurn
}

// DefaultThreshold is the decision threshold assumed when a classifier does
// not declare its own.
const DefaultThreshold = 0.5

// Classifier is the inference boundary. Both calls receive the same batch
// and return one row per record; PredictProba rows hold class probabilities
// with the churn class at index 1.
type Classifier interface {
	Predict(ctx context.Context, batch Batch) ([]Label, error)
	PredictProba(ctx context.Context, batch Batch) ([][]float64, error)
}

// Thresholder is implemented by classifiers that use a decision threshold
// other than DefaultThreshold.
type Thresholder interface {
	DecisionThreshold() float64
}

// Scorer is implemented by classifiers that produce labels and probabilities
// from one evaluation. The invoker prefers it over separate Predict and
// PredictProba calls so both come from the same answer.
type Scorer interface {
	Score(ctx context.Context, batch Batch) ([]Label, [][]float64, error)
}

// FeatureLister is implemented by classifiers that know which record columns
// they read.
type FeatureLister interface {
	Features() []string
}

// Funcs adapts plain functions to the Classifier interface.
type Funcs struct {
	PredictFunc func(ctx context.Context, batch Batch) ([]Label, error)
	ProbaFunc   func(ctx context.Context, batch Batch) ([][]float64, error)
}

var errFuncMissing = errors.New("inference: classifier function not configured")

func (f Funcs) Predict(ctx context.Context, batch Batch) ([]Label, error) {
	if f.PredictFunc == nil {
		return nil, errFuncMissing
	}
	return f.PredictFunc(ctx, batch)
}

func (f Funcs) PredictProba(ctx context.Context, batch Batch) ([][]float64, error) {
	if f.ProbaFunc == nil {
		return nil, errFuncMissing
	}
	return f.ProbaFunc(ctx, batch)
}

// Static returns a classifier that always answers with label and the churn
// probability p. It is mostly useful for demos and tests.
func Static(label Label, p float64) Classifier {
	return Funcs{
		PredictFunc: func(_ context.Context, batch Batch) ([]Label, error) {
			out := make([]Label, len(batch))
			for i := range out {
				out[i] = label
			}
			return out, nil
		},
		ProbaFunc: func(_ context.Context, batch Batch) ([][]float64, error) {
			out := make([][]float64, len(batch))
			for i := range out {
				out[i] = []float64{1 - p, p}
			}
			return out, nil
		},
	}
}

// WithDecisionThreshold wraps clf so its labels come from its own churn
// probabilities cut at threshold. Describer and FeatureLister pass through.
// Out of range thresholds return clf unchanged.
func WithDecisionThreshold(clf Classifier, threshold float64) Classifier {
	if clf == nil || threshold <= 0 || threshold >= 1 {
		return clf
	}
	return rethresholded{inner: clf, threshold: threshold}
}

type rethresholded struct {
	inner     Classifier
	threshold float64
}

func (r rethresholded) Predict(ctx context.Context, batch Batch) ([]Label, error) {
	labels, _, err := r.Score(ctx, batch)
	return labels, err
}

// Score evaluates the inner classifier once and relabels its probabilities.
func (r rethresholded) Score(ctx context.Context, batch Batch) ([]Label, [][]float64, error) {
	var (
		proba [][]float64
		err   error
	)
	if scorer, ok := r.inner.(Scorer); ok {
		_, proba, err = scorer.Score(ctx, batch)
	} else {
		proba, err = r.inner.PredictProba(ctx, batch)
	}
	if err != nil {
		return nil, nil, err
	}
	labels := make([]Label, len(proba))
	for i, row := range proba {
		if len(row) < 2 {
			return nil, nil, fmt.Errorf("%w: row %d has %d class columns", ErrShapeMismatch, i, len(row))
		}
		labels[i] = labelFor(row[1], r.threshold)
	}
	return labels, proba, nil
}

func (r rethresholded) PredictProba(ctx context.Context, batch Batch) ([][]float64, error) {
	return r.inner.PredictProba(ctx, batch)
}

func (r rethresholded) DecisionThreshold() float64 { return r.threshold }

func (r rethresholded) Describe() ModelInfo {
	if d, ok := r.inner.(Describer); ok {
		return d.Describe()
	}
	return ModelInfo{}
}

func (r rethresholded) Features() []string {
	if f, ok := r.inner.(FeatureLister); ok {
		return f.Features()
	}
	return nil
}

// labelFor applies threshold to a churn probability.
func labelFor(p, threshold float64) Label {
	if p >= threshold {
		return LabelChurn
	}
	return LabelNoChurn
}
