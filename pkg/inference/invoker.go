package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Result is the outcome of one inference call.
type Result struct {
	Label       Label   `json:"label"`
	Probability float64 `json:"probability"`
}

// Stage identifies where a prediction failed.
type Stage string

const (
	StagePredict     Stage = "predict"
	StagePredictProb Stage = "predict_proba"
	StageValidate    Stage = "validate"
)

// PredictionError reports a failed inference call. It is recoverable: callers
// surface it next to the form and keep the entered values.
type PredictionError struct {
	Stage Stage
	Err   error
}

func (e *PredictionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("prediction error (%s): %v", e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	// ErrShapeMismatch signals a classifier answer that does not match the
	// submitted single-row batch.
	ErrShapeMismatch = errors.New("inference: classifier output shape mismatch")
	// ErrInconsistentResult signals a label that disagrees with the churn
	// probability under the decision threshold.
	ErrInconsistentResult = errors.New("inference: label disagrees with probability")
	errClassifierMissing  = errors.New("inference: classifier is nil")
	errContextMissing     = errors.New("inference: context is required")
)

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithThreshold overrides the decision threshold used for the consistency
// check.
func WithThreshold(threshold float64) InvokerOption {
	return func(inv *Invoker) {
		if threshold > 0 && threshold < 1 {
			inv.threshold = threshold
		}
	}
}

// Invoker routes one Record through a Classifier.
type Invoker struct {
	classifier Classifier
	threshold  float64
}

// NewInvoker wraps clf. The threshold defaults to the classifier's own
// (Thresholder) or DefaultThreshold.
func NewInvoker(clf Classifier, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		classifier: clf,
		threshold:  DefaultThreshold,
	}
	if t, ok := clf.(Thresholder); ok {
		if value := t.DecisionThreshold(); value > 0 && value < 1 {
			inv.threshold = value
		}
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(inv)
	}
	return inv
}

// Threshold reports the decision threshold in use.
func (inv *Invoker) Threshold() float64 {
	return inv.threshold
}

// Invoke submits rec as a single-row batch and reads back the label and the
// churn probability. Every failure, including a panic inside the classifier,
// is returned as *PredictionError.
func (inv *Invoker) Invoke(ctx context.Context, rec Record) (result Result, err error) {
	if inv == nil || inv.classifier == nil {
		return Result{}, &PredictionError{Stage: StagePredict, Err: errClassifierMissing}
	}
	if ctx == nil {
		return Result{}, &PredictionError{Stage: StagePredict, Err: errContextMissing}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &PredictionError{Stage: StagePredict, Err: err}
	}

	stage := StagePredict
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PredictionError{Stage: stage, Err: fmt.Errorf("classifier panic: %v", recovered)}
			result = Result{}
		}
	}()

	batch := Batch{rec}

	var (
		labels []Label
		proba  [][]float64
	)
	scorer, scored := inv.classifier.(Scorer)
	if scored {
		labels, proba, err = scorer.Score(ctx, batch)
		if err != nil {
			return Result{}, &PredictionError{Stage: StagePredict, Err: err}
		}
	} else {
		labels, err = inv.classifier.Predict(ctx, batch)
		if err != nil {
			return Result{}, &PredictionError{Stage: StagePredict, Err: err}
		}
	}
	if len(labels) != 1 {
		return Result{}, &PredictionError{Stage: StagePredict, Err: fmt.Errorf("%w: %d labels for 1 row", ErrShapeMismatch, len(labels))}
	}

	stage = StagePredictProb
	if !scored {
		proba, err = inv.classifier.PredictProba(ctx, batch)
		if err != nil {
			return Result{}, &PredictionError{Stage: StagePredictProb, Err: err}
		}
	}
	if len(proba) != 1 {
		return Result{}, &PredictionError{Stage: StagePredictProb, Err: fmt.Errorf("%w: %d probability rows for 1 row", ErrShapeMismatch, len(proba))}
	}
	if len(proba[0]) < 2 {
		return Result{}, &PredictionError{Stage: StagePredictProb, Err: fmt.Errorf("%w: %d class columns, need 2", ErrShapeMismatch, len(proba[0]))}
	}

	stage = StageValidate
	label, p := labels[0], proba[0][1]
	if !label.Valid() {
		return Result{}, &PredictionError{Stage: StageValidate, Err: fmt.Errorf("inference: unknown label %d", label)}
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return Result{}, &PredictionError{Stage: StageValidate, Err: fmt.Errorf("inference: churn probability %v outside [0,1]", p)}
	}
	if labelFor(p, inv.threshold) != label {
		return Result{}, &PredictionError{Stage: StageValidate, Err: fmt.Errorf("%w: label %s, probability %.4f, threshold %.2f", ErrInconsistentResult, label, p, inv.threshold)}
	}

	return Result{Label: label, Probability: p}, nil
}
