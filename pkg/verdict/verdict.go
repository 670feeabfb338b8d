package verdict

import (
	"strconv"

	"github.com/goliatone/go-churnform/pkg/inference"
)

// State is one of the two mutually exclusive verdicts.
type State string

const (
	StateChurn   State = "churn"
	StateNoChurn State = "no_churn"
)

// MetricLabel names the probability figure shown next to the verdict.
const MetricLabel = "Churn Probability"

// Verdict is the display form of an inference.Result. It is recomputed on
// every submission.
type Verdict struct {
	State       State   `json:"state"`
	Headline    string  `json:"headline"`
	Advisory    string  `json:"advisory"`
	Probability float64 `json:"probability"`
	Percent     string  `json:"percent"`
	MetricLabel string  `json:"metric_label"`
}

// Churn reports whether the verdict predicts churn.
func (v Verdict) Churn() bool {
	return v.State == StateChurn
}

// Present maps a result to its verdict. Only the label selects the state;
// the probability is reported as is.
func Present(result inference.Result) Verdict {
	v := Verdict{
		Probability: result.Probability,
		Percent:     FormatPercent(result.Probability),
		MetricLabel: MetricLabel,
	}
	if result.Label == inference.LabelChurn {
		v.State = StateChurn
		v.Headline = "High Risk: churn predicted"
		v.Advisory = "This customer is likely to CHURN and cancel their subscription."
		return v
	}
	v.State = StateNoChurn
	v.Headline = "Safe: no churn predicted"
	v.Advisory = "This customer is likely to STAY."
	return v
}

// FormatPercent renders p (a fraction) as a percentage with two decimals:
// 0.12 becomes "12.00%".
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}
