package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/goliatone/go-churnform/pkg/schema"
)

// TreeNode is one entry of a flattened decision tree. Split nodes route to
// Left when the condition holds: numeric value <= Threshold, or categorical
// value == Equals. Leaves carry the churn probability.
type TreeNode struct {
	Feature     string   `json:"feature,omitempty"`
	Threshold   *float64 `json:"threshold,omitempty"`
	Equals      *string  `json:"equals,omitempty"`
	Left        int      `json:"left,omitempty"`
	Right       int      `json:"right,omitempty"`
	Leaf        bool     `json:"leaf,omitempty"`
	Probability float64  `json:"probability,omitempty"`
}

// Tree is a decision tree classifier over raw record values.
type Tree struct {
	info      ModelInfo
	threshold float64
	nodes     []TreeNode
}

var errTreeEmpty = errors.New("inference: tree artifact has no nodes")

func decodeTree(env envelope, data []byte) (*Tree, error) {
	threshold, err := env.threshold()
	if err != nil {
		return nil, err
	}
	var payload struct {
		Nodes []TreeNode `json:"nodes"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("inference: decode tree artifact: %w", err)
	}
	tree, err := NewTree(payload.Nodes, threshold)
	if err != nil {
		return nil, err
	}
	tree.info = env.info()
	return tree, nil
}

// NewTree validates nodes (root at index 0) and returns a Tree.
func NewTree(nodes []TreeNode, threshold float64) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, errTreeEmpty
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	for idx, node := range nodes {
		if node.Leaf {
			if node.Probability < 0 || node.Probability > 1 {
				return nil, fmt.Errorf("inference: tree leaf %d probability %v outside [0,1]", idx, node.Probability)
			}
			continue
		}
		if node.Feature == "" {
			return nil, fmt.Errorf("inference: tree node %d has no feature", idx)
		}
		if (node.Threshold == nil) == (node.Equals == nil) {
			return nil, fmt.Errorf("inference: tree node %d needs exactly one of threshold or equals", idx)
		}
		for _, child := range []int{node.Left, node.Right} {
			if child <= idx || child >= len(nodes) {
				return nil, fmt.Errorf("inference: tree node %d has invalid child %d", idx, child)
			}
		}
	}
	return &Tree{
		threshold: threshold,
		nodes:     append([]TreeNode(nil), nodes...),
	}, nil
}

// Describe implements Describer.
func (t *Tree) Describe() ModelInfo {
	return t.info
}

// DecisionThreshold implements Thresholder.
func (t *Tree) DecisionThreshold() float64 {
	return t.threshold
}

// Features lists the columns referenced by split nodes, sorted.
func (t *Tree) Features() []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, node := range t.nodes {
		if node.Leaf {
			continue
		}
		if _, ok := seen[node.Feature]; ok {
			continue
		}
		seen[node.Feature] = struct{}{}
		names = append(names, node.Feature)
	}
	sort.Strings(names)
	return names
}

// Predict implements Classifier.
func (t *Tree) Predict(ctx context.Context, batch Batch) ([]Label, error) {
	proba, err := t.PredictProba(ctx, batch)
	if err != nil {
		return nil, err
	}
	labels := make([]Label, len(proba))
	for i, row := range proba {
		labels[i] = labelFor(row[1], t.threshold)
	}
	return labels, nil
}

// PredictProba implements Classifier.
func (t *Tree) PredictProba(ctx context.Context, batch Batch) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(batch))
	for i, rec := range batch {
		p, err := t.walk(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = []float64{1 - p, p}
	}
	return out, nil
}

// walk descends from the root. Children always sit at higher indices, so the
// loop terminates.
func (t *Tree) walk(rec Record) (float64, error) {
	idx := 0
	for {
		node := t.nodes[idx]
		if node.Leaf {
			return node.Probability, nil
		}
		entry, ok := rec.Get(node.Feature)
		if !ok {
			return 0, fmt.Errorf("inference: missing column %q", node.Feature)
		}
		var goLeft bool
		switch {
		case node.Threshold != nil:
			if entry.Kind != schema.FieldKindNumeric {
				return 0, fmt.Errorf("inference: column %q must be numeric", node.Feature)
			}
			goLeft = entry.Number <= *node.Threshold
		default:
			if entry.Kind != schema.FieldKindCategorical {
				return 0, fmt.Errorf("inference: column %q must be categorical", node.Feature)
			}
			goLeft = entry.Text == *node.Equals
		}
		if goLeft {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}
