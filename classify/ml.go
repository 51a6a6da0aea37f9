package classify

import (
	"encoding/json"
	"os"

	"github.com/smoothtask/smoothtaskd/model"
)

// Prediction is the output of an ML classifier's inference for one process.
type Prediction struct {
	ProcessType model.ProcessType
	Confidence  float64
}

// Model is the ML classifier capability. Predict never errors: an
// unavailable or misconfigured model should be represented by StubModel,
// not a runtime failure mid-tick.
type Model interface {
	Predict(fv FeatureVector) Prediction
}

// StubModel always returns "no prediction" — used for tests and when ML
// classification is disabled in configuration.
type StubModel struct{}

// Predict always returns zero confidence.
func (StubModel) Predict(FeatureVector) Prediction {
	return Prediction{ProcessType: model.TypeUnknown, Confidence: 0}
}

// treeNode is one node of a CatBoost-style decision tree: either a leaf
// with a class/confidence pair, or a split on one feature index.
type treeNode struct {
	Leaf        bool     `json:"leaf"`
	ProcessType string   `json:"process_type,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	FeatureIdx  int      `json:"feature_idx,omitempty"`
	Threshold   float64  `json:"threshold,omitempty"`
	Left        *treeNode `json:"left,omitempty"`
	Right       *treeNode `json:"right,omitempty"`
}

// TreeModel is a simple offline-trained decision tree loaded from a JSON
// file — standing in for a CatBoost export without requiring a CGo
// inference library in this module's dependency set.
type TreeModel struct {
	Root *treeNode `json:"root"`
}

// LoadTreeModel reads and parses a tree model JSON file.
func LoadTreeModel(path string) (*TreeModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m TreeModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Predict walks the tree using the feature vector's flattened values.
func (m *TreeModel) Predict(fv FeatureVector) Prediction {
	if m == nil || m.Root == nil {
		return Prediction{ProcessType: model.TypeUnknown, Confidence: 0}
	}
	values := fv.flatten()
	node := m.Root
	for !node.Leaf {
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(values) {
			return Prediction{ProcessType: model.TypeUnknown, Confidence: 0}
		}
		if values[node.FeatureIdx] <= node.Threshold {
			if node.Left == nil {
				break
			}
			node = node.Left
		} else {
			if node.Right == nil {
				break
			}
			node = node.Right
		}
	}
	pt, ok := parseProcessType(node.ProcessType)
	if !ok {
		return Prediction{ProcessType: model.TypeUnknown, Confidence: 0}
	}
	return Prediction{ProcessType: pt, Confidence: sanitize(node.Confidence)}
}

// flatten lays the feature vector out as a stable-order slice for tree
// threshold comparisons.
func (fv FeatureVector) flatten() []float64 {
	out := make([]float64, 0, 12+len(fv.StateOneHot))
	out = append(out,
		fv.CPUShare1s, fv.CPUShare10s, fv.ReadBytesPerSec, fv.WriteBytesPerSec,
		fv.CtxSwitchRate, fv.RSSMebibytes, fv.Nice, fv.HasGUIWindow,
		fv.HasActiveStream, fv.EnvHasDisplay, fv.EnvHasWayland, fv.EnvSSH,
	)
	out = append(out, fv.StateOneHot[:]...)
	return out
}
