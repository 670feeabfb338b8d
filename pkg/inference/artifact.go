package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Artifact kinds understood by DecodeArtifact.
const (
	KindLogistic = "logistic"
	KindTree     = "tree"
	KindRemote   = "remote"
)

// ModelInfo describes a loaded artifact.
type ModelInfo struct {
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Describer is implemented by classifiers that can report artifact metadata.
type Describer interface {
	Describe() ModelInfo
}

type envelope struct {
	Kind      string   `json:"kind"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Threshold *float64 `json:"threshold"`
}

func (e envelope) info() ModelInfo {
	return ModelInfo{Kind: e.Kind, Name: e.Name, Version: e.Version}
}

func (e envelope) threshold() (float64, error) {
	if e.Threshold == nil {
		return DefaultThreshold, nil
	}
	t := *e.Threshold
	if t <= 0 || t >= 1 {
		return 0, fmt.Errorf("inference: threshold %v must be inside (0,1)", t)
	}
	return t, nil
}

// LoadArtifact reads a serialized model from disk.
func LoadArtifact(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read artifact %s: %w", path, err)
	}
	clf, err := DecodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return clf, nil
}

// LoadArtifactFS reads a serialized model from fsys.
func LoadArtifactFS(fsys fs.FS, name string) (Classifier, error) {
	if fsys == nil {
		return nil, errors.New("inference: filesystem is nil")
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("inference: read artifact %s: %w", name, err)
	}
	clf, err := DecodeArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, name)
	}
	return clf, nil
}

// DecodeArtifact dispatches on the artifact "kind" and builds the matching
// classifier.
func DecodeArtifact(data []byte) (Classifier, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("inference: artifact is empty")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("inference: decode artifact: %w", err)
	}
	var (
		clf Classifier
		err error
	)
	switch strings.ToLower(strings.TrimSpace(env.Kind)) {
	case KindLogistic:
		clf, err = decodeLogistic(env, data)
	case KindTree:
		clf, err = decodeTree(env, data)
	case KindRemote:
		clf, err = decodeRemote(env, data)
	case "":
		return nil, errors.New("inference: artifact kind is required")
	default:
		return nil, fmt.Errorf("inference: unsupported artifact kind %q", env.Kind)
	}
	if err != nil {
		return nil, err
	}
	return clf, nil
}
