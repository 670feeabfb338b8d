package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRemoteTimeout = 10 * time.Second

// Remote scores records against an HTTP endpoint. The request body is
// {"instances":[record,...]} and the response must carry
// {"labels":[...],"probabilities":[[p0,p1],...]}.
type Remote struct {
	info      ModelInfo
	threshold float64
	Endpoint  string
	HTTP      *http.Client
}

type remoteRequest struct {
	Instances Batch `json:"instances"`
}

type remoteResponse struct {
	Labels        []Label     `json:"labels"`
	Probabilities [][]float64 `json:"probabilities"`
}

func decodeRemote(env envelope, data []byte) (*Remote, error) {
	threshold, err := env.threshold()
	if err != nil {
		return nil, err
	}
	var payload struct {
		Endpoint string `json:"endpoint"`
		Timeout  string `json:"timeout"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("inference: decode remote artifact: %w", err)
	}
	timeout := defaultRemoteTimeout
	if strings.TrimSpace(payload.Timeout) != "" {
		timeout, err = time.ParseDuration(payload.Timeout)
		if err != nil {
			return nil, fmt.Errorf("inference: remote timeout: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("inference: remote timeout must be positive")
		}
	}
	remote, err := NewRemote(payload.Endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	remote.info = env.info()
	remote.threshold = threshold
	return remote, nil
}

// NewRemote returns a classifier backed by endpoint. A nil client gets the
// default timeout.
func NewRemote(endpoint string, client *http.Client) (*Remote, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("inference: remote endpoint is required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("inference: remote endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("inference: remote endpoint %q must be http or https", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &Remote{
		info:      ModelInfo{Kind: KindRemote},
		threshold: DefaultThreshold,
		Endpoint:  endpoint,
		HTTP:      client,
	}, nil
}

// Describe implements Describer.
func (r *Remote) Describe() ModelInfo {
	return r.info
}

// DecisionThreshold implements Thresholder.
func (r *Remote) DecisionThreshold() float64 {
	return r.threshold
}

// Predict implements Classifier.
func (r *Remote) Predict(ctx context.Context, batch Batch) ([]Label, error) {
	labels, _, err := r.Score(ctx, batch)
	return labels, err
}

// PredictProba implements Classifier.
func (r *Remote) PredictProba(ctx context.Context, batch Batch) ([][]float64, error) {
	_, proba, err := r.Score(ctx, batch)
	return proba, err
}

// Score implements Scorer with a single request per batch.
func (r *Remote) Score(ctx context.Context, batch Batch) ([]Label, [][]float64, error) {
	out, err := r.score(ctx, batch)
	if err != nil {
		return nil, nil, err
	}
	return out.Labels, out.Probabilities, nil
}

func (r *Remote) score(ctx context.Context, batch Batch) (*remoteResponse, error) {
	body, err := json.Marshal(remoteRequest{Instances: batch})
	if err != nil {
		return nil, fmt.Errorf("inference: encode remote request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := r.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: remote call: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("inference: remote status=%d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out remoteResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("inference: decode remote response: %w", err)
	}
	return &out, nil
}
