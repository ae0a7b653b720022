package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openscribe/meetingd/internal/errors"
	"github.com/openscribe/meetingd/internal/resilience"
)

// DiarizerClient calls a diarization server over HTTP. Each call analyzes
// one self-contained window and returns speaker turns plus per-label
// embeddings.
type DiarizerClient struct {
	baseURL    string
	sampleRate int
	http       *http.Client
	breaker    *resilience.Breaker
	retry      resilience.RetryConfig
}

// NewDiarizerClient creates a client for the diarization server at baseURL.
func NewDiarizerClient(baseURL string, sampleRate int) *DiarizerClient {
	return &DiarizerClient{
		baseURL:    baseURL,
		sampleRate: sampleRate,
		http:       newHTTPClient(),
		breaker:    resilience.New(resilience.EngineConfig()),
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Diarize sends a window of samples and returns the speaker analysis.
func (c *DiarizerClient) Diarize(ctx context.Context, samples []float32) (*Diarization, error) {
	var result *Diarization
	err := resilience.Retry(ctx, c.retry, func() error {
		d, err := resilience.ExecuteWithResult(c.breaker, func() (*Diarization, error) {
			return c.diarizeOnce(ctx, samples)
		})
		if err != nil {
			return err
		}
		result = d
		return nil
	})
	return result, err
}

func (c *DiarizerClient) diarizeOnce(ctx context.Context, samples []float32) (*Diarization, error) {
	url := fmt.Sprintf("%s/diarize?sample_rate=%d", c.baseURL, c.sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(Float32ToBytes(samples)))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDiarization, "build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err, "diarize")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, errors.CodeDiarization, "diarize")
	}

	var out Diarization
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.CodeDiarization, "decode response")
	}
	return &out, nil
}
