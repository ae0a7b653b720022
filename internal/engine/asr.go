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

// ASRClient calls a speech-to-text server over HTTP. The server must
// tolerate repeated calls on overlapping spans; the pipeline re-feeds one
// second of leading context on every pass.
type ASRClient struct {
	baseURL    string
	sampleRate int
	http       *http.Client
	breaker    *resilience.Breaker
	retry      resilience.RetryConfig
}

// NewASRClient creates a client for the ASR server at baseURL.
func NewASRClient(baseURL string, sampleRate int) *ASRClient {
	return &ASRClient{
		baseURL:    baseURL,
		sampleRate: sampleRate,
		http:       newHTTPClient(),
		breaker:    resilience.New(resilience.EngineConfig()),
		retry:      resilience.DefaultRetryConfig(),
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe sends samples and returns the recognized text.
func (c *ASRClient) Transcribe(ctx context.Context, samples []float32) (string, error) {
	var text string
	err := resilience.Retry(ctx, c.retry, func() error {
		result, err := resilience.ExecuteWithResult(c.breaker, func() (string, error) {
			return c.transcribeOnce(ctx, samples)
		})
		if err != nil {
			return err
		}
		text = result
		return nil
	})
	return text, err
}

func (c *ASRClient) transcribeOnce(ctx context.Context, samples []float32) (string, error) {
	url := fmt.Sprintf("%s/transcribe?sample_rate=%d", c.baseURL, c.sampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(Float32ToBytes(samples)))
	if err != nil {
		return "", errors.Wrap(err, errors.CodeTranscription, "build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(err, "transcribe")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp, errors.CodeTranscription, "transcribe")
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, errors.CodeTranscription, "decode response")
	}
	return out.Text, nil
}
