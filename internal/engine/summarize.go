package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/openscribe/meetingd/internal/errors"
	"github.com/openscribe/meetingd/internal/resilience"
)

const summarySystemPrompt = `You summarize meeting transcripts. Respond with a JSON object containing
"summary" (a few short paragraphs) and "action_items" (an array of strings,
one per concrete follow-up, empty if none). Respond with JSON only.`

// SummarizerClient produces a post-meeting summary and action items via an
// Anthropic-style messages API.
type SummarizerClient struct {
	url     string
	apiKey  string
	model   string
	http    *http.Client
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewSummarizerClient creates a summarizer client. The key is required at
// call time, not construction time, so a keyless deployment still starts.
func NewSummarizerClient(url, apiKey, model string) *SummarizerClient {
	return &SummarizerClient{
		url:     url,
		apiKey:  apiKey,
		model:   model,
		http:    newHTTPClient(),
		breaker: resilience.New(resilience.SummaryConfig()),
		retry:   resilience.SummaryRetryConfig(),
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize sends the transcript and returns the summary document.
func (c *SummarizerClient) Summarize(ctx context.Context, transcript string) (*Summary, error) {
	if c.apiKey == "" {
		return nil, errors.New(errors.CodeConfig, "summarizer API key not set")
	}

	var result *Summary
	err := resilience.Retry(ctx, c.retry, func() error {
		s, err := resilience.ExecuteWithResult(c.breaker, func() (*Summary, error) {
			return c.summarizeOnce(ctx, transcript)
		})
		if err != nil {
			return err
		}
		result = s
		return nil
	})
	return result, err
}

func (c *SummarizerClient) summarizeOnce(ctx context.Context, transcript string) (*Summary, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: 4096,
		System:    summarySystemPrompt,
		Messages: []message{
			{Role: "user", Content: "Here is the meeting transcript to summarize:\n\n" + transcript},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSummarization, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSummarization, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err, "summarize")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, errors.CodeSummarization, "summarize")
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSummarization, "read response")
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, errors.CodeSummarization, "parse response")
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, errors.New(errors.CodeSummarization, "empty response")
	}

	return parseSummary(text), nil
}

// parseSummary extracts the structured document from the model's reply. A
// reply that is not valid JSON is still usable: the whole text becomes the
// summary with no action items.
func parseSummary(text string) *Summary {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var s Summary
	if err := json.Unmarshal([]byte(trimmed), &s); err == nil && s.Summary != "" {
		return &s
	}
	return &Summary{Summary: strings.TrimSpace(text)}
}
