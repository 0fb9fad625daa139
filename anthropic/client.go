// Package anthropic is a minimal client for the Anthropic Messages
// API, covering the single vision call this service makes.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// APIError is a non-2xx response from the Messages API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Thinking  *thinkingConfig `json:"thinking,omitempty"`
	Messages  []message       `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Client calls the Anthropic Messages API. Safe for concurrent use.
type Client struct {
	// BaseURL may be overridden in tests; defaults to the public API.
	BaseURL string

	apiKey         string
	model          string
	maxTokens      int
	thinkingBudget int
	httpClient     *http.Client
}

// NewClient creates a Messages API client. A thinkingBudget of zero
// disables extended thinking.
func NewClient(apiKey, model string, maxTokens, thinkingBudget int) *Client {
	return &Client{
		BaseURL:        defaultBaseURL,
		apiKey:         apiKey,
		model:          model,
		maxTokens:      maxTokens,
		thinkingBudget: thinkingBudget,
		httpClient:     &http.Client{},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// AnalyzeImage sends a base64-encoded image plus a text prompt and
// returns the first text block of the response. With extended thinking
// enabled the response interleaves thinking and text blocks; only the
// text block carries the JSON payload.
func (c *Client) AnalyzeImage(ctx context.Context, b64Image, mediaType, system, prompt string) (string, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{
						Type: "image",
						Source: &imageSource{
							Type:      "base64",
							MediaType: mediaType,
							Data:      b64Image,
						},
					},
					{
						Type: "text",
						Text: prompt,
					},
				},
			},
		},
	}
	if c.thinkingBudget > 0 {
		reqBody.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: c.thinkingBudget}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v1/messages", bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var mr messagesResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	for _, block := range mr.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}
