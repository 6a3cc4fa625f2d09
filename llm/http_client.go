package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bhargavap21/tradeforge/metrics"
	"github.com/bhargavap21/tradeforge/security"
)

// HTTPClient is an OpenAI-compatible chat-completions client — the one
// concrete network-calling provider this core ships, adapted from the
// teacher's ArchitectClient request-shaping idiom (mcp/architect_client.go
// buildRequestBodyFromRequest) generalized to the common
// {model, messages} schema most hosted LLM APIs share.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewHTTPClient(baseURL, apiKey, model string) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, APIKey: apiKey, Model: model, Timeout: 30 * time.Second}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	started := time.Now()
	out, err := c.complete(ctx, systemPrompt, userPrompt)
	metrics.RecordAICall(c.Model, time.Since(started), err != nil)
	return out, err
}

func (c *HTTPClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal LLM request: %w", err)
	}

	url := c.BaseURL + "/chat/completions"
	if err := security.ValidateURL(url); err != nil {
		return "", fmt.Errorf("LLM endpoint rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := security.SafeHTTPClient(timeout)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("LLM error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("LLM response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
