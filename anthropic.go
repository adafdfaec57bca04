package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// anthropicClient talks to the Anthropic messages API. Anthropic carries
// the system prompt in a dedicated field rather than a "system" message.
type anthropicClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newAnthropicClient(apiKey, baseURL string) *anthropicClient {
	return &anthropicClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: ModelQueryTimeout},
	}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	// Any system-role messages in the list are folded into the system field.
	system := systemPrompt
	chat := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			}
			continue
		}
		chat = append(chat, m)
	}

	payload := anthropicRequest{
		Model:     model,
		MaxTokens: 8192,
		System:    system,
		Messages:  chat,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "anthropic", Model: model, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "anthropic", Model: model, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport("anthropic", model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport("anthropic", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("anthropic", model, resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "anthropic", Model: model, Message: "failed to parse response: " + err.Error()}
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "anthropic", Model: model, Message: "no content in response"}
	}

	return text.String(), nil
}
