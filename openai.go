package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// openAIClient talks to the OpenAI chat-completions API. The same wire
// format serves xAI, which exposes an OpenAI-compatible endpoint; the two
// differ only in name, key, and base URL.
type openAIClient struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenAIClient(name, apiKey, baseURL string) *openAIClient {
	return &openAIClient{
		name:       name,
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: ModelQueryTimeout},
	}
}

type openAIRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAIClient) generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	payload := openAIRequest{
		Model:    model,
		Messages: prependSystem(systemPrompt, messages),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: c.name, Model: model, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: c.name, Model: model, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(c.name, model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(c.name, model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(c.name, model, resp.StatusCode, string(respBody))
	}

	var apiResp openAIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: c.name, Model: model, Message: "failed to parse response: " + err.Error()}
	}
	if len(apiResp.Choices) == 0 {
		return "", &GatewayError{Kind: FailureProviderError, Provider: c.name, Model: model, Message: "no choices in response"}
	}

	return apiResp.Choices[0].Message.Content, nil
}

// prependSystem adds a system message in front of the conversation when a
// persona prompt is set.
func prependSystem(systemPrompt string, messages []ChatMessage) []ChatMessage {
	if systemPrompt == "" {
		return messages
	}
	out := make([]ChatMessage, 0, len(messages)+1)
	out = append(out, ChatMessage{Role: "system", Content: systemPrompt})
	return append(out, messages...)
}
