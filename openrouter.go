package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// openRouterClient is the universal fallback backend. It accepts full
// "provider/model" identifiers for any provider OpenRouter carries.
type openRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newOpenRouterClient(apiKey, baseURL string) *openRouterClient {
	return &openRouterClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: ModelQueryTimeout},
	}
}

type openRouterRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openRouterClient) generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	payload := openRouterRequest{
		Model:    model,
		Messages: prependSystem(systemPrompt, messages),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "openrouter", Model: model, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "openrouter", Model: model, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport("openrouter", model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport("openrouter", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("openrouter", model, resp.StatusCode, string(respBody))
	}

	var apiResp openRouterResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "openrouter", Model: model, Message: "failed to parse response: " + err.Error()}
	}
	if len(apiResp.Choices) == 0 {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "openrouter", Model: model, Message: "no choices in response"}
	}

	return apiResp.Choices[0].Message.Content, nil
}
