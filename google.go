package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// googleClient talks to the Gemini generateContent API.
type googleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newGoogleClient(apiKey, baseURL string) *googleClient {
	return &googleClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: ModelQueryTimeout},
	}
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	SystemInstruction *googleContent  `json:"system_instruction,omitempty"`
	Contents          []googleContent `json:"contents"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *googleClient) generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	payload := googleRequest{}
	if systemPrompt != "" {
		payload.SystemInstruction = &googleContent{Parts: []googlePart{{Text: systemPrompt}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		payload.Contents = append(payload.Contents, googleContent{
			Role:  role,
			Parts: []googlePart{{Text: m.Content}},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "google", Model: model, Message: err.Error()}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "google", Model: model, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport("google", model, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport("google", model, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("google", model, resp.StatusCode, string(respBody))
	}

	var apiResp googleResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "google", Model: model, Message: "failed to parse response: " + err.Error()}
	}
	if len(apiResp.Candidates) == 0 {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "google", Model: model, Message: "no candidates in response"}
	}

	var text strings.Builder
	for _, part := range apiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", &GatewayError{Kind: FailureProviderError, Provider: "google", Model: model, Message: "no text in candidate"}
	}

	return text.String(), nil
}
