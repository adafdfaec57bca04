package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ModelClient is the uniform call surface the pipeline uses to reach a
// model backend. Implemented by Gateway; tests substitute stubs.
type ModelClient interface {
	Generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error)
}

// FailureKind classifies a gateway failure.
type FailureKind string

const (
	FailureAuthMissing   FailureKind = "auth_missing"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureProviderError FailureKind = "provider_error"
	FailureTimeout       FailureKind = "timeout"
)

// GatewayError is a typed failure from a single model call. Per-member
// failures are non-fatal to a stage; callers inspect Kind when they care.
type GatewayError struct {
	Kind     FailureKind
	Provider string
	Model    string
	Message  string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: model %s: %s: %s", e.Provider, e.Model, e.Kind, e.Message)
}

// classifyStatus maps an HTTP error status to a GatewayError.
func classifyStatus(provider, model string, status int, body string) *GatewayError {
	kind := FailureProviderError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = FailureAuthMissing
	case status == http.StatusTooManyRequests:
		kind = FailureRateLimited
	}
	return &GatewayError{
		Kind:     kind,
		Provider: provider,
		Model:    model,
		Message:  fmt.Sprintf("API returned status %d: %s", status, body),
	}
}

// classifyTransport maps a transport-level error to a GatewayError.
func classifyTransport(provider, model string, err error) *GatewayError {
	kind := FailureProviderError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FailureTimeout
	}
	return &GatewayError{
		Kind:     kind,
		Provider: provider,
		Model:    model,
		Message:  err.Error(),
	}
}

// Gateway routes model identifiers to provider backends. A native backend
// is selected when the identifier's provider prefix has a configured key;
// every other call goes through the OpenRouter fallback with the full
// identifier. Native backends receive the identifier with the prefix
// stripped. No retries at this layer.
type Gateway struct {
	openAI     *openAIClient
	xAI        *openAIClient
	anthropic  *anthropicClient
	google     *googleClient
	openRouter *openRouterClient
}

// NewGateway builds a gateway from the loaded configuration. Backends
// without keys are left unset and route to the fallback.
func NewGateway() *Gateway {
	g := &Gateway{}
	if OpenAIAPIKey != "" {
		g.openAI = newOpenAIClient("openai", OpenAIAPIKey, OpenAIBaseURL)
	}
	if XAIAPIKey != "" {
		g.xAI = newOpenAIClient("x-ai", XAIAPIKey, XAIBaseURL)
	}
	if AnthropicAPIKey != "" {
		g.anthropic = newAnthropicClient(AnthropicAPIKey, AnthropicBaseURL)
	}
	if GoogleAPIKey != "" {
		g.google = newGoogleClient(GoogleAPIKey, GoogleBaseURL)
	}
	if OpenRouterAPIKey != "" {
		g.openRouter = newOpenRouterClient(OpenRouterAPIKey, OpenRouterBaseURL)
	}
	return g
}

// splitModelID separates the provider prefix from the bare model name.
// "openai/gpt-5.1" -> ("openai", "gpt-5.1"); "gpt-5.1" -> ("", "gpt-5.1").
func splitModelID(model string) (prefix, rest string) {
	if i := strings.Index(model, "/"); i >= 0 {
		return strings.ToLower(model[:i]), model[i+1:]
	}
	return "", model
}

// Generate sends one request to the backend selected for the model
// identifier. Returns the generated text or a *GatewayError.
func (g *Gateway) Generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	prefix, rest := splitModelID(model)

	switch prefix {
	case "openai":
		if g.openAI != nil {
			return g.openAI.generate(ctx, rest, systemPrompt, messages)
		}
	case "x-ai":
		if g.xAI != nil {
			return g.xAI.generate(ctx, rest, systemPrompt, messages)
		}
	case "anthropic":
		if g.anthropic != nil {
			return g.anthropic.generate(ctx, rest, systemPrompt, messages)
		}
	case "google":
		if g.google != nil {
			return g.google.generate(ctx, rest, systemPrompt, messages)
		}
	}

	if g.openRouter == nil {
		return "", &GatewayError{
			Kind:     FailureAuthMissing,
			Provider: "openrouter",
			Model:    model,
			Message:  "no native key for provider and no OpenRouter fallback key configured",
		}
	}
	// OpenRouter takes the full model identifier, prefix included.
	return g.openRouter.generate(ctx, model, systemPrompt, messages)
}
