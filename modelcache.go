package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// StaticModelFallback is used when a provider has no key configured or its
// list API call fails.
var StaticModelFallback = map[string][]string{
	"openai": {
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-5.1",
	},
	"anthropic": {
		"claude-sonnet-4.5",
		"claude-3-5-sonnet-20241022",
		"claude-3-haiku-20240307",
	},
	"google": {
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-3-pro-preview",
	},
	"x-ai": {
		"grok-4",
		"grok-3",
	},
	"openrouter": {
		"openai/gpt-4o",
		"anthropic/claude-sonnet-4.5",
		"google/gemini-2.5-flash",
	},
}

// ModelsCache provides thread-safe TTL caching for provider model lists.
// It is constructed explicitly in main and passed to the handlers that
// need it; nothing else holds a reference.
type ModelsCache struct {
	mu          sync.RWMutex
	models      map[string][]string
	lastUpdated time.Time
	ttl         time.Duration
}

// NewModelsCache creates a models cache with the specified TTL.
func NewModelsCache(ttl time.Duration) *ModelsCache {
	return &ModelsCache{ttl: ttl}
}

// Get retrieves the provider→models mapping if present and not expired.
func (c *ModelsCache) Get() (map[string][]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.models) == 0 {
		return nil, false
	}
	if time.Since(c.lastUpdated) > c.ttl {
		return nil, false
	}

	// Copy to prevent external modification
	out := make(map[string][]string, len(c.models))
	for provider, models := range c.models {
		out[provider] = append([]string(nil), models...)
	}
	return out, true
}

// Set replaces the cached mapping.
func (c *ModelsCache) Set(models map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = make(map[string][]string, len(models))
	for provider, list := range models {
		c.models[provider] = append([]string(nil), list...)
	}
	c.lastUpdated = time.Now()
}

// Clear invalidates the cache.
func (c *ModelsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models = nil
	c.lastUpdated = time.Time{}
}

// LastUpdated returns when the cache was last filled.
func (c *ModelsCache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastUpdated
}

// GetOrFetch returns the cached mapping, fetching from the provider APIs
// when the cache is empty or stale.
func (c *ModelsCache) GetOrFetch(ctx context.Context) map[string][]string {
	if models, ok := c.Get(); ok {
		return models
	}
	models := FetchProviderModels(ctx)
	c.Set(models)
	return models
}

// modelListResponse covers the OpenAI-style {"data":[{"id":...}]} shape
// used by OpenAI, xAI, Anthropic, and OpenRouter list endpoints.
type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// googleModelListResponse is the Gemini list shape.
type googleModelListResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// FetchProviderModels fetches model lists from all provider APIs in
// parallel, falling back to the static list per provider on any failure.
func FetchProviderModels(ctx context.Context) map[string][]string {
	out := map[string][]string{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	fetch := func(provider string, fn func(context.Context) ([]string, error)) {
		g.Go(func() error {
			models, err := fn(gctx)
			if err != nil || len(models) == 0 {
				if err != nil {
					log.Printf("%s models fetch failed: %v", provider, err)
				}
				models = StaticModelFallback[provider]
			}
			mu.Lock()
			out[provider] = models
			mu.Unlock()
			return nil
		})
	}

	fetch("openai", fetchOpenAIStyleModels("openai", func() (string, string) { return OpenAIBaseURL, OpenAIAPIKey }))
	fetch("x-ai", fetchOpenAIStyleModels("x-ai", func() (string, string) { return XAIBaseURL, XAIAPIKey }))
	fetch("anthropic", fetchAnthropicModels)
	fetch("google", fetchGoogleModels)
	fetch("openrouter", fetchOpenAIStyleModels("openrouter", func() (string, string) { return OpenRouterBaseURL, OpenRouterAPIKey }))

	_ = g.Wait()
	return out
}

// getJSON performs an authorized GET and decodes the response into v.
func getJSON(ctx context.Context, url string, headers map[string]string, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, ModelListTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

// fetchOpenAIStyleModels lists models from an OpenAI-compatible /models
// endpoint. The config getter is deferred so tests can repoint base URLs.
func fetchOpenAIStyleModels(provider string, cfg func() (baseURL, apiKey string)) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		baseURL, apiKey := cfg()
		if apiKey == "" {
			return nil, nil
		}

		var list modelListResponse
		headers := map[string]string{"Authorization": "Bearer " + apiKey}
		if err := getJSON(ctx, baseURL+"/models", headers, &list); err != nil {
			return nil, err
		}

		var models []string
		for _, m := range list.Data {
			if m.ID == "" || strings.HasPrefix(m.ID, "ft:") {
				continue
			}
			models = append(models, m.ID)
		}
		return sortedUnique(models), nil
	}
}

func fetchAnthropicModels(ctx context.Context) ([]string, error) {
	if AnthropicAPIKey == "" {
		return nil, nil
	}

	var list modelListResponse
	headers := map[string]string{
		"x-api-key":         AnthropicAPIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := getJSON(ctx, AnthropicBaseURL+"/models?limit=100", headers, &list); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range list.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return sortedUnique(models), nil
}

func fetchGoogleModels(ctx context.Context) ([]string, error) {
	if GoogleAPIKey == "" {
		return nil, nil
	}

	var list googleModelListResponse
	headers := map[string]string{"x-goog-api-key": GoogleAPIKey}
	if err := getJSON(ctx, GoogleBaseURL+"/models", headers, &list); err != nil {
		return nil, err
	}

	var models []string
	for _, m := range list.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if id == "" {
			continue
		}
		// Skip non-chat models
		if strings.Contains(strings.ToLower(id), "embedding") {
			continue
		}
		if len(m.SupportedGenerationMethods) > 0 {
			supported := false
			for _, method := range m.SupportedGenerationMethods {
				if method == "generateContent" {
					supported = true
					break
				}
			}
			if !supported {
				continue
			}
		}
		models = append(models, id)
	}
	return sortedUnique(models), nil
}

func sortedUnique(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := models[:0]
	for _, m := range models {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
