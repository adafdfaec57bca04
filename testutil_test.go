package main

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// stubCall records one Generate invocation.
type stubCall struct {
	Model        string
	SystemPrompt string
	Content      string
}

// stubClient is an in-memory ModelClient for pipeline tests. When fn is
// set it decides the reply per call; otherwise every call succeeds with a
// canned response.
type stubClient struct {
	mu    sync.Mutex
	calls []stubCall
	fn    func(model, systemPrompt string, messages []ChatMessage) (string, error)
}

func (s *stubClient) Generate(ctx context.Context, model, systemPrompt string, messages []ChatMessage) (string, error) {
	content := ""
	if len(messages) > 0 {
		content = messages[len(messages)-1].Content
	}
	s.mu.Lock()
	s.calls = append(s.calls, stubCall{Model: model, SystemPrompt: systemPrompt, Content: content})
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(model, systemPrompt, messages)
	}
	return "stub response from " + model, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// callsForPrompt returns recorded calls whose content contains substr.
func (s *stubClient) callsForPrompt(substr string) []stubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stubCall
	for _, c := range s.calls {
		if strings.Contains(c.Content, substr) {
			out = append(out, c)
		}
	}
	return out
}

// isRankingPrompt reports whether a prompt is the stage-2 ranking request.
func isRankingPrompt(content string) bool {
	return strings.Contains(content, "FINAL RANKING")
}

// isChairmanPrompt reports whether a prompt is the stage-3 synthesis request.
func isChairmanPrompt(content string) bool {
	return strings.Contains(content, "Chairman of an LLM Council")
}

// testMembers builds a small council for pipeline tests.
func testMembers(n int) []CouncilMember {
	names := []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"}
	models := []string{
		"openai/gpt-5.1",
		"anthropic/claude-sonnet-4.5",
		"google/gemini-3-pro-preview",
		"x-ai/grok-4",
		"openrouter/meta-llama/llama-3-70b",
	}
	members := make([]CouncilMember, 0, n)
	for i := 0; i < n; i++ {
		members = append(members, CouncilMember{
			ID:    names[i],
			Name:  names[i],
			Model: models[i],
		})
	}
	return members
}

// rankingReply builds a well-formed stage-2 reply ranking the given labels.
func rankingReply(labels ...string) string {
	var b strings.Builder
	b.WriteString("Each response has strengths and weaknesses.\n\nFINAL RANKING:\n")
	for i, label := range labels {
		b.WriteString(string(rune('1'+i)) + ". " + label + "\n")
	}
	return b.String()
}

// useTempDataDir redirects conversation and persona storage to a temp
// directory for the duration of a test.
func useTempDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origDataDir := DataDir
	origPersonas := PersonasFile
	DataDir = dir + "/conversations"
	PersonasFile = dir + "/personas.json"
	t.Cleanup(func() {
		DataDir = origDataDir
		PersonasFile = origPersonas
	})
	return dir
}
