package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildQueryContent(t *testing.T) {
	if got := buildQueryContent("What is Go?", ""); got != "What is Go?" {
		t.Errorf("without subject = %q", got)
	}

	got := buildQueryContent("What is Go?", "Programming languages")
	if !strings.Contains(got, "Subject context:\nProgramming languages") {
		t.Errorf("subject block missing: %q", got)
	}
	if !strings.Contains(got, "Question: What is Go?") {
		t.Errorf("question missing: %q", got)
	}
}

func TestStage1CollectResponses(t *testing.T) {
	members := testMembers(3)
	client := &stubClient{}

	got := Stage1CollectResponses(context.Background(), client, members, "What is Go?", "")

	if len(got) != 3 {
		t.Fatalf("got %d responses, want 3", len(got))
	}
	for i, r := range got {
		if r.Member != members[i].Name {
			t.Errorf("slot %d member = %q, want %q", i, r.Member, members[i].Name)
		}
		if r.Failed {
			t.Errorf("slot %d unexpectedly failed: %s", i, r.Error)
		}
		if r.Response != "stub response from "+members[i].Model {
			t.Errorf("slot %d response = %q", i, r.Response)
		}
	}
	if client.callCount() != 3 {
		t.Errorf("call count = %d, want 3", client.callCount())
	}
}

func TestStage1FailureBecomesPlaceholder(t *testing.T) {
	members := testMembers(3)
	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			if model == members[1].Model {
				return "", &GatewayError{
					Kind:     FailureRateLimited,
					Provider: "anthropic",
					Model:    model,
					Message:  "429 too many requests",
				}
			}
			return "fine answer", nil
		},
	}

	got := Stage1CollectResponses(context.Background(), client, members, "q", "")

	if len(got) != 3 {
		t.Fatalf("got %d responses, want 3", len(got))
	}
	failed := got[1]
	if !failed.Failed {
		t.Fatal("expected slot 1 to be marked failed")
	}
	if !strings.Contains(failed.Response, string(FailureRateLimited)) {
		t.Errorf("placeholder should name the failure kind: %q", failed.Response)
	}
	// The placeholder is shown to rankers anonymized, so it must not
	// reveal who or what failed.
	for _, leak := range []string{failed.Member, failed.Model, "anthropic"} {
		if strings.Contains(failed.Response, leak) {
			t.Errorf("placeholder leaks %q: %q", leak, failed.Response)
		}
	}
	if failed.Error == "" {
		t.Error("error detail should be preserved outside the response text")
	}
	if got[0].Failed || got[2].Failed {
		t.Error("other members should be unaffected")
	}
}

func TestBuildRankingPromptIsAnonymous(t *testing.T) {
	members := testMembers(3)
	stage1 := []Stage1Response{
		{Member: "Alpha", Model: members[0].Model, Response: "first answer"},
		{Member: "Beta", Model: members[1].Model, Response: "second answer"},
		{Member: "Gamma", Model: members[2].Model, Response: "third answer"},
	}
	labeled := AssignLabels(stage1)

	prompt := buildRankingPrompt("q", "", labeled)

	for _, label := range []string{"Response A", "Response B", "Response C"} {
		if !strings.Contains(prompt, label) {
			t.Errorf("prompt missing label %s", label)
		}
	}
	if !strings.Contains(prompt, "second answer") {
		t.Error("prompt missing response text")
	}
	for _, lr := range labeled {
		if strings.Contains(prompt, lr.Member) {
			t.Errorf("prompt leaks member name %q", lr.Member)
		}
		if strings.Contains(prompt, lr.Model) {
			t.Errorf("prompt leaks model %q", lr.Model)
		}
	}
}

func TestStage2CollectRankings(t *testing.T) {
	members := testMembers(3)
	labeled := labeledSet(3)
	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			switch model {
			case members[0].Model:
				return rankingReply("Response B", "Response A", "Response C"), nil
			case members[1].Model:
				return "", errors.New("connection reset")
			default:
				return "I cannot pick an order here.", nil
			}
		},
	}

	got := Stage2CollectRankings(context.Background(), client, members, "q", "", labeled)

	// The failed ranker is dropped entirely; the unparseable one is kept
	// with an empty parsed ranking.
	if len(got) != 2 {
		t.Fatalf("got %d rankings, want 2", len(got))
	}
	if got[0].Member != "Alpha" {
		t.Errorf("first ranking from %q, want Alpha", got[0].Member)
	}
	want := []string{"Response B", "Response A", "Response C"}
	for i, label := range want {
		if got[0].ParsedRanking[i] != label {
			t.Errorf("parsed[%d] = %q, want %q", i, got[0].ParsedRanking[i], label)
		}
	}
	if got[1].Member != "Gamma" {
		t.Errorf("second ranking from %q, want Gamma", got[1].Member)
	}
	if len(got[1].ParsedRanking) != 0 {
		t.Errorf("unparseable ranker should have empty parsed ranking, got %v", got[1].ParsedRanking)
	}
}

func TestStage3SynthesizeFinal(t *testing.T) {
	members := testMembers(2)
	labeled := labeledSet(2)
	stage2 := []Stage2Ranking{
		{Member: "Alpha", Ranking: rankingReply("Response B", "Response A"), ParsedRanking: []string{"Response B", "Response A"}},
	}
	aggregate := CalculateAggregateRankings(stage2, labeled)

	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			return "the final word", nil
		},
	}

	got, err := Stage3SynthesizeFinal(context.Background(), client, "q", "sub", members, labeled, stage2, aggregate)
	if err != nil {
		t.Fatalf("Stage3SynthesizeFinal: %v", err)
	}
	if got.Model != ChairmanModel {
		t.Errorf("model = %q, want %q", got.Model, ChairmanModel)
	}
	if got.Response != "the final word" {
		t.Errorf("response = %q", got.Response)
	}

	calls := client.callsForPrompt("Chairman of an LLM Council")
	if len(calls) != 1 {
		t.Fatalf("chairman calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Content
	// The chairman sees everything: attribution, labels, and the subject.
	if !strings.Contains(prompt, "Alpha") || !strings.Contains(prompt, "shown to rankers as Response A") {
		t.Error("chairman prompt missing member attribution")
	}
	if !strings.Contains(prompt, "DISCUSSION SUBJECT: sub") {
		t.Error("chairman prompt missing subject block")
	}
	if !strings.Contains(prompt, "CONSENSUS RANKING") {
		t.Error("chairman prompt missing consensus ranking")
	}
}

func TestStage3WithoutRankings(t *testing.T) {
	members := testMembers(2)
	labeled := labeledSet(2)
	client := &stubClient{}

	got, err := Stage3SynthesizeFinal(context.Background(), client, "q", "", members, labeled, nil, CalculateAggregateRankings(nil, labeled))
	if err != nil {
		t.Fatalf("Stage3SynthesizeFinal: %v", err)
	}
	if got.Response == "" {
		t.Error("expected a synthesis even with no rankings")
	}

	calls := client.callsForPrompt("Chairman of an LLM Council")
	if len(calls) != 1 {
		t.Fatalf("chairman calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Content, "no usable peer rankings") {
		t.Error("chairman prompt should flag the missing rankings")
	}
}

func TestStage3ChairmanFailure(t *testing.T) {
	labeled := labeledSet(2)
	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			return "", errors.New("boom")
		},
	}

	_, err := Stage3SynthesizeFinal(context.Background(), client, "q", "", testMembers(2), labeled, nil, nil)
	if err == nil {
		t.Fatal("expected error when chairman call fails")
	}
}

func TestBuildPersonaContext(t *testing.T) {
	members := []CouncilMember{
		{Name: "Skeptic", Model: "m1", Description: "Challenges every claim"},
		{Name: "Historian", Model: "m2", Prompt: "You are a historian.\nAlways cite dates."},
		{Name: "Plain", Model: "m3"},
	}

	got := buildPersonaContext(members)
	if !strings.Contains(got, "Skeptic (m1): Challenges every claim") {
		t.Errorf("description line missing: %q", got)
	}
	if !strings.Contains(got, "Historian (m2): You are a historian.") {
		t.Errorf("prompt first line missing: %q", got)
	}
	if strings.Contains(got, "Plain") {
		t.Errorf("member without persona should be omitted: %q", got)
	}

	if ctx := buildPersonaContext(testMembers(2)); ctx != "" {
		t.Errorf("bare council should produce no persona context, got %q", ctx)
	}
}

func TestGenerateConversationTitle(t *testing.T) {
	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			return "  \"Go Concurrency Basics\"  ", nil
		},
	}

	title, err := GenerateConversationTitle(context.Background(), client, "How do goroutines work?")
	if err != nil {
		t.Fatalf("GenerateConversationTitle: %v", err)
	}
	if title != "Go Concurrency Basics" {
		t.Errorf("title = %q", title)
	}

	client.fn = func(model, systemPrompt string, messages []ChatMessage) (string, error) {
		return strings.Repeat("x", 80), nil
	}
	title, err = GenerateConversationTitle(context.Background(), client, "q")
	if err != nil {
		t.Fatalf("GenerateConversationTitle: %v", err)
	}
	if len(title) != 50 || !strings.HasSuffix(title, "...") {
		t.Errorf("long title not truncated: %q (len %d)", title, len(title))
	}
}

func TestGenerateConversationTitleMultibyte(t *testing.T) {
	client := &stubClient{
		fn: func(model, systemPrompt string, messages []ChatMessage) (string, error) {
			return strings.Repeat("é", 80), nil
		},
	}

	title, err := GenerateConversationTitle(context.Background(), client, "q")
	if err != nil {
		t.Fatalf("GenerateConversationTitle: %v", err)
	}
	if !utf8.ValidString(title) {
		t.Errorf("truncation split a rune: %q", title)
	}
	if utf8.RuneCountInString(title) != 50 || !strings.HasSuffix(title, "...") {
		t.Errorf("title = %q (%d runes)", title, utf8.RuneCountInString(title))
	}
}

func TestBuildPersonaContextMultibytePrompt(t *testing.T) {
	members := []CouncilMember{
		{Name: "Poet", Model: "m1", Prompt: strings.Repeat("ü", 200)},
	}

	got := buildPersonaContext(members)
	if !utf8.ValidString(got) {
		t.Errorf("truncation split a rune: %q", got)
	}
	if !strings.Contains(got, "...") {
		t.Errorf("long prompt line not truncated: %q", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncateRunes("hello", 3); got != "hel" {
		t.Errorf("truncateRunes = %q, want hel", got)
	}
	got := truncateRunes("ééééé", 3)
	if got != "ééé" || !utf8.ValidString(got) {
		t.Errorf("truncateRunes = %q, want ééé", got)
	}
}
