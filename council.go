package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// truncateRunes shortens s to at most n runes, never splitting a
// multi-byte character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// buildQueryContent frames the user query with the optional subject context.
func buildQueryContent(query, subject string) string {
	if strings.TrimSpace(subject) == "" {
		return query
	}
	return fmt.Sprintf("Subject context:\n%s\n\nQuestion: %s", strings.TrimSpace(subject), query)
}

// failurePlaceholder renders a member failure as ordinary response content.
// The text is shown to rankers anonymized, so it must not leak the member,
// model, or provider; only the failure kind is surfaced.
func failurePlaceholder(err error) string {
	kind := FailureProviderError
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		kind = gwErr.Kind
	}
	return fmt.Sprintf("No answer was produced for this entry: the model call failed (%s).", kind)
}

// Stage1CollectResponses collects individual responses from all council
// members concurrently. A member failure does not abort the stage: the
// member keeps its slot with a placeholder response, so Stage 2 and 3 can
// still rank and weigh it as ordinary content.
func Stage1CollectResponses(ctx context.Context, client ModelClient, members []CouncilMember, query, subject string) []Stage1Response {
	content := buildQueryContent(query, subject)
	messages := []ChatMessage{{Role: "user", Content: content}}

	// One slot per member; no shared state between goroutines.
	results := make([]Stage1Response, len(members))
	g, gctx := errgroup.WithContext(ctx)

	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			text, err := client.Generate(gctx, member.Model, member.Prompt, messages)
			if err != nil {
				log.Printf("Stage 1: member %s (%s) failed: %v", member.Name, member.Model, err)
				results[i] = Stage1Response{
					Member:   member.Name,
					Model:    member.Model,
					Response: failurePlaceholder(err),
					Failed:   true,
					Error:    err.Error(),
				}
				return nil // graceful degradation, other members continue
			}
			results[i] = Stage1Response{
				Member:   member.Name,
				Model:    member.Model,
				Response: text,
			}
			return nil
		})
	}

	// Goroutines never return errors; Wait is just the fan-in barrier.
	_ = g.Wait()

	return results
}

// usableResponses counts stage-1 entries that actually answered.
func usableResponses(stage1 []Stage1Response) int {
	n := 0
	for _, r := range stage1 {
		if !r.Failed {
			n++
		}
	}
	return n
}

// buildRankingPrompt asks a ranker to evaluate the anonymized set. Every
// ranker receives the identical label→text mapping.
func buildRankingPrompt(query, subject string, labeled []LabeledResponse) string {
	var responsesText strings.Builder
	for _, lr := range labeled {
		responsesText.WriteString(fmt.Sprintf("%s:\n%s\n\n", lr.Label, lr.Response))
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

%s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, buildQueryContent(query, subject), responsesText.String())
}

// Stage2CollectRankings asks every council member to rank the anonymized
// stage-1 responses (their own included; identity is hidden). A ranker
// whose call fails is dropped from the result; a ranker whose text parses
// to zero valid labels is kept for chairman context but contributes
// nothing to aggregation.
func Stage2CollectRankings(ctx context.Context, client ModelClient, members []CouncilMember, query, subject string, labeled []LabeledResponse) []Stage2Ranking {
	prompt := buildRankingPrompt(query, subject, labeled)
	messages := []ChatMessage{{Role: "user", Content: prompt}}
	validLabels := ValidLabels(labeled)

	results := make([]*Stage2Ranking, len(members))
	g, gctx := errgroup.WithContext(ctx)

	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			text, err := client.Generate(gctx, member.Model, member.Prompt, messages)
			if err != nil {
				log.Printf("Stage 2: ranker %s (%s) failed: %v", member.Name, member.Model, err)
				return nil
			}

			parsed := ParseRanking(text, validLabels)
			if len(parsed) == 0 {
				log.Printf("Stage 2: ranker %s returned no valid labels, excluded from aggregation", member.Name)
			}

			results[i] = &Stage2Ranking{
				Member:        member.Name,
				Model:         member.Model,
				Ranking:       text,
				ParsedRanking: parsed,
			}
			return nil
		})
	}

	_ = g.Wait()

	rankings := make([]Stage2Ranking, 0, len(members))
	for _, r := range results {
		if r != nil {
			rankings = append(rankings, *r)
		}
	}
	return rankings
}

// buildPersonaContext summarizes each member's persona for the chairman.
// Returns "" when no member carries a persona.
func buildPersonaContext(members []CouncilMember) string {
	var lines []string
	for _, m := range members {
		desc := m.Description
		if desc == "" && m.Prompt != "" {
			firstLine := strings.TrimSpace(strings.SplitN(m.Prompt, "\n", 2)[0])
			if utf8.RuneCountInString(firstLine) > 150 {
				firstLine = truncateRunes(firstLine, 150) + "..."
			}
			desc = firstLine
		}
		if desc == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", m.Name, m.Model, desc))
	}
	return strings.Join(lines, "\n")
}

// formatAggregateRankings renders the consensus order for the chairman.
func formatAggregateRankings(aggregate []AggregateRanking) string {
	var b strings.Builder
	for i, entry := range aggregate {
		if entry.RankingsCount == 0 {
			b.WriteString(fmt.Sprintf("%d. %s (not ranked by any member)\n", i+1, entry.Label))
			continue
		}
		b.WriteString(fmt.Sprintf("%d. %s (rank-position sum %d across %d rankings)\n",
			i+1, entry.Label, entry.RankSum, entry.RankingsCount))
	}
	return b.String()
}

// Stage3SynthesizeFinal asks the chairman model for the final answer. The
// chairman sees everything: member attribution, personas, raw rankings,
// and the consensus order. Returns an error only when the chairman call
// itself fails - the one stage with a single point of failure.
func Stage3SynthesizeFinal(ctx context.Context, client ModelClient, query, subject string, members []CouncilMember, labeled []LabeledResponse, stage2 []Stage2Ranking, aggregate []AggregateRanking) (*Stage3Response, error) {
	var stage1Text strings.Builder
	for _, lr := range labeled {
		stage1Text.WriteString(fmt.Sprintf("Member: %s (%s, shown to rankers as %s)\nResponse: %s\n\n",
			lr.Member, lr.Model, lr.Label, lr.Response))
	}

	var stage2Text strings.Builder
	for _, r := range stage2 {
		stage2Text.WriteString(fmt.Sprintf("Member: %s\nRanking: %s\n\n", r.Member, r.Ranking))
	}
	if stage2Text.Len() == 0 {
		stage2Text.WriteString("(no usable peer rankings were collected; synthesize from the raw responses)\n")
	}

	subjectBlock := ""
	if strings.TrimSpace(subject) != "" {
		subjectBlock = fmt.Sprintf("\nDISCUSSION SUBJECT: %s\n(This is what this conversation is about. Use it to frame your synthesis.)\n", strings.TrimSpace(subject))
	}

	personaBlock := ""
	if personaContext := buildPersonaContext(members); personaContext != "" {
		personaBlock = fmt.Sprintf("\nCOUNCIL MEMBER PERSONAS (each member responded from this perspective):\n%s\n", personaContext)
	}

	chairmanPrompt := fmt.Sprintf(`You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses without knowing who wrote what.
%s
ORIGINAL QUESTION: %s
%s
STAGE 1 - Individual Responses:
%s
STAGE 2 - Peer Rankings:
%s
CONSENSUS RANKING (lower rank-position sum = better):
%s
Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The perspectives each persona brought to their response
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`,
		subjectBlock, query, personaBlock, stage1Text.String(), stage2Text.String(), formatAggregateRankings(aggregate))

	messages := []ChatMessage{{Role: "user", Content: chairmanPrompt}}

	text, err := client.Generate(ctx, ChairmanModel, "", messages)
	if err != nil {
		return nil, fmt.Errorf("chairman model query failed: %w", err)
	}

	return &Stage3Response{
		Model:    ChairmanModel,
		Response: text,
	}, nil
}

// GenerateConversationTitle generates a short title for a conversation
// using the configured fast title model.
func GenerateConversationTitle(ctx context.Context, client ModelClient, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	ctx, cancel := context.WithTimeout(ctx, TitleGenTimeout)
	defer cancel()

	text, err := client.Generate(ctx, TitleModel, "", []ChatMessage{{Role: "user", Content: titlePrompt}})
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	title := strings.TrimSpace(text)
	title = strings.Trim(title, "\"'")

	if utf8.RuneCountInString(title) > 50 {
		title = truncateRunes(title, 47) + "..."
	}

	return title, nil
}
