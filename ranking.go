package main

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Label tokens look like "Response A". The alphabet caps a council at 26
// members, which is far beyond any sane council size.
var responseLabelPattern = regexp.MustCompile(`Response [A-Z]`)

var numberedLabelPattern = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)

// AssignLabels gives each stage-1 response an opaque label (Response A,
// Response B, ...) in stage-1 order. The assignment is deterministic for a
// run, so every ranker sees the same label→text mapping.
func AssignLabels(stage1 []Stage1Response) []LabeledResponse {
	labeled := make([]LabeledResponse, 0, len(stage1))
	for i, r := range stage1 {
		labeled = append(labeled, LabeledResponse{
			Label:    fmt.Sprintf("Response %c", rune('A'+i)),
			Member:   r.Member,
			Model:    r.Model,
			Response: r.Response,
		})
	}
	return labeled
}

// LabelToMemberMap builds the de-anonymization map. Kept server-side only;
// it reaches clients in result metadata, never in ranking prompts.
func LabelToMemberMap(labeled []LabeledResponse) map[string]string {
	m := make(map[string]string, len(labeled))
	for _, lr := range labeled {
		m[lr.Label] = lr.Member
	}
	return m
}

// ValidLabels returns the label set assigned for this run, in order.
func ValidLabels(labeled []LabeledResponse) []string {
	labels := make([]string, 0, len(labeled))
	for _, lr := range labeled {
		labels = append(labels, lr.Label)
	}
	return labels
}

// ParseRanking extracts an ordered ranking from a model's free-text reply.
// It prefers the section after "FINAL RANKING:" (the prompt contract),
// falling back to the whole text. The result keeps only labels from the
// valid set, in first-appearance order, duplicates collapsed to the first
// occurrence. An empty result means the ranker produced nothing usable.
func ParseRanking(text string, validLabels []string) []string {
	raw := extractLabelTokens(text)

	valid := make(map[string]bool, len(validLabels))
	for _, l := range validLabels {
		valid[l] = true
	}

	ranking := make([]string, 0, len(validLabels))
	seen := make(map[string]bool, len(validLabels))
	for _, label := range raw {
		if !valid[label] || seen[label] {
			continue
		}
		seen[label] = true
		ranking = append(ranking, label)
	}
	return ranking
}

// extractLabelTokens pulls label tokens out of the reply in order of
// appearance, scoped to the FINAL RANKING section when one exists.
func extractLabelTokens(text string) []string {
	if strings.Contains(text, "FINAL RANKING:") {
		parts := strings.SplitN(text, "FINAL RANKING:", 2)
		section := parts[1]

		// Prefer the numbered list format (e.g. "1. Response A") so labels
		// mentioned in trailing commentary don't leak into the ranking.
		if numbered := numberedLabelPattern.FindAllString(section, -1); len(numbered) > 0 {
			tokens := make([]string, 0, len(numbered))
			for _, m := range numbered {
				tokens = append(tokens, responseLabelPattern.FindString(m))
			}
			return tokens
		}

		if matches := responseLabelPattern.FindAllString(section, -1); len(matches) > 0 {
			return matches
		}
	}

	return responseLabelPattern.FindAllString(text, -1)
}

// CalculateAggregateRankings combines the parsed rankings into a consensus
// order. Each label's score is the sum of its 1-based positions across all
// rankings that mention it; lower is better. Ties, and labels no ranker
// mentioned, fall back to label assignment order, so output is
// deterministic and independent of ranker submission order.
func CalculateAggregateRankings(stage2 []Stage2Ranking, labeled []LabeledResponse) []AggregateRanking {
	positions := make(map[string][]int)
	for _, ranking := range stage2 {
		for pos, label := range ranking.ParsedRanking {
			positions[label] = append(positions[label], pos+1)
		}
	}

	var ranked, unranked []AggregateRanking
	for _, lr := range labeled {
		entry := AggregateRanking{
			Label:  lr.Label,
			Member: lr.Member,
		}
		for _, p := range positions[lr.Label] {
			entry.RankSum += p
		}
		entry.RankingsCount = len(positions[lr.Label])

		if entry.RankingsCount > 0 {
			ranked = append(ranked, entry)
		} else {
			unranked = append(unranked, entry)
		}
	}

	// Stable sort over assignment order gives the tie-break for free.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankSum < ranked[j].RankSum
	})

	return append(ranked, unranked...)
}
