package main

import "time"

// CouncilMember is one model/persona pair that answers the user's question.
// Built from a persona record or from the configured default council, and
// fixed for the duration of a single run.
type CouncilMember struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	Prompt      string `json:"prompt,omitempty"`
	Description string `json:"description,omitempty"`
}

// Stage1Response is a single member's answer in Stage 1. A failed member is
// kept with a placeholder response so later stages can still refer to it.
type Stage1Response struct {
	Member   string `json:"member"`
	Model    string `json:"model"`
	Response string `json:"response"`
	Failed   bool   `json:"failed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LabeledResponse pairs an anonymized label with the member it hides.
// The label→member mapping never reaches the rankers.
type LabeledResponse struct {
	Label    string `json:"label"`
	Member   string `json:"member"`
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Stage2Ranking is one member's ranking of the anonymized responses.
// ParsedRanking holds only valid labels in first-appearance order; it is
// empty when the ranker's text contained no usable labels.
type Stage2Ranking struct {
	Member        string   `json:"member"`
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// AggregateRanking is the consensus position of one labeled response.
// RankSum is the sum of 1-based positions across all valid rankings;
// lower is better. Labels nobody ranked carry RankingsCount 0.
type AggregateRanking struct {
	Label         string `json:"label"`
	Member        string `json:"member"`
	RankSum       int    `json:"rank_sum"`
	RankingsCount int    `json:"rankings_count"`
}

// Stage3Response is the chairman's final synthesis.
type Stage3Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Metadata carries the de-anonymization map and consensus ranking for one run.
type Metadata struct {
	LabelToMember     map[string]string  `json:"label_to_member"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// Message represents a single message in a conversation.
type Message struct {
	Role     string           `json:"role"`
	Content  string           `json:"content,omitempty"`
	Subject  string           `json:"subject,omitempty"`
	Stage1   []Stage1Response `json:"stage1,omitempty"`
	Stage2   []Stage2Ranking  `json:"stage2,omitempty"`
	Stage3   *Stage3Response  `json:"stage3,omitempty"`
	Metadata *Metadata        `json:"metadata,omitempty"`
}

// Conversation represents a full conversation with all messages.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata represents conversation list metadata.
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Persona is a stored council persona record.
type Persona struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Prompt      string    `json:"prompt"`
	Description string    `json:"description,omitempty"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatMessage is a single message sent to a model backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is one streamed pipeline event, emitted once per state transition.
type Event struct {
	Type    string      `json:"type"`
	Stage   string      `json:"stage,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types sent over the SSE stream.
const (
	EventStageStart  = "stage_start"
	EventStageResult = "stage_result"
	EventError       = "error"
	EventDone        = "done"
	EventTitle       = "title"
)

// SendMessageRequest represents a request to send a message.
type SendMessageRequest struct {
	Content    string   `json:"content" binding:"required"`
	Subject    string   `json:"subject,omitempty"`
	PersonaIDs []string `json:"persona_ids,omitempty"`
}

// SendMessageResponse represents the response after sending a message.
type SendMessageResponse struct {
	Stage1           []Stage1Response `json:"stage1"`
	Stage2           []Stage2Ranking  `json:"stage2"`
	Stage3           Stage3Response   `json:"stage3"`
	Metadata         Metadata         `json:"metadata"`
	PersistenceError string           `json:"persistence_error,omitempty"`
}

// CreatePersonaRequest represents a request to create a persona.
type CreatePersonaRequest struct {
	Name        string `json:"name" binding:"required"`
	Prompt      string `json:"prompt" binding:"required"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// UpdatePersonaRequest represents a partial persona update.
type UpdatePersonaRequest struct {
	Name        *string `json:"name,omitempty"`
	Prompt      *string `json:"prompt,omitempty"`
	Description *string `json:"description,omitempty"`
	Model       *string `json:"model,omitempty"`
}
