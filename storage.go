package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// conversationMu serializes read-modify-write cycles on conversation
// files. The background title updater and the run persister can touch the
// same conversation concurrently; without this one of the writes is lost.
var conversationMu sync.Mutex

// EnsureDataDir ensures the conversation data directory exists.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir, 0755)
}

// GetConversationPath returns the file path for a conversation.
func GetConversationPath(conversationID string) string {
	return filepath.Join(DataDir, conversationID+".json")
}

// CreateConversation creates a new conversation with the given ID.
// Initializes an empty conversation with default title and saves it to disk.
func CreateConversation(conversationID string) (*Conversation, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conversation := &Conversation{
		ID:        conversationID,
		CreatedAt: time.Now().UTC(),
		Title:     "New Conversation",
		Messages:  []Message{},
	}

	if err := SaveConversation(conversation); err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetConversation loads a conversation from storage by ID.
// Returns nil without error if the conversation doesn't exist.
func GetConversation(conversationID string) (*Conversation, error) {
	path := GetConversationPath(conversationID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}

	return &conversation, nil
}

// SaveConversation writes a conversation to disk as formatted JSON.
func SaveConversation(conversation *Conversation) error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := GetConversationPath(conversation.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

// ListConversations lists all conversations with metadata only, sorted by
// creation time, newest first. Silently skips unreadable files.
func ListConversations() ([]ConversationMetadata, error) {
	if err := EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	// Initialize with empty slice to avoid null in JSON
	conversations := make([]ConversationMetadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(DataDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}

		conversations = append(conversations, ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})

	return conversations, nil
}

// AddUserMessage appends a user message (with optional subject context) to
// a conversation and saves it.
func AddUserMessage(conversationID, content, subject string) error {
	conversationMu.Lock()
	defer conversationMu.Unlock()

	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:    "user",
		Content: content,
		Subject: subject,
	})

	return SaveConversation(conversation)
}

// AddAssistantMessage appends the complete council result as the assistant
// turn: all three stage outputs plus the run metadata, with the chairman's
// synthesis as the message content.
func AddAssistantMessage(conversationID string, result *RunResult) error {
	conversationMu.Lock()
	defer conversationMu.Unlock()

	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	stage3 := result.Stage3
	metadata := result.Metadata
	conversation.Messages = append(conversation.Messages, Message{
		Role:     "assistant",
		Content:  stage3.Response,
		Stage1:   result.Stage1,
		Stage2:   result.Stage2,
		Stage3:   &stage3,
		Metadata: &metadata,
	})

	return SaveConversation(conversation)
}

// UpdateConversationTitle updates the title of a conversation.
func UpdateConversationTitle(conversationID string, title string) error {
	conversationMu.Lock()
	defer conversationMu.Unlock()

	conversation, err := GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Title = title

	return SaveConversation(conversation)
}
