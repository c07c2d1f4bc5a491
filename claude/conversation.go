package claude

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus tracks whether a conversation still accepts messages.
type ConversationStatus string

// ConversationStatus values.
const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is an append-only exchange with the model: the message
// history, the system prompt, and the running token totals. It is volatile
// state; nothing outlives the process.
type Conversation struct {
	ID           string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Status       ConversationStatus
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time

	TotalInputTokens  int
	TotalOutputTokens int
}

// Message is one recorded turn in a conversation.
type Message struct {
	ID           string
	Role         string
	Content      []ContentBlock
	CreatedAt    time.Time
	InputTokens  int
	OutputTokens int
}

// NewConversation creates an active conversation for the given model.
func NewConversation(model, systemPrompt string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.New().String(),
		Model:        model,
		SystemPrompt: systemPrompt,
		Status:       ConversationActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append records a message and accumulates its token usage.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.TotalInputTokens += msg.InputTokens
	c.TotalOutputTokens += msg.OutputTokens
	c.UpdatedAt = time.Now()
}

// AppendUserText records a plain text user turn.
func (c *Conversation) AppendUserText(text string) {
	c.Append(Message{
		ID:        uuid.New().String(),
		Role:      "user",
		Content:   []ContentBlock{{Type: "text", Text: text}},
		CreatedAt: time.Now(),
	})
}

// Params converts the history into the wire shape for a Messages API call.
func (c *Conversation) Params() []MessageParam {
	params := make([]MessageParam, 0, len(c.Messages))
	for _, msg := range c.Messages {
		params = append(params, MessageParam{Role: msg.Role, Content: msg.Content})
	}
	return params
}

// Close marks the conversation as no longer accepting messages.
func (c *Conversation) Close() {
	c.Status = ConversationClosed
	c.UpdatedAt = time.Now()
}

// Text returns the concatenated text blocks of the last assistant message.
func (c *Conversation) Text() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != "assistant" {
			continue
		}
		var out string
		for _, block := range c.Messages[i].Content {
			if block.Type == "text" {
				out += block.Text
			}
		}
		return out
	}
	return ""
}

// ConversationStore is an in-memory conversation repository keyed by ID.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*Conversation),
	}
}

// Save stores or replaces a conversation.
func (s *ConversationStore) Save(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
}

// Get looks up a conversation by ID.
func (s *ConversationStore) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Delete removes a conversation. Deleting an unknown ID is an error so
// callers notice stale references.
func (s *ConversationStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	delete(s.conversations, id)
	return nil
}

// Len reports how many conversations are stored.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
