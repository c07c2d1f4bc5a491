package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/toolbridge/toolbridge/claude"
	"github.com/toolbridge/toolbridge/mcp"
)

const conversationToolName = "claude_conversation"

// claudeConversationTool exposes the upstream model as a tool. Each call
// appends to a stored conversation, so a caller can continue one by passing
// the conversation_id from an earlier result. Tool-use turns requested by
// the model are resolved against the session's other tools.
func claudeConversationTool(sess *mcp.Session, orch *claude.Orchestrator, store *claude.ConversationStore) *mcp.Tool {
	t, _ := mcp.NewTool(conversationToolName, "Have a conversation with Claude",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"message": {
					Type:        "string",
					Description: "The message to send to Claude",
				},
				"system_prompt": {
					Type:        "string",
					Description: "Optional system prompt to set context",
				},
				"model": {
					Type:        "string",
					Description: "Claude model to use",
					Default:     claude.DefaultModel,
				},
				"max_tokens": {
					Type:        "integer",
					Description: "Maximum tokens in the response",
					Default:     claude.DefaultMaxTokens,
				},
				"conversation_id": {
					Type:        "string",
					Description: "ID of a previous conversation to continue",
				},
			},
			Required: []string{"message"},
		},
		func(ctx context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Message        string `json:"message"`
				SystemPrompt   string `json:"system_prompt"`
				Model          string `json:"model"`
				MaxTokens      int    `json:"max_tokens"`
				ConversationID string `json:"conversation_id"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			if p.Message == "" {
				return nil, fmt.Errorf("message is required")
			}

			var conv *claude.Conversation
			if p.ConversationID != "" {
				existing, ok := store.Get(p.ConversationID)
				if !ok {
					return nil, fmt.Errorf("conversation %s not found", p.ConversationID)
				}
				if existing.Status == claude.ConversationClosed {
					return nil, fmt.Errorf("conversation %s is closed", p.ConversationID)
				}
				conv = existing
			} else {
				conv = claude.NewConversation(p.Model, p.SystemPrompt)
				conv.MaxTokens = p.MaxTokens
			}

			conv.AppendUserText(p.Message)

			if _, err := orch.Run(ctx, conv, sessionToolDefs(sess)); err != nil {
				return nil, fmt.Errorf("error calling Claude API: %w", err)
			}
			store.Save(conv)

			return jsonContent(map[string]any{
				"conversation_id": conv.ID,
				"response":        conv.Text(),
				"input_tokens":    conv.TotalInputTokens,
				"output_tokens":   conv.TotalOutputTokens,
			})
		})
	t.Category = "ai"
	t.Tags = []string{"ai", "claude", "llm"}
	t.Timeout = 120 * time.Second
	return t
}

// sessionToolDefs lists every enabled session tool except the conversation
// tool itself, which must not call back into the model.
func sessionToolDefs(sess *mcp.Session) []claude.ToolDef {
	var tools []*mcp.Tool
	for _, t := range sess.Tools() {
		if t.Name == conversationToolName {
			continue
		}
		tools = append(tools, t)
	}
	return claude.ToolDefs(tools)
}
