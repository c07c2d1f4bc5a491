package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/mcp"
)

// ErrMaxIterations indicates the tool-use loop spent its iteration budget
// without the model producing a final answer. It is distinct from
// ErrRetriesExhausted, which means a single upstream call kept failing.
var ErrMaxIterations = errors.New("maximum tool-use iterations exceeded")

// DefaultMaxIterations bounds the tool-use loop when not configured.
const DefaultMaxIterations = 10

// ModelCaller is the upstream surface the orchestrator needs. *Client
// satisfies it; tests substitute a scripted implementation.
type ModelCaller interface {
	CreateMessage(ctx context.Context, req MessageRequest) (MessageResponse, error)
	Model() string
}

// ToolExecutor executes a named tool with validated-at-the-registry
// arguments. *mcp.Session satisfies it.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.CallToolResult, error)
}

// Orchestrator drives the multi-turn tool-use loop: call the model with the
// conversation history and tool declarations, execute every tool the model
// requested, feed the results back as a single user turn, and repeat until
// the model stops asking for tools or the iteration budget runs out.
//
// A conversation with N tool-use turns costs exactly N+1 upstream calls.
type Orchestrator struct {
	client        ModelCaller
	tools         ToolExecutor
	maxIterations int
	logger        *slog.Logger
}

// OrchestratorOption represents the options for the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// NewOrchestrator creates an orchestrator over the given model client and
// tool executor. A nil executor is legal; the model then gets no tool
// declarations and every run finishes in one call.
func NewOrchestrator(client ModelCaller, tools ToolExecutor, options ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		tools:         tools,
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// WithMaxIterations overrides the loop budget.
func WithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithOrchestratorLogger sets the logger for the orchestrator.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger.With(slog.String("component", "orchestrator"))
	}
}

// Run advances the conversation until the model produces a final answer,
// appending every intermediate turn to conv. It returns the final assistant
// message, or ErrMaxIterations once the loop budget is spent with the model
// still requesting tools.
func (o *Orchestrator) Run(ctx context.Context, conv *Conversation, toolDefs []ToolDef) (Message, error) {
	if conv.Status != ConversationActive {
		return Message{}, fmt.Errorf("conversation %s is %s", conv.ID, conv.Status)
	}

	if o.tools == nil {
		toolDefs = nil
	}

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		resp, err := o.client.CreateMessage(ctx, MessageRequest{
			Model:     conv.Model,
			System:    conv.SystemPrompt,
			MaxTokens: conv.MaxTokens,
			Messages:  conv.Params(),
			Tools:     toolDefs,
		})
		if err != nil {
			return Message{}, fmt.Errorf("model call failed on iteration %d: %w", iteration, err)
		}

		assistant := Message{
			ID:           uuid.New().String(),
			Role:         "assistant",
			Content:      resp.Content,
			CreatedAt:    time.Now(),
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
		conv.Append(assistant)

		if resp.StopReason != StopReasonToolUse {
			return assistant, nil
		}

		uses := resp.ToolUses()
		o.logger.Debug("model requested tools",
			slog.Int("iteration", iteration),
			slog.Int("count", len(uses)))

		// All tool results for one assistant turn travel in one user turn.
		results := make([]ContentBlock, 0, len(uses))
		for _, use := range uses {
			results = append(results, o.executeTool(ctx, use))
		}
		conv.Append(Message{
			ID:        uuid.New().String(),
			Role:      "user",
			Content:   results,
			CreatedAt: time.Now(),
		})
	}

	return Message{}, fmt.Errorf("%w after %d iterations", ErrMaxIterations, o.maxIterations)
}

// executeTool runs one requested tool and converts the outcome to a
// tool_result block. Failures of any kind become error-flagged results so
// the model can react instead of the loop aborting.
func (o *Orchestrator) executeTool(ctx context.Context, use ContentBlock) ContentBlock {
	result := ContentBlock{
		Type:      "tool_result",
		ToolUseID: use.ID,
	}

	if o.tools == nil {
		result.Content = fmt.Sprintf("tool %s is not available", use.Name)
		result.IsError = true
		return result
	}

	args := use.Input
	if args == nil {
		args = map[string]any{}
	}

	callResult, err := o.tools.CallTool(ctx, use.Name, args)
	if err != nil {
		result.Content = err.Error()
		result.IsError = true
		return result
	}

	result.Content = flattenContent(callResult.Content)
	result.IsError = callResult.IsError
	return result
}

func flattenContent(content []mcp.Content) string {
	var out string
	for _, block := range content {
		if block.Type == mcp.ContentTypeText {
			out += block.Text
		}
	}
	return out
}

// ToolDefs converts registered tools into the declaration shape the model
// receives. Disabled tools are not declared.
func ToolDefs(tools []*mcp.Tool) []ToolDef {
	defs := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		if !t.Enabled {
			continue
		}
		var schema any = t.InputSchema
		if t.InputSchema == nil {
			schema = map[string]any{"type": "object"}
		}
		defs = append(defs, ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return defs
}
