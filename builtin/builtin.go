// Package builtin registers the stock tools, resources and prompts on a
// session: file I/O and search, shell execution, system info, and a
// conversation tool backed by the upstream model.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/toolbridge/toolbridge/claude"
	"github.com/toolbridge/toolbridge/config"
	"github.com/toolbridge/toolbridge/mcp"
)

// Options controls which capability groups Register wires up.
type Options struct {
	Config config.Config

	// Orchestrator enables the claude_conversation tool when non-nil.
	Orchestrator *claude.Orchestrator
	// Conversations backs conversation continuation across tool calls.
	Conversations *claude.ConversationStore
}

// Register populates a fresh session with the built-in capability set,
// honoring the feature toggles in the configuration.
func Register(sess *mcp.Session, opts Options) error {
	cfg := opts.Config

	if cfg.MCP.EnableTools {
		if err := registerTools(sess, opts); err != nil {
			return fmt.Errorf("failed to register tools: %w", err)
		}
	}
	if cfg.MCP.EnableResources {
		if err := registerResources(sess, cfg); err != nil {
			return fmt.Errorf("failed to register resources: %w", err)
		}
	}
	if cfg.MCP.EnablePrompts {
		if err := registerPrompts(sess); err != nil {
			return fmt.Errorf("failed to register prompts: %w", err)
		}
	}
	return nil
}

func registerTools(sess *mcp.Session, opts Options) error {
	tools := []*mcp.Tool{
		echoTool(),
		readFileTool(),
		writeFileTool(),
		listDirectoryTool(),
		searchFilesTool(),
		editFileTool(),
		systemInfoTool(),
	}

	if opts.Config.Tools.EnableExecuteCommand {
		tools = append(tools, executeCommandTool())
	}
	if opts.Orchestrator != nil {
		tools = append(tools, claudeConversationTool(sess, opts.Orchestrator, opts.Conversations))
	}

	for _, t := range tools {
		if err := sess.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

func echoTool() *mcp.Tool {
	t, _ := mcp.NewTool("echo", "Echo back a message - useful for testing",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"message": {
					Type:        "string",
					Description: "The message to echo back",
				},
			},
			Required: []string{"message"},
		},
		func(_ context.Context, args map[string]any) ([]mcp.Content, error) {
			message, _ := args["message"].(string)
			return mcp.TextContent("Echo: " + message), nil
		})
	t.Category = "utility"
	t.Tags = []string{"test", "debug"}
	return t
}

// decodeArgs converts the generic argument map into a typed args struct via
// a JSON round trip, the same shape the schema was validated against.
func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

// jsonContent renders a value as indented JSON text content.
func jsonContent(v any) ([]mcp.Content, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.TextContent(string(data)), nil
}
