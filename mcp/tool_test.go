package mcp_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/toolbridge/toolbridge/mcp"
)

func noopHandler(context.Context, map[string]any) ([]mcp.Content, error) {
	return mcp.TextContent("ok"), nil
}

func TestNewToolNameValidation(t *testing.T) {
	testCases := []struct {
		name     string
		toolName string
		wantErr  bool
	}{
		{name: "simple", toolName: "echo", wantErr: false},
		{name: "with digits and underscores", toolName: "read_file_2", wantErr: false},
		{name: "empty", toolName: "", wantErr: true},
		{name: "uppercase", toolName: "Echo", wantErr: true},
		{name: "leading digit", toolName: "2echo", wantErr: true},
		{name: "leading underscore", toolName: "_echo", wantErr: true},
		{name: "hyphen", toolName: "read-file", wantErr: true},
		{name: "too long", toolName: strings.Repeat("a", 65), wantErr: true},
		{name: "max length", toolName: strings.Repeat("a", 64), wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mcp.NewTool(tc.toolName, "desc", nil, noopHandler)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewTool(%q) error = %v, wantErr %v", tc.toolName, err, tc.wantErr)
			}
		})
	}
}

func TestNewToolRequiresHandler(t *testing.T) {
	if _, err := mcp.NewTool("echo", "desc", nil, nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestValidateArgs(t *testing.T) {
	strict := false
	schema := &mcp.InputSchema{
		Type: "object",
		Properties: map[string]*mcp.SchemaProperty{
			"name":  {Type: "string"},
			"count": {Type: "integer"},
			"ratio": {Type: "number"},
			"flag":  {Type: "boolean"},
			"mode":  {Type: "string", Enum: []string{"fast", "slow"}},
		},
		Required: []string{"name"},
	}
	strictSchema := &mcp.InputSchema{
		Type: "object",
		Properties: map[string]*mcp.SchemaProperty{
			"name": {Type: "string"},
		},
		AdditionalProperties: &strict,
	}

	testCases := []struct {
		name    string
		schema  *mcp.InputSchema
		args    map[string]any
		wantErr bool
	}{
		{name: "valid", schema: schema, args: map[string]any{"name": "x", "count": float64(3)}, wantErr: false},
		{name: "missing required", schema: schema, args: map[string]any{"count": float64(3)}, wantErr: true},
		{name: "wrong string type", schema: schema, args: map[string]any{"name": 7}, wantErr: true},
		{name: "non-integral count", schema: schema, args: map[string]any{"name": "x", "count": 1.5}, wantErr: true},
		{name: "ratio accepts float", schema: schema, args: map[string]any{"name": "x", "ratio": 1.5}, wantErr: false},
		{name: "flag wrong type", schema: schema, args: map[string]any{"name": "x", "flag": "yes"}, wantErr: true},
		{name: "enum accepted", schema: schema, args: map[string]any{"name": "x", "mode": "fast"}, wantErr: false},
		{name: "enum rejected", schema: schema, args: map[string]any{"name": "x", "mode": "medium"}, wantErr: true},
		{name: "extra key allowed by default", schema: schema, args: map[string]any{"name": "x", "extra": 1}, wantErr: false},
		{name: "extra key rejected when strict", schema: strictSchema, args: map[string]any{"name": "x", "extra": 1}, wantErr: true},
		{name: "nil schema accepts anything", schema: nil, args: map[string]any{"whatever": 1}, wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schema.ValidateArgs(tc.args)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateArgs error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCallToolTimeoutIsErrorFlaggedResult(t *testing.T) {
	sess := mcp.NewSession()
	tool, err := mcp.NewTool("sleepy", "sleeps past its budget", nil,
		func(ctx context.Context, _ map[string]any) ([]mcp.Content, error) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return mcp.TextContent("done"), nil
		})
	if err != nil {
		t.Fatalf("NewTool: %v", err)
	}
	tool.Timeout = 20 * time.Millisecond
	if err := sess.RegisterTool(tool); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	result, err := sess.CallTool(context.Background(), "sleepy", map[string]any{})
	if err != nil {
		t.Fatalf("a timeout must not surface as a protocol fault, got %v", err)
	}
	if !result.IsError {
		t.Error("expected error-flagged result")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "timed out") {
		t.Errorf("unexpected timeout content: %+v", result.Content)
	}
}

func TestCallToolPanicIsErrorFlaggedResult(t *testing.T) {
	sess := mcp.NewSession()
	tool, _ := mcp.NewTool("explosive", "panics", nil,
		func(context.Context, map[string]any) ([]mcp.Content, error) {
			panic("boom")
		})
	if err := sess.RegisterTool(tool); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	result, err := sess.CallTool(context.Background(), "explosive", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("expected error-flagged result")
	}
}

func TestCallToolHandlerErrorKeepsDiagnosticContent(t *testing.T) {
	sess := mcp.NewSession()
	tool, _ := mcp.NewTool("diagnostic", "fails with content", nil,
		func(context.Context, map[string]any) ([]mcp.Content, error) {
			return mcp.TextContent(`{"exit_code":2}`), context.DeadlineExceeded
		})
	if err := sess.RegisterTool(tool); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	result, err := sess.CallTool(context.Background(), "diagnostic", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Error("expected error-flagged result")
	}
	if !strings.Contains(result.Content[0].Text, "exit_code") {
		t.Errorf("handler content dropped: %+v", result.Content)
	}
}
