package mcp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ToolHandler is the bound execution function of a tool. A returned error is
// reported to the client as an error-flagged result, not a protocol fault.
type ToolHandler func(ctx context.Context, args map[string]any) ([]Content, error)

// Tool is a callable capability registered on a session. Tools are created
// once at bootstrap and not mutated afterwards, apart from flipping the
// Enabled flag before the session starts serving.
type Tool struct {
	Name        string
	Description string
	InputSchema *InputSchema
	Category    string
	Tags        []string
	Enabled     bool
	Timeout     time.Duration
	Handler     ToolHandler
}

// InputSchema is a structural description of the arguments a tool accepts,
// serialized as a JSON Schema object in tools/list.
type InputSchema struct {
	Type                 string                     `json:"type"`
	Properties           map[string]*SchemaProperty `json:"properties,omitempty"`
	Required             []string                   `json:"required,omitempty"`
	AdditionalProperties *bool                      `json:"additionalProperties,omitempty"`
}

// SchemaProperty describes a single argument in an InputSchema.
type SchemaProperty struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Default     any             `json:"default,omitempty"`
	Items       *SchemaProperty `json:"items,omitempty"`
}

const (
	// DefaultToolTimeout bounds tool bodies that don't configure their own.
	DefaultToolTimeout = 30 * time.Second

	maxToolNameLength = 64
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NewTool builds an enabled tool with the given name, description, schema and
// handler, validating the name against the registry's naming rules: lowercase
// letters, digits and underscores, starting with a letter, at most 64 bytes.
func NewTool(name, description string, schema *InputSchema, handler ToolHandler) (*Tool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name must not be empty")
	}
	if len(name) > maxToolNameLength {
		return nil, fmt.Errorf("tool name %q exceeds %d characters", name, maxToolNameLength)
	}
	if !toolNamePattern.MatchString(name) {
		return nil, fmt.Errorf("tool name %q must match %s", name, toolNamePattern.String())
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %q has no handler", name)
	}
	return &Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Enabled:     true,
		Handler:     handler,
	}, nil
}

// Info returns the wire representation used by tools/list.
func (t *Tool) Info() ToolInfo {
	return ToolInfo{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: t.InputSchema,
	}
}

// ValidateArgs checks args against the schema before the handler runs:
// required keys must be present, values must match their declared primitive
// types, and unknown keys are rejected when additionalProperties is false.
func (s *InputSchema) ValidateArgs(args map[string]any) error {
	if s == nil {
		return nil
	}

	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return invalidParamsError("missing required argument %q", name)
		}
	}

	if s.AdditionalProperties != nil && !*s.AdditionalProperties {
		for name := range args {
			if _, ok := s.Properties[name]; !ok {
				return invalidParamsError("unexpected argument %q", name)
			}
		}
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok || value == nil {
			continue
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}

	return nil
}

func (p *SchemaProperty) check(name string, value any) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return invalidParamsError("argument %q must be a string", name)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return nil
				}
			}
			return invalidParamsError("argument %q must be one of %v", name, p.Enum)
		}
	case "number":
		if !isNumber(value) {
			return invalidParamsError("argument %q must be a number", name)
		}
	case "integer":
		if !isInteger(value) {
			return invalidParamsError("argument %q must be an integer", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return invalidParamsError("argument %q must be a boolean", name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return invalidParamsError("argument %q must be an array", name)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return invalidParamsError("argument %q must be an object", name)
		}
	}
	return nil
}

func isNumber(value any) bool {
	switch value.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		// JSON numbers decode as float64, accept integral values.
		return v == float64(int64(v))
	}
	return false
}

// execute runs the tool body under its wall-clock budget in a separate
// goroutine so a stuck body cannot block the session. On timeout the
// in-flight call is abandoned and an error-flagged result is returned.
func (t *Tool) execute(ctx context.Context, args map[string]any, defaultTimeout time.Duration) CallToolResult {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		content []Content
		err     error
	}
	results := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- outcome{err: fmt.Errorf("tool execution failed: %v", r)}
			}
		}()
		content, err := t.Handler(ctx, args)
		results <- outcome{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		msg := fmt.Sprintf("Tool execution timed out after %s", timeout)
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "Tool execution cancelled"
		}
		return CallToolResult{
			Content: TextContent(msg),
			IsError: true,
		}
	case res := <-results:
		if res.err != nil {
			// A handler may return diagnostic content alongside its error.
			content := res.content
			if len(content) == 0 {
				content = TextContent(fmt.Sprintf("Tool execution failed: %s", res.err))
			}
			return CallToolResult{
				Content: content,
				IsError: true,
			}
		}
		return CallToolResult{Content: res.content}
	}
}
