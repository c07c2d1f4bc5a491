package mcp

import (
	"context"
	"fmt"
)

// PromptRenderer produces the message list for a prompt given its arguments.
// Required arguments are checked before the renderer runs.
type PromptRenderer func(ctx context.Context, args map[string]string) ([]PromptMessage, error)

// Prompt is a reusable message template registered on a session.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Renderer    PromptRenderer
}

// NewPrompt builds a prompt with the given name, description, argument
// declarations and renderer.
func NewPrompt(name, description string, args []PromptArgument, renderer PromptRenderer) (*Prompt, error) {
	if name == "" {
		return nil, fmt.Errorf("prompt name must not be empty")
	}
	if renderer == nil {
		return nil, fmt.Errorf("prompt %q has no renderer", name)
	}
	return &Prompt{
		Name:        name,
		Description: description,
		Arguments:   args,
		Renderer:    renderer,
	}, nil
}

// Info returns the wire representation used by prompts/list.
func (p *Prompt) Info() PromptInfo {
	return PromptInfo{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
	}
}

// Render validates required arguments and produces the prompt messages.
func (p *Prompt) Render(ctx context.Context, args map[string]string) (GetPromptResult, error) {
	for _, arg := range p.Arguments {
		if !arg.Required {
			continue
		}
		if _, ok := args[arg.Name]; !ok {
			return GetPromptResult{}, invalidParamsError("missing required argument %q for prompt %q", arg.Name, p.Name)
		}
	}

	messages, err := p.Renderer(ctx, args)
	if err != nil {
		return GetPromptResult{}, fmt.Errorf("failed to render prompt %q: %w", p.Name, err)
	}

	return GetPromptResult{
		Description: p.Description,
		Messages:    messages,
	}, nil
}
