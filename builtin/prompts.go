package builtin

import (
	"context"
	"fmt"

	"github.com/toolbridge/toolbridge/mcp"
)

func registerPrompts(sess *mcp.Session) error {
	prompts := []*mcp.Prompt{
		codeReviewPrompt(),
		explainCodePrompt(),
		debugHelpPrompt(),
	}
	for _, p := range prompts {
		if err := sess.RegisterPrompt(p); err != nil {
			return err
		}
	}
	return nil
}

func codeReviewPrompt() *mcp.Prompt {
	p, _ := mcp.NewPrompt("code_review", "Get a thorough code review with actionable feedback",
		[]mcp.PromptArgument{
			{Name: "code", Description: "The code to review", Required: true},
			{Name: "language", Description: "Programming language of the code"},
		},
		func(_ context.Context, args map[string]string) ([]mcp.PromptMessage, error) {
			code := args["code"]
			language := args["language"]

			text := fmt.Sprintf(`Please review the following %s code and provide feedback on:
1. Code quality and best practices
2. Potential bugs or issues
3. Performance considerations
4. Security concerns
5. Suggestions for improvement

Code to review:
%s

Please provide a thorough code review with specific recommendations.`, language, codeFence(language, code))

			return []mcp.PromptMessage{userMessage(text)}, nil
		})
	return p
}

func explainCodePrompt() *mcp.Prompt {
	detailInstructions := map[string]string{
		"brief":    "Provide a brief, high-level explanation.",
		"medium":   "Provide a balanced explanation with key details.",
		"detailed": "Provide a comprehensive, in-depth explanation.",
	}

	p, _ := mcp.NewPrompt("explain_code", "Get a detailed explanation of what code does",
		[]mcp.PromptArgument{
			{Name: "code", Description: "The code to explain", Required: true},
			{Name: "language", Description: "Programming language of the code"},
			{Name: "detail_level", Description: "Level of detail: brief, medium, or detailed"},
		},
		func(_ context.Context, args map[string]string) ([]mcp.PromptMessage, error) {
			code := args["code"]
			language := args["language"]

			instruction, ok := detailInstructions[args["detail_level"]]
			if !ok {
				instruction = detailInstructions["medium"]
			}

			text := fmt.Sprintf(`Please explain the following %s code.

%s

Code to explain:
%s

Include:
- What the code does overall
- Key functions and their purposes
- Important data structures
- Any notable patterns or techniques used`, language, instruction, codeFence(language, code))

			return []mcp.PromptMessage{userMessage(text)}, nil
		})
	return p
}

func debugHelpPrompt() *mcp.Prompt {
	p, _ := mcp.NewPrompt("debug_help", "Get help debugging code errors",
		[]mcp.PromptArgument{
			{Name: "code", Description: "The code with the bug", Required: true},
			{Name: "error", Description: "The error message or description of the issue", Required: true},
			{Name: "language", Description: "Programming language of the code"},
		},
		func(_ context.Context, args map[string]string) ([]mcp.PromptMessage, error) {
			code := args["code"]
			errText := args["error"]
			language := args["language"]

			text := fmt.Sprintf(`I need help debugging this %s code.

The code:
%s

The error/issue:
%s

Please help me:
1. Understand what's causing the error
2. Identify the root cause
3. Suggest a fix with explanation
4. Recommend any preventive measures for similar issues`, language, codeFence(language, code), errText)

			return []mcp.PromptMessage{userMessage(text)}, nil
		})
	return p
}

func userMessage(text string) mcp.PromptMessage {
	return mcp.PromptMessage{
		Role:    mcp.RoleUser,
		Content: mcp.Content{Type: mcp.ContentTypeText, Text: text},
	}
}

func codeFence(language, code string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}
