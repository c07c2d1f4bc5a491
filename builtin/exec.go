package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"time"

	"github.com/toolbridge/toolbridge/mcp"
)

func executeCommandTool() *mcp.Tool {
	t, _ := mcp.NewTool("execute_command", "Execute a shell command and return its output",
		&mcp.InputSchema{
			Type: "object",
			Properties: map[string]*mcp.SchemaProperty{
				"command": {
					Type:        "string",
					Description: "Shell command to execute",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory for the command",
				},
				"timeout": {
					Type:        "integer",
					Description: "Timeout in seconds",
					Default:     30,
				},
			},
			Required: []string{"command"},
		},
		func(ctx context.Context, args map[string]any) ([]mcp.Content, error) {
			var p struct {
				Command    string `json:"command"`
				WorkingDir string `json:"working_dir"`
				Timeout    int    `json:"timeout"`
			}
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			if p.Timeout <= 0 {
				p.Timeout = 30
			}

			if p.WorkingDir != "" {
				dir, err := resolvePath(p.WorkingDir)
				if err != nil {
					return nil, err
				}
				info, err := os.Stat(dir)
				if err != nil || !info.IsDir() {
					return nil, fmt.Errorf("working directory does not exist: %s", p.WorkingDir)
				}
				p.WorkingDir = dir
			}

			cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(p.Timeout)*time.Second)
			defer cancel()

			cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", p.Command)
			cmd.Dir = p.WorkingDir

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()
			if cmdCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("command timed out after %d seconds", p.Timeout)
			}

			exitCode := 0
			if err != nil {
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					exitCode = exitErr.ExitCode()
				} else {
					return nil, fmt.Errorf("error executing command: %w", err)
				}
			}

			result := map[string]any{
				"exit_code": exitCode,
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
			}
			content, jsonErr := jsonContent(result)
			if jsonErr != nil {
				return nil, jsonErr
			}
			if exitCode != 0 {
				return content, fmt.Errorf("command exited with code %d", exitCode)
			}
			return content, nil
		})
	t.Category = "system"
	t.Tags = []string{"system", "shell", "command"}
	t.Timeout = 5 * time.Minute
	return t
}

func systemInfoTool() *mcp.Tool {
	t, _ := mcp.NewTool("system_info", "Get information about the host system",
		&mcp.InputSchema{
			Type:       "object",
			Properties: map[string]*mcp.SchemaProperty{},
		},
		func(_ context.Context, _ map[string]any) ([]mcp.Content, error) {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "unknown"
			}
			cwd, err := os.Getwd()
			if err != nil {
				cwd = "unknown"
			}
			username := "unknown"
			if u, err := user.Current(); err == nil {
				username = u.Username
			}

			return jsonContent(map[string]any{
				"platform":   runtime.GOOS,
				"arch":       runtime.GOARCH,
				"hostname":   hostname,
				"cwd":        cwd,
				"user":       username,
				"go_version": runtime.Version(),
				"num_cpu":    runtime.NumCPU(),
			})
		})
	t.Category = "system"
	t.Tags = []string{"system", "info"}
	return t
}
